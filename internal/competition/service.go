package competition

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-competitions/internal/competition/db"
	"ms-competitions/internal/config"
	"ms-competitions/internal/models"
)

var (
	ErrNotFound      = errors.New("competition not found")
	ErrInvalidDate   = errors.New("invalid date format, expected RFC3339")
	ErrMissingField  = errors.New("missing required field")
	ErrInvalidValue  = errors.New("invalid field value")
	ErrDrawInThePast = errors.New("draw time must be in the future")
)

// Store is the persistence surface the service needs; internal/competition/db
// implements it against Postgres in production and SQLite in tests.
type Store interface {
	Create(ctx context.Context, comp *models.Competition) error
	GetByID(ctx context.Context, id int64) (*models.Competition, error)
	Update(ctx context.Context, comp *models.Competition) error
	SoftDelete(ctx context.Context, id int64) error
	List(ctx context.Context, f db.ListFilter) ([]models.Competition, error)
}

// Publisher streams competition changes; nil-safe wrapper lives in the service.
type Publisher interface {
	PublishCompetitionUpdated(comp *models.Competition) error
}

type Service struct {
	store    Store
	producer Publisher
	cfg      config.CompetitionConfig
}

func NewService(store Store, producer Publisher, cfg config.CompetitionConfig) *Service {
	return &Service{store: store, producer: producer, cfg: cfg}
}

// Create validates and persists a new competition with zeroed counters.
func (s *Service) Create(ctx context.Context, comp *models.Competition) (*models.Competition, error) {
	if comp.Title == "" {
		return nil, fmt.Errorf("%w: title", ErrMissingField)
	}
	if comp.Prize == "" {
		return nil, fmt.Errorf("%w: prize", ErrMissingField)
	}
	if comp.TicketPrice < 0 {
		return nil, fmt.Errorf("%w: ticketPrice must not be negative", ErrInvalidValue)
	}
	if comp.TotalTickets < 0 {
		return nil, fmt.Errorf("%w: totalTickets must not be negative", ErrInvalidValue)
	}
	if comp.MaxTicketsPerUser < 0 {
		return nil, fmt.Errorf("%w: maxTicketsPerUser must not be negative", ErrInvalidValue)
	}
	if !comp.DrawTime.IsZero() && comp.DrawTime.Before(time.Now()) {
		return nil, ErrDrawInThePast
	}

	// Counters are owned by the entry pipeline, never by admin input.
	comp.SoldTickets = 0
	comp.Entries = 0
	comp.IsDeleted = false
	comp.CreatedAt = time.Now()

	if err := s.store.Create(ctx, comp); err != nil {
		return nil, err
	}
	s.publishUpdated(comp)
	return comp, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*models.Competition, error) {
	comp, err := s.store.GetByID(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if comp.IsDeleted {
		return nil, ErrNotFound
	}
	return comp, nil
}

// Update applies a merge patch: only keys present in the patch change, all
// other fields keep their stored values. Counter fields are not patchable.
func (s *Service) Update(ctx context.Context, id int64, patch map[string]interface{}) (*models.Competition, error) {
	comp, err := s.store.GetByID(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := applyPatch(comp, patch); err != nil {
		return nil, err
	}

	if err := s.store.Update(ctx, comp); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	s.publishUpdated(comp)
	return comp, nil
}

func (s *Service) SoftDelete(ctx context.Context, id int64) error {
	err := s.store.SoftDelete(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return nil
}

// List applies the public filters. Filter values of "all" mean no filter, to
// match what the frontend dropdowns send.
func (s *Service) List(ctx context.Context, f db.ListFilter) ([]models.Competition, error) {
	f.Category = normalizeFilter(f.Category)
	f.Platform = normalizeFilter(f.Platform)
	f.Type = normalizeFilter(f.Type)
	f.EndingSoonWindow = s.cfg.EndingSoonWindow
	f.HighValueThreshold = s.cfg.HighValueThreshold
	return s.store.List(ctx, f)
}

func normalizeFilter(v string) string {
	if v == "all" {
		return ""
	}
	return v
}

func (s *Service) publishUpdated(comp *models.Competition) {
	if s.producer == nil {
		return
	}
	if err := s.producer.PublishCompetitionUpdated(comp); err != nil {
		fmt.Printf("Failed to publish competition update for %d: %v\n", comp.ID, err)
	}
}

func applyPatch(comp *models.Competition, patch map[string]interface{}) error {
	for key, raw := range patch {
		switch key {
		case "title":
			if v, ok := raw.(string); ok {
				comp.Title = v
			}
		case "organizer":
			if v, ok := raw.(string); ok {
				comp.Organizer = v
			}
		case "description":
			if v, ok := raw.(string); ok {
				comp.Description = v
			}
		case "imageUrl":
			if v, ok := raw.(string); ok {
				comp.ImageURL = v
			}
		case "platform":
			if v, ok := raw.(string); ok {
				comp.Platform = v
			}
		case "type":
			if v, ok := raw.(string); ok {
				comp.Type = v
			}
		case "category":
			if v, ok := raw.(string); ok {
				comp.Category = v
			}
		case "prize":
			if v, ok := raw.(string); ok {
				comp.Prize = v
			}
		case "prizeValue":
			if v, ok := asInt64(raw); ok {
				comp.PrizeValue = v
			}
		case "ticketPrice":
			v, ok := asInt64(raw)
			if !ok || v < 0 {
				return fmt.Errorf("%w: ticketPrice", ErrInvalidValue)
			}
			comp.TicketPrice = v
		case "maxTicketsPerUser":
			if v, ok := asInt64(raw); ok {
				comp.MaxTicketsPerUser = int(v)
			}
		case "totalTickets":
			if v, ok := asInt64(raw); ok {
				comp.TotalTickets = int(v)
			}
		case "endDate":
			t, err := parseDate(raw)
			if err != nil {
				return err
			}
			comp.EndDate = t
		case "drawTime":
			t, err := parseDate(raw)
			if err != nil {
				return err
			}
			comp.DrawTime = t
		case "entrySteps":
			steps, err := parseSteps(raw)
			if err != nil {
				return err
			}
			comp.EntrySteps = steps
		case "isVerified":
			if v, ok := raw.(bool); ok {
				comp.IsVerified = v
			}
		}
	}
	return nil
}

func asInt64(raw interface{}) (int64, bool) {
	switch v := raw.(type) {
	case float64: // encoding/json decodes numbers as float64
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

func parseDate(raw interface{}) (time.Time, error) {
	str, ok := raw.(string)
	if !ok {
		return time.Time{}, ErrInvalidDate
	}
	t, err := time.Parse(time.RFC3339, str)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, str)
	}
	return t, nil
}

func parseSteps(raw interface{}) (models.EntrySteps, error) {
	list, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: entrySteps", ErrInvalidValue)
	}
	steps := make(models.EntrySteps, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: entrySteps[%d]", ErrInvalidValue, i)
		}
		step := models.EntryStep{ID: i + 1}
		if v, ok := m["description"].(string); ok {
			step.Description = v
		}
		if v, ok := m["link"].(string); ok {
			step.Link = v
		}
		if v, ok := asInt64(m["id"]); ok && v > 0 {
			step.ID = int(v)
		}
		steps = append(steps, step)
	}
	return steps, nil
}
