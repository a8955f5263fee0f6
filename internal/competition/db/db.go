package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"ms-competitions/internal/models"
)

var ErrNotFound = errors.New("competition not found")

type DB struct {
	Bun *bun.DB
}

func NewDB(bunDB *bun.DB) *DB {
	return &DB{Bun: bunDB}
}

// ListFilter narrows and orders the public competition listing. String
// filters match case-insensitively; zero values mean "no filter".
type ListFilter struct {
	Search   string
	Category string
	Platform string
	Type     string

	// Tab is one of: "", "ending-soon", "high-value", "free", "my-entries".
	Tab string
	// UserID scopes the my-entries tab.
	UserID string

	// SortBy is one of: "popularity" (default), "end-date", "prize",
	// "newest".
	SortBy string

	IncludeDeleted bool

	// Tab parameters supplied by the caller from config.
	Now                time.Time
	EndingSoonWindow   time.Duration
	HighValueThreshold int64
}

func (d *DB) Create(ctx context.Context, comp *models.Competition) error {
	if comp.CreatedAt.IsZero() {
		comp.CreatedAt = time.Now()
	}
	_, err := d.Bun.NewInsert().Model(comp).Exec(ctx)
	return err
}

// GetByID returns a competition regardless of soft-delete state; callers
// that serve public reads filter on IsDeleted themselves.
func (d *DB) GetByID(ctx context.Context, id int64) (*models.Competition, error) {
	var comp models.Competition
	err := d.Bun.NewSelect().
		Model(&comp).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &comp, nil
}

func (d *DB) Update(ctx context.Context, comp *models.Competition) error {
	res, err := d.Bun.NewUpdate().
		Model(comp).
		Column("title", "organizer", "description", "image_url", "platform",
			"type", "category", "prize", "prize_value", "ticket_price",
			"max_tickets_per_user", "total_tickets", "sold_tickets", "entries",
			"end_date", "draw_time", "entry_steps", "is_verified", "is_deleted").
		Where("id = ?", comp.ID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDelete hides a competition from public listings without breaking the
// entries that reference it.
func (d *DB) SoftDelete(ctx context.Context, id int64) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Competition)(nil)).
		Set("is_deleted = ?", true).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *DB) List(ctx context.Context, f ListFilter) ([]models.Competition, error) {
	comps := []models.Competition{}
	q := d.Bun.NewSelect().Model(&comps)

	if !f.IncludeDeleted {
		q = q.Where("is_deleted = ?", false)
	}
	if f.Search != "" {
		pattern := "%" + strings.ToLower(f.Search) + "%"
		q = q.Where("LOWER(title) LIKE ? OR LOWER(organizer) LIKE ?", pattern, pattern)
	}
	if f.Category != "" {
		q = q.Where("LOWER(category) = ?", strings.ToLower(f.Category))
	}
	if f.Platform != "" {
		q = q.Where("LOWER(platform) = ?", strings.ToLower(f.Platform))
	}
	if f.Type != "" {
		q = q.Where("LOWER(type) = ?", strings.ToLower(f.Type))
	}

	now := f.Now
	if now.IsZero() {
		now = time.Now()
	}

	switch f.Tab {
	case "ending-soon":
		window := f.EndingSoonWindow
		if window <= 0 {
			window = 3 * 24 * time.Hour
		}
		q = q.Where("end_date > ?", now).
			Where("end_date <= ?", now.Add(window))
	case "high-value":
		q = q.Where("prize_value >= ?", f.HighValueThreshold)
	case "free":
		q = q.Where("ticket_price = 0")
	case "my-entries":
		q = q.Join("JOIN user_entries ue ON ue.competition_id = competition.id").
			Where("ue.user_id = ?", f.UserID)
	}

	switch f.SortBy {
	case "end-date":
		q = q.Order("end_date ASC")
	case "prize":
		q = q.Order("prize_value DESC")
	case "newest":
		q = q.Order("created_at DESC")
	default:
		q = q.Order("entries DESC")
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return comps, nil
}
