package entry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ms-competitions/internal/allocation"
	compdb "ms-competitions/internal/competition/db"
	"ms-competitions/internal/kafka"
	"ms-competitions/internal/models"
)

var (
	ErrCompetitionNotFound = errors.New("competition not found")
	ErrEntryNotFound       = errors.New("entry not found")
	ErrAlreadyEntered      = errors.New("you have already entered this competition")
	ErrNotFree             = errors.New("competition requires a paid ticket")
	ErrCompetitionClosed   = errors.New("competition has ended")
	ErrInvalidStep         = errors.New("invalid entry step")
)

type Store interface {
	GetEntry(ctx context.Context, userID string, competitionID int64) (*models.UserEntry, error)
	InsertEntry(ctx context.Context, entry *models.UserEntry) error
	SetBookmark(ctx context.Context, entryID int64, value bool) error
	SetLike(ctx context.Context, entryID int64, value bool) error
	UpdateProgress(ctx context.Context, entry *models.UserEntry) error
	TakenNumbers(ctx context.Context, competitionID int64) (map[int]bool, error)
	CommitAllocation(ctx context.Context, entry *models.UserEntry, comp *models.Competition) error
	GetEntriesByUser(ctx context.Context, userID string) ([]models.UserEntry, error)
	GetWin(ctx context.Context, userID string, competitionID int64) (*models.UserWin, error)
	GetWinsByUser(ctx context.Context, userID string) ([]models.UserWin, error)
	InsertWin(ctx context.Context, win *models.UserWin) error
}

type CompetitionStore interface {
	GetByID(ctx context.Context, id int64) (*models.Competition, error)
}

// Locker serializes allocation per competition across service instances.
type Locker interface {
	Acquire(ctx context.Context, competitionID int64, token string) error
	Release(ctx context.Context, competitionID int64, token string) error
}

type Publisher interface {
	PublishEntryCreated(ev kafka.EntryEvent) error
}

type Service struct {
	store    Store
	comps    CompetitionStore
	locker   Locker
	producer Publisher
}

func NewService(store Store, comps CompetitionStore, locker Locker, producer Publisher) *Service {
	return &Service{store: store, comps: comps, locker: locker, producer: producer}
}

func (s *Service) competition(ctx context.Context, id int64) (*models.Competition, error) {
	comp, err := s.comps.GetByID(ctx, id)
	if errors.Is(err, compdb.ErrNotFound) {
		return nil, ErrCompetitionNotFound
	}
	if err != nil {
		return nil, err
	}
	if comp.IsDeleted {
		return nil, ErrCompetitionNotFound
	}
	return comp, nil
}

// EnsureEntry returns the user's entry for a competition, creating a soft
// entry (no tickets, zeroed progress) on first interaction. Idempotent.
func (s *Service) EnsureEntry(ctx context.Context, userID string, competitionID int64) (*models.UserEntry, error) {
	comp, err := s.competition(ctx, competitionID)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.GetEntry(ctx, userID, competitionID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	entry := &models.UserEntry{
		UserID:        userID,
		CompetitionID: competitionID,
		TicketNumbers: models.IntList{},
		EntryProgress: make(models.IntList, len(comp.EntrySteps)),
		PaymentStatus: models.EntryPaymentNone,
	}
	if err := s.store.InsertEntry(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// ToggleBookmark flips the bookmark flag and returns its new value.
func (s *Service) ToggleBookmark(ctx context.Context, userID string, competitionID int64) (bool, error) {
	entry, err := s.EnsureEntry(ctx, userID, competitionID)
	if err != nil {
		return false, err
	}
	entry.IsBookmarked = !entry.IsBookmarked
	if err := s.store.SetBookmark(ctx, entry.ID, entry.IsBookmarked); err != nil {
		return false, err
	}
	return entry.IsBookmarked, nil
}

// ToggleLike flips the like flag and returns its new value.
func (s *Service) ToggleLike(ctx context.Context, userID string, competitionID int64) (bool, error) {
	entry, err := s.EnsureEntry(ctx, userID, competitionID)
	if err != nil {
		return false, err
	}
	entry.IsLiked = !entry.IsLiked
	if err := s.store.SetLike(ctx, entry.ID, entry.IsLiked); err != nil {
		return false, err
	}
	return entry.IsLiked, nil
}

// RecordFreeEntry grants tickets for a zero-price competition. It takes the
// competition lock itself, re-reads the counters inside it, and commits the
// entry and competition together.
func (s *Service) RecordFreeEntry(ctx context.Context, userID string, competitionID int64, count int) (*models.UserEntry, error) {
	if count < 1 {
		count = 1
	}

	token := uuid.New().String()
	if err := s.locker.Acquire(ctx, competitionID, token); err != nil {
		return nil, err
	}
	defer s.locker.Release(ctx, competitionID, token)

	comp, err := s.competition(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	if !comp.IsFree() {
		return nil, ErrNotFree
	}
	if !comp.EndDate.IsZero() && comp.EndDate.Before(time.Now()) {
		return nil, ErrCompetitionClosed
	}

	entry, err := s.EnsureEntry(ctx, userID, competitionID)
	if err != nil {
		return nil, err
	}
	if entry.HasTickets() {
		return nil, ErrAlreadyEntered
	}

	taken, err := s.store.TakenNumbers(ctx, competitionID)
	if err != nil {
		return nil, err
	}

	res, err := allocation.Allocate(comp, 0, count, nil, taken)
	if err != nil {
		return nil, err
	}

	entry.TicketCount = count
	entry.TicketNumbers = append(entry.TicketNumbers, res.Numbers...)
	comp.SoldTickets = res.NewSoldTickets
	comp.Entries++

	if err := s.store.CommitAllocation(ctx, entry, comp); err != nil {
		return nil, err
	}

	s.publishEntry(kafka.EntryEvent{
		UserID:        userID,
		CompetitionID: competitionID,
		TicketCount:   count,
		Paid:          false,
	})
	return entry, nil
}

// ApplyPaidPurchase merges an allocation produced by the purchase pipeline
// into the user's entry. The caller must hold the competition lock; the
// numbers passed in were allocated against the taken set read under that
// same lock.
func (s *Service) ApplyPaidPurchase(ctx context.Context, userID string, comp *models.Competition, numbers []int, amountPaid int64) (*models.UserEntry, error) {
	entry, err := s.EnsureEntry(ctx, userID, comp.ID)
	if err != nil {
		return nil, err
	}

	firstTickets := !entry.HasTickets()

	entry.TicketCount += len(numbers)
	entry.TicketNumbers = append(entry.TicketNumbers, numbers...)
	entry.TotalPaid += amountPaid
	entry.PaymentStatus = models.EntryPaymentCompleted

	comp.SoldTickets += len(numbers)
	if firstTickets {
		comp.Entries++
	}

	if err := s.store.CommitAllocation(ctx, entry, comp); err != nil {
		return nil, err
	}

	s.publishEntry(kafka.EntryEvent{
		UserID:        userID,
		CompetitionID: comp.ID,
		TicketCount:   len(numbers),
		Paid:          true,
	})
	return entry, nil
}

// CompleteEntryStep marks one promotional step done. The step index is
// zero-based against the competition's entry steps.
func (s *Service) CompleteEntryStep(ctx context.Context, userID string, competitionID int64, stepIndex int) (*models.UserEntry, error) {
	comp, err := s.competition(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	if stepIndex < 0 || stepIndex >= len(comp.EntrySteps) {
		return nil, fmt.Errorf("%w: index %d of %d steps", ErrInvalidStep, stepIndex, len(comp.EntrySteps))
	}

	entry, err := s.store.GetEntry(ctx, userID, competitionID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, ErrEntryNotFound
	}

	// Progress arrays written before a steps edit may be short.
	for len(entry.EntryProgress) < len(comp.EntrySteps) {
		entry.EntryProgress = append(entry.EntryProgress, 0)
	}
	entry.EntryProgress[stepIndex] = 1

	if err := s.store.UpdateProgress(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// CompleteAllEntrySteps marks every step done by looping the per-step
// operation.
func (s *Service) CompleteAllEntrySteps(ctx context.Context, userID string, competitionID int64) (*models.UserEntry, error) {
	comp, err := s.competition(ctx, competitionID)
	if err != nil {
		return nil, err
	}

	entry, err := s.store.GetEntry(ctx, userID, competitionID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, ErrEntryNotFound
	}

	for i := range comp.EntrySteps {
		if entry, err = s.CompleteEntryStep(ctx, userID, competitionID, i); err != nil {
			return nil, err
		}
	}
	return entry, nil
}

// EntriesByUser lists all of a user's entries, newest activity first.
func (s *Service) EntriesByUser(ctx context.Context, userID string) ([]models.UserEntry, error) {
	return s.store.GetEntriesByUser(ctx, userID)
}

// EntryFor is the read-only lookup used by the projection layer; nil when the
// user never interacted with the competition.
func (s *Service) EntryFor(ctx context.Context, userID string, competitionID int64) (*models.UserEntry, error) {
	return s.store.GetEntry(ctx, userID, competitionID)
}

// WinFor returns the user's win for a competition, nil when there is none.
func (s *Service) WinFor(ctx context.Context, userID string, competitionID int64) (*models.UserWin, error) {
	return s.store.GetWin(ctx, userID, competitionID)
}

// WinsByUser lists all of a user's wins.
func (s *Service) WinsByUser(ctx context.Context, userID string) ([]models.UserWin, error) {
	return s.store.GetWinsByUser(ctx, userID)
}

// RecordWin persists a draw result delivered over Kafka. Redelivered events
// are absorbed by the store's idempotent insert.
func (s *Service) RecordWin(ctx context.Context, ev models.WinEvent, claimWindow time.Duration) error {
	winDate := ev.WinDate
	if winDate.IsZero() {
		winDate = time.Now()
	}
	return s.store.InsertWin(ctx, &models.UserWin{
		UserID:        ev.UserID,
		CompetitionID: ev.CompetitionID,
		WinDate:       winDate,
		ClaimByDate:   winDate.Add(claimWindow),
	})
}

func (s *Service) publishEntry(ev kafka.EntryEvent) {
	if s.producer == nil {
		return
	}
	if err := s.producer.PublishEntryCreated(ev); err != nil {
		fmt.Printf("Failed to publish entry event for competition %d: %v\n", ev.CompetitionID, err)
	}
}
