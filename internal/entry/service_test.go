package entry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-competitions/internal/allocation"
	compdb "ms-competitions/internal/competition/db"
	"ms-competitions/internal/entry"
	"ms-competitions/internal/kafka"
	"ms-competitions/internal/models"
)

// Mock implementations

type MockStore struct {
	mock.Mock
}

func (m *MockStore) GetEntry(ctx context.Context, userID string, competitionID int64) (*models.UserEntry, error) {
	args := m.Called(ctx, userID, competitionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserEntry), args.Error(1)
}

func (m *MockStore) InsertEntry(ctx context.Context, e *models.UserEntry) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *MockStore) SetBookmark(ctx context.Context, entryID int64, value bool) error {
	args := m.Called(ctx, entryID, value)
	return args.Error(0)
}

func (m *MockStore) SetLike(ctx context.Context, entryID int64, value bool) error {
	args := m.Called(ctx, entryID, value)
	return args.Error(0)
}

func (m *MockStore) UpdateProgress(ctx context.Context, e *models.UserEntry) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *MockStore) TakenNumbers(ctx context.Context, competitionID int64) (map[int]bool, error) {
	args := m.Called(ctx, competitionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[int]bool), args.Error(1)
}

func (m *MockStore) CommitAllocation(ctx context.Context, e *models.UserEntry, comp *models.Competition) error {
	args := m.Called(ctx, e, comp)
	return args.Error(0)
}

func (m *MockStore) GetEntriesByUser(ctx context.Context, userID string) ([]models.UserEntry, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.UserEntry), args.Error(1)
}

func (m *MockStore) GetWin(ctx context.Context, userID string, competitionID int64) (*models.UserWin, error) {
	args := m.Called(ctx, userID, competitionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserWin), args.Error(1)
}

func (m *MockStore) GetWinsByUser(ctx context.Context, userID string) ([]models.UserWin, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.UserWin), args.Error(1)
}

func (m *MockStore) InsertWin(ctx context.Context, win *models.UserWin) error {
	args := m.Called(ctx, win)
	return args.Error(0)
}

type MockCompStore struct {
	mock.Mock
}

func (m *MockCompStore) GetByID(ctx context.Context, id int64) (*models.Competition, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Competition), args.Error(1)
}

type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) Acquire(ctx context.Context, competitionID int64, token string) error {
	args := m.Called(ctx, competitionID, token)
	return args.Error(0)
}

func (m *MockLocker) Release(ctx context.Context, competitionID int64, token string) error {
	args := m.Called(ctx, competitionID, token)
	return args.Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishEntryCreated(ev kafka.EntryEvent) error {
	args := m.Called(ev)
	return args.Error(0)
}

func freeComp(id int64) *models.Competition {
	return &models.Competition{
		ID:           id,
		Title:        "Free Draw",
		TicketPrice:  0,
		TotalTickets: 100,
		EndDate:      time.Now().Add(48 * time.Hour),
		EntrySteps: models.EntrySteps{
			{ID: 1, Description: "Follow"},
			{ID: 2, Description: "Share"},
		},
	}
}

func TestEnsureEntryIdempotent(t *testing.T) {
	store := new(MockStore)
	comps := new(MockCompStore)
	svc := entry.NewService(store, comps, nil, nil)

	comps.On("GetByID", mock.Anything, int64(1)).Return(freeComp(1), nil)

	// First call: no entry yet, one insert.
	store.On("GetEntry", mock.Anything, "user-1", int64(1)).Return(nil, nil).Once()
	store.On("InsertEntry", mock.Anything, mock.Anything).Return(nil).Once()

	created, err := svc.EnsureEntry(context.Background(), "user-1", 1)
	require.NoError(t, err)
	assert.Equal(t, 0, created.TicketCount)
	assert.Len(t, created.EntryProgress, 2, "progress sized to entry steps")
	assert.Equal(t, models.EntryPaymentNone, created.PaymentStatus)

	// Second call returns the stored row without inserting again.
	store.On("GetEntry", mock.Anything, "user-1", int64(1)).Return(created, nil).Once()

	again, err := svc.EnsureEntry(context.Background(), "user-1", 1)
	require.NoError(t, err)
	assert.Same(t, created, again)
	store.AssertNumberOfCalls(t, "InsertEntry", 1)
}

func TestEnsureEntryCompetitionMissing(t *testing.T) {
	store := new(MockStore)
	comps := new(MockCompStore)
	svc := entry.NewService(store, comps, nil, nil)

	comps.On("GetByID", mock.Anything, int64(9)).Return(nil, compdb.ErrNotFound)

	_, err := svc.EnsureEntry(context.Background(), "user-1", 9)
	assert.ErrorIs(t, err, entry.ErrCompetitionNotFound)

	// Soft-deleted competitions look missing too.
	deleted := freeComp(10)
	deleted.IsDeleted = true
	comps.On("GetByID", mock.Anything, int64(10)).Return(deleted, nil)

	_, err = svc.EnsureEntry(context.Background(), "user-1", 10)
	assert.ErrorIs(t, err, entry.ErrCompetitionNotFound)
}

func TestToggleBookmarkAndLike(t *testing.T) {
	store := new(MockStore)
	comps := new(MockCompStore)
	svc := entry.NewService(store, comps, nil, nil)

	// An entry that already owns tickets: the toggles must leave the ticket
	// columns alone even though the in-memory copy carries them.
	existing := &models.UserEntry{
		ID: 5, UserID: "user-1", CompetitionID: 1,
		TicketCount: 2, TicketNumbers: models.IntList{7, 8},
	}
	comps.On("GetByID", mock.Anything, int64(1)).Return(freeComp(1), nil)
	store.On("GetEntry", mock.Anything, "user-1", int64(1)).Return(existing, nil)
	store.On("SetBookmark", mock.Anything, int64(5), mock.Anything).Return(nil)
	store.On("SetLike", mock.Anything, int64(5), true).Return(nil)

	on, err := svc.ToggleBookmark(context.Background(), "user-1", 1)
	require.NoError(t, err)
	assert.True(t, on)

	off, err := svc.ToggleBookmark(context.Background(), "user-1", 1)
	require.NoError(t, err)
	assert.False(t, off)

	liked, err := svc.ToggleLike(context.Background(), "user-1", 1)
	require.NoError(t, err)
	assert.True(t, liked)

	store.AssertCalled(t, "SetBookmark", mock.Anything, int64(5), true)
	store.AssertCalled(t, "SetBookmark", mock.Anything, int64(5), false)
	store.AssertNotCalled(t, "CommitAllocation", mock.Anything, mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "UpdateProgress", mock.Anything, mock.Anything)
}

func TestRecordFreeEntry(t *testing.T) {
	store := new(MockStore)
	comps := new(MockCompStore)
	locker := new(MockLocker)
	pub := new(MockPublisher)
	svc := entry.NewService(store, comps, locker, pub)

	comp := freeComp(1)
	comp.SoldTickets = 3

	locker.On("Acquire", mock.Anything, int64(1), mock.Anything).Return(nil)
	locker.On("Release", mock.Anything, int64(1), mock.Anything).Return(nil)
	comps.On("GetByID", mock.Anything, int64(1)).Return(comp, nil)
	store.On("GetEntry", mock.Anything, "user-1", int64(1)).Return(nil, nil)
	store.On("InsertEntry", mock.Anything, mock.Anything).Return(nil)
	store.On("TakenNumbers", mock.Anything, int64(1)).Return(map[int]bool{1: true, 2: true, 3: true}, nil)
	store.On("CommitAllocation", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	pub.On("PublishEntryCreated", mock.Anything).Return(nil)

	e, err := svc.RecordFreeEntry(context.Background(), "user-1", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, e.TicketCount)
	assert.Equal(t, models.IntList{4}, e.TicketNumbers)
	assert.Equal(t, 4, comp.SoldTickets)
	assert.Equal(t, 1, comp.Entries)

	locker.AssertCalled(t, "Release", mock.Anything, int64(1), mock.Anything)
	pub.AssertCalled(t, "PublishEntryCreated", kafka.EntryEvent{
		UserID: "user-1", CompetitionID: 1, TicketCount: 1, Paid: false,
	})
}

func TestRecordFreeEntryRejectsPaidCompetition(t *testing.T) {
	store := new(MockStore)
	comps := new(MockCompStore)
	locker := new(MockLocker)
	svc := entry.NewService(store, comps, locker, nil)

	paid := freeComp(2)
	paid.TicketPrice = 250

	locker.On("Acquire", mock.Anything, int64(2), mock.Anything).Return(nil)
	locker.On("Release", mock.Anything, int64(2), mock.Anything).Return(nil)
	comps.On("GetByID", mock.Anything, int64(2)).Return(paid, nil)

	_, err := svc.RecordFreeEntry(context.Background(), "user-1", 2, 1)
	assert.ErrorIs(t, err, entry.ErrNotFree)
	store.AssertNotCalled(t, "CommitAllocation")
}

func TestRecordFreeEntryAlreadyEntered(t *testing.T) {
	store := new(MockStore)
	comps := new(MockCompStore)
	locker := new(MockLocker)
	svc := entry.NewService(store, comps, locker, nil)

	locker.On("Acquire", mock.Anything, int64(1), mock.Anything).Return(nil)
	locker.On("Release", mock.Anything, int64(1), mock.Anything).Return(nil)
	comps.On("GetByID", mock.Anything, int64(1)).Return(freeComp(1), nil)
	store.On("GetEntry", mock.Anything, "user-1", int64(1)).Return(&models.UserEntry{
		ID: 5, UserID: "user-1", CompetitionID: 1, TicketCount: 1, TicketNumbers: models.IntList{7},
	}, nil)

	_, err := svc.RecordFreeEntry(context.Background(), "user-1", 1, 1)
	assert.ErrorIs(t, err, entry.ErrAlreadyEntered)
}

func TestRecordFreeEntryClosedCompetition(t *testing.T) {
	store := new(MockStore)
	comps := new(MockCompStore)
	locker := new(MockLocker)
	svc := entry.NewService(store, comps, locker, nil)

	ended := freeComp(3)
	ended.EndDate = time.Now().Add(-time.Hour)

	locker.On("Acquire", mock.Anything, int64(3), mock.Anything).Return(nil)
	locker.On("Release", mock.Anything, int64(3), mock.Anything).Return(nil)
	comps.On("GetByID", mock.Anything, int64(3)).Return(ended, nil)

	_, err := svc.RecordFreeEntry(context.Background(), "user-1", 3, 1)
	assert.ErrorIs(t, err, entry.ErrCompetitionClosed)
}

func TestRecordFreeEntrySoldOut(t *testing.T) {
	store := new(MockStore)
	comps := new(MockCompStore)
	locker := new(MockLocker)
	svc := entry.NewService(store, comps, locker, nil)

	full := freeComp(4)
	full.TotalTickets = 10
	full.SoldTickets = 10

	locker.On("Acquire", mock.Anything, int64(4), mock.Anything).Return(nil)
	locker.On("Release", mock.Anything, int64(4), mock.Anything).Return(nil)
	comps.On("GetByID", mock.Anything, int64(4)).Return(full, nil)
	store.On("GetEntry", mock.Anything, "user-1", int64(4)).Return(nil, nil)
	store.On("InsertEntry", mock.Anything, mock.Anything).Return(nil)
	store.On("TakenNumbers", mock.Anything, int64(4)).Return(map[int]bool{}, nil)

	_, err := svc.RecordFreeEntry(context.Background(), "user-1", 4, 1)
	assert.ErrorIs(t, err, allocation.ErrSoldOut)
	store.AssertNotCalled(t, "CommitAllocation")
}

func TestApplyPaidPurchaseFirstAndRepeat(t *testing.T) {
	store := new(MockStore)
	comps := new(MockCompStore)
	pub := new(MockPublisher)
	svc := entry.NewService(store, comps, nil, pub)

	comp := freeComp(1)
	comp.TicketPrice = 250
	comp.SoldTickets = 10
	comp.Entries = 4

	e := &models.UserEntry{
		ID: 8, UserID: "user-1", CompetitionID: 1,
		TicketNumbers: models.IntList{},
	}
	comps.On("GetByID", mock.Anything, int64(1)).Return(comp, nil)
	store.On("GetEntry", mock.Anything, "user-1", int64(1)).Return(e, nil)
	store.On("CommitAllocation", mock.Anything, e, comp).Return(nil)
	pub.On("PublishEntryCreated", mock.Anything).Return(nil)

	// First paid purchase bumps the entries counter.
	got, err := svc.ApplyPaidPurchase(context.Background(), "user-1", comp, []int{11, 12}, 500)
	require.NoError(t, err)
	assert.Equal(t, 2, got.TicketCount)
	assert.Equal(t, models.IntList{11, 12}, got.TicketNumbers)
	assert.Equal(t, int64(500), got.TotalPaid)
	assert.Equal(t, models.EntryPaymentCompleted, got.PaymentStatus)
	assert.Equal(t, 12, comp.SoldTickets)
	assert.Equal(t, 5, comp.Entries)

	// A repeat purchase adds tickets but not another entry.
	got, err = svc.ApplyPaidPurchase(context.Background(), "user-1", comp, []int{13}, 250)
	require.NoError(t, err)
	assert.Equal(t, 3, got.TicketCount)
	assert.Equal(t, int64(750), got.TotalPaid)
	assert.Equal(t, 13, comp.SoldTickets)
	assert.Equal(t, 5, comp.Entries, "entries counter bumps only once per user")
}

func TestCompleteEntryStep(t *testing.T) {
	store := new(MockStore)
	comps := new(MockCompStore)
	svc := entry.NewService(store, comps, nil, nil)

	comps.On("GetByID", mock.Anything, int64(1)).Return(freeComp(1), nil)

	// No entry yet.
	store.On("GetEntry", mock.Anything, "user-1", int64(1)).Return(nil, nil).Once()
	_, err := svc.CompleteEntryStep(context.Background(), "user-1", 1, 0)
	assert.ErrorIs(t, err, entry.ErrEntryNotFound)

	e := &models.UserEntry{
		ID: 3, UserID: "user-1", CompetitionID: 1,
		EntryProgress: models.IntList{0, 0},
	}
	store.On("GetEntry", mock.Anything, "user-1", int64(1)).Return(e, nil)
	store.On("UpdateProgress", mock.Anything, e).Return(nil)

	got, err := svc.CompleteEntryStep(context.Background(), "user-1", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, models.IntList{0, 1}, got.EntryProgress)

	// Out-of-range index.
	_, err = svc.CompleteEntryStep(context.Background(), "user-1", 1, 5)
	assert.ErrorIs(t, err, entry.ErrInvalidStep)
}

func TestCompleteEntryStepGrowsShortProgress(t *testing.T) {
	store := new(MockStore)
	comps := new(MockCompStore)
	svc := entry.NewService(store, comps, nil, nil)

	comps.On("GetByID", mock.Anything, int64(1)).Return(freeComp(1), nil)

	// Entry written before a second step was added.
	e := &models.UserEntry{
		ID: 3, UserID: "user-1", CompetitionID: 1,
		EntryProgress: models.IntList{1},
	}
	store.On("GetEntry", mock.Anything, "user-1", int64(1)).Return(e, nil)
	store.On("UpdateProgress", mock.Anything, e).Return(nil)

	got, err := svc.CompleteEntryStep(context.Background(), "user-1", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, models.IntList{1, 1}, got.EntryProgress)
}

func TestCompleteAllEntrySteps(t *testing.T) {
	store := new(MockStore)
	comps := new(MockCompStore)
	svc := entry.NewService(store, comps, nil, nil)

	comps.On("GetByID", mock.Anything, int64(1)).Return(freeComp(1), nil)

	e := &models.UserEntry{
		ID: 3, UserID: "user-1", CompetitionID: 1,
		EntryProgress: models.IntList{0, 0},
	}
	store.On("GetEntry", mock.Anything, "user-1", int64(1)).Return(e, nil)
	store.On("UpdateProgress", mock.Anything, e).Return(nil)

	got, err := svc.CompleteAllEntrySteps(context.Background(), "user-1", 1)
	require.NoError(t, err)
	assert.Equal(t, models.IntList{1, 1}, got.EntryProgress)

	// Missing entry surfaces the sentinel, not a panic.
	store2 := new(MockStore)
	svc2 := entry.NewService(store2, comps, nil, nil)
	store2.On("GetEntry", mock.Anything, "user-2", int64(1)).Return(nil, nil)

	_, err = svc2.CompleteAllEntrySteps(context.Background(), "user-2", 1)
	assert.ErrorIs(t, err, entry.ErrEntryNotFound)
}

func TestRecordFreeEntryLockFailure(t *testing.T) {
	store := new(MockStore)
	comps := new(MockCompStore)
	locker := new(MockLocker)
	svc := entry.NewService(store, comps, locker, nil)

	lockErr := errors.New("competition is busy, please retry")
	locker.On("Acquire", mock.Anything, int64(1), mock.Anything).Return(lockErr)

	_, err := svc.RecordFreeEntry(context.Background(), "user-1", 1, 1)
	assert.ErrorIs(t, err, lockErr)
	comps.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestRecordWinSetsClaimWindow(t *testing.T) {
	store := new(MockStore)
	svc := entry.NewService(store, nil, nil, nil)

	winDate := time.Date(2026, 8, 20, 18, 0, 0, 0, time.UTC)
	store.On("InsertWin", mock.Anything, mock.MatchedBy(func(w *models.UserWin) bool {
		return w.UserID == "user-1" &&
			w.CompetitionID == 3 &&
			w.WinDate.Equal(winDate) &&
			w.ClaimByDate.Equal(winDate.Add(14*24*time.Hour))
	})).Return(nil)

	err := svc.RecordWin(context.Background(), models.WinEvent{
		UserID:        "user-1",
		CompetitionID: 3,
		WinDate:       winDate,
	}, 14*24*time.Hour)
	require.NoError(t, err)
	store.AssertExpectations(t)
}
