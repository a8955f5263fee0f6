package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"ms-competitions/internal/models"
)

type DB struct {
	Bun *bun.DB
}

func NewDB(bunDB *bun.DB) *DB {
	return &DB{Bun: bunDB}
}

// GetEntry returns the entry for (user, competition), or nil when the user
// has never interacted with the competition.
func (d *DB) GetEntry(ctx context.Context, userID string, competitionID int64) (*models.UserEntry, error) {
	var entry models.UserEntry
	err := d.Bun.NewSelect().
		Model(&entry).
		Where("user_id = ?", userID).
		Where("competition_id = ?", competitionID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// InsertEntry creates the entry row. When a concurrent first interaction
// already inserted the unique (user, competition) pair, the existing row is
// loaded into entry instead of surfacing the constraint violation.
func (d *DB) InsertEntry(ctx context.Context, entry *models.UserEntry) error {
	now := time.Now()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
	res, err := d.Bun.NewInsert().Model(entry).Ignore().Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		existing, err := d.GetEntry(ctx, entry.UserID, entry.CompetitionID)
		if err != nil {
			return err
		}
		if existing != nil {
			*entry = *existing
		}
	}
	return nil
}

// SetBookmark writes only the bookmark flag. Flag and progress updates never
// touch the ticket columns; those belong to CommitAllocation under the
// competition lock.
func (d *DB) SetBookmark(ctx context.Context, entryID int64, value bool) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.UserEntry)(nil)).
		Set("is_bookmarked = ?", value).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", entryID).
		Exec(ctx)
	return err
}

// SetLike writes only the like flag.
func (d *DB) SetLike(ctx context.Context, entryID int64, value bool) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.UserEntry)(nil)).
		Set("is_liked = ?", value).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", entryID).
		Exec(ctx)
	return err
}

// UpdateProgress writes only the promotional-step progress array.
func (d *DB) UpdateProgress(ctx context.Context, entry *models.UserEntry) error {
	entry.UpdatedAt = time.Now()
	_, err := d.Bun.NewUpdate().
		Model(entry).
		Column("entry_progress", "updated_at").
		Where("id = ?", entry.ID).
		Exec(ctx)
	return err
}

// TakenNumbers builds the authoritative set of assigned ticket numbers for a
// competition. Must be read inside the competition lock before allocating.
func (d *DB) TakenNumbers(ctx context.Context, competitionID int64) (map[int]bool, error) {
	var entries []models.UserEntry
	err := d.Bun.NewSelect().
		Model(&entries).
		Column("ticket_numbers").
		Where("competition_id = ?", competitionID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	taken := make(map[int]bool)
	for _, e := range entries {
		for _, n := range e.TicketNumbers {
			taken[n] = true
		}
	}
	return taken, nil
}

// CommitAllocation persists an allocation atomically: the entry row and the
// competition counters change in one transaction, so a crash can never leave
// sold tickets without an owner.
func (d *DB) CommitAllocation(ctx context.Context, entry *models.UserEntry, comp *models.Competition) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		entry.UpdatedAt = time.Now()
		if entry.ID == 0 {
			if entry.CreatedAt.IsZero() {
				entry.CreatedAt = entry.UpdatedAt
			}
			if _, err := tx.NewInsert().Model(entry).Exec(ctx); err != nil {
				return err
			}
		} else {
			if _, err := tx.NewUpdate().
				Model(entry).
				Column("ticket_count", "ticket_numbers", "entry_progress",
					"is_bookmarked", "is_liked", "payment_status", "total_paid", "updated_at").
				Where("id = ?", entry.ID).
				Exec(ctx); err != nil {
				return err
			}
		}

		_, err := tx.NewUpdate().
			Model(comp).
			Column("sold_tickets", "entries").
			Where("id = ?", comp.ID).
			Exec(ctx)
		return err
	})
}

func (d *DB) GetEntriesByUser(ctx context.Context, userID string) ([]models.UserEntry, error) {
	entries := []models.UserEntry{}
	err := d.Bun.NewSelect().
		Model(&entries).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// ---------------- WINS ----------------

// GetWin returns the user's win for a competition, or nil when they have not
// won it.
func (d *DB) GetWin(ctx context.Context, userID string, competitionID int64) (*models.UserWin, error) {
	var win models.UserWin
	err := d.Bun.NewSelect().
		Model(&win).
		Where("user_id = ?", userID).
		Where("competition_id = ?", competitionID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &win, nil
}

func (d *DB) GetWinsByUser(ctx context.Context, userID string) ([]models.UserWin, error) {
	wins := []models.UserWin{}
	err := d.Bun.NewSelect().
		Model(&wins).
		Where("user_id = ?", userID).
		Order("win_date DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return wins, nil
}

// InsertWin records a draw result consumed from the wins topic. Duplicate
// (user, competition) wins are ignored so redelivered messages are harmless.
func (d *DB) InsertWin(ctx context.Context, win *models.UserWin) error {
	existing, err := d.GetWin(ctx, win.UserID, win.CompetitionID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	_, err = d.Bun.NewInsert().Model(win).Exec(ctx)
	return err
}
