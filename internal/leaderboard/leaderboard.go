package leaderboard

import (
	"context"

	"github.com/uptrace/bun"

	"ms-competitions/internal/models"
)

const defaultLimit = 50

// DB reads the leaderboard snapshot. The ranking itself is maintained by the
// draw process; this service only serves it.
type DB struct {
	Bun *bun.DB
}

func NewDB(bunDB *bun.DB) *DB {
	return &DB{Bun: bunDB}
}

// Top returns the highest-ranked rows. limit <= 0 falls back to the default.
func (d *DB) Top(ctx context.Context, limit int) ([]models.LeaderboardRow, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	var rows []models.LeaderboardRow
	err := d.Bun.NewSelect().
		Model(&rows).
		Order("rank ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
