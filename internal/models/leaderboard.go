package models

import (
	"time"

	"github.com/uptrace/bun"
)

// LeaderboardRow is a denormalized per-user ranking snapshot maintained by an
// external process. Read-only here.
type LeaderboardRow struct {
	bun.BaseModel `bun:"table:leaderboard"`

	UserID  string `bun:"user_id,pk" json:"userId"`
	Rank    int    `bun:"rank" json:"rank"`
	Entries int    `bun:"entries" json:"entries"`
	Wins    int    `bun:"wins" json:"wins"`
	// WinRate is stored as permille (wins per 1000 entries).
	WinRate int `bun:"win_rate" json:"winRate"`
	Streak  int `bun:"streak" json:"streak"`

	UpdatedAt time.Time `bun:"updated_at" json:"updatedAt"`
}
