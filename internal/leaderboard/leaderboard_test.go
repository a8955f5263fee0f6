package leaderboard_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	"ms-competitions/internal/leaderboard"
	"ms-competitions/internal/models"
)

func setupTestDB(t *testing.T) (*leaderboard.DB, *bun.DB) {
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	_, err = bunDB.NewCreateTable().Model((*models.LeaderboardRow)(nil)).Exec(context.Background())
	if err != nil {
		t.Fatalf("Failed to create table: %v", err)
	}

	return leaderboard.NewDB(bunDB), bunDB
}

func TestTopOrdersByRank(t *testing.T) {
	lbDB, bunDB := setupTestDB(t)
	defer bunDB.Close()

	now := time.Now()
	rows := []models.LeaderboardRow{
		{UserID: "c", Rank: 3, Entries: 10, Wins: 1, WinRate: 100, UpdatedAt: now},
		{UserID: "a", Rank: 1, Entries: 40, Wins: 8, WinRate: 200, Streak: 2, UpdatedAt: now},
		{UserID: "b", Rank: 2, Entries: 25, Wins: 3, WinRate: 120, UpdatedAt: now},
	}
	_, err := bunDB.NewInsert().Model(&rows).Exec(context.Background())
	require.NoError(t, err)

	got, err := lbDB.Top(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].UserID)
	assert.Equal(t, "b", got[1].UserID)
}

func TestTopDefaultLimit(t *testing.T) {
	lbDB, bunDB := setupTestDB(t)
	defer bunDB.Close()

	got, err := lbDB.Top(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}
