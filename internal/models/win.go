package models

import (
	"time"

	"github.com/uptrace/bun"
)

// UserWin links a user and competition to a draw result. Wins are produced
// by the external draw process (consumed from Kafka); the service only reads
// them for projection.
type UserWin struct {
	bun.BaseModel `bun:"table:user_wins"`

	ID            int64  `bun:"id,pk,autoincrement" json:"id"`
	UserID        string `bun:"user_id,notnull" json:"userId"`
	CompetitionID int64  `bun:"competition_id,notnull" json:"competitionId"`

	WinDate     time.Time `bun:"win_date" json:"winDate"`
	ClaimByDate time.Time `bun:"claim_by_date" json:"claimByDate"`

	PrizeReceived bool      `bun:"prize_received" json:"prizeReceived"`
	ReceivedDate  time.Time `bun:"received_date,nullzero" json:"receivedDate,omitempty"`
}

// WinEvent is the payload the draw process publishes when a winner is picked.
type WinEvent struct {
	UserID        string    `json:"user_id"`
	CompetitionID int64     `json:"competition_id"`
	WinDate       time.Time `json:"win_date"`
}
