package models

import (
	"time"

	"github.com/uptrace/bun"
)

type EntryPaymentStatus string

const (
	EntryPaymentNone      EntryPaymentStatus = "none"
	EntryPaymentPending   EntryPaymentStatus = "pending"
	EntryPaymentCompleted EntryPaymentStatus = "completed"
	EntryPaymentFailed    EntryPaymentStatus = "failed"
)

// UserEntry is the single participation record per (user, competition) pair.
// It is created on first interaction and updated in place; rows are never
// deleted. An entry with TicketCount == 0 exists only to carry the bookmark
// and like flags.
type UserEntry struct {
	bun.BaseModel `bun:"table:user_entries"`

	ID            int64  `bun:"id,pk,autoincrement" json:"id"`
	UserID        string `bun:"user_id,notnull,unique:user_competition" json:"userId"`
	CompetitionID int64  `bun:"competition_id,notnull,unique:user_competition" json:"competitionId"`

	TicketCount   int     `bun:"ticket_count" json:"ticketCount"`
	TicketNumbers IntList `bun:"ticket_numbers,type:jsonb" json:"ticketNumbers"`

	// EntryProgress is parallel to the competition's EntrySteps: one 0/1
	// flag per step.
	EntryProgress IntList `bun:"entry_progress,type:jsonb" json:"entryProgress"`

	IsBookmarked bool `bun:"is_bookmarked" json:"isBookmarked"`
	IsLiked      bool `bun:"is_liked" json:"isLiked"`

	PaymentStatus EntryPaymentStatus `bun:"payment_status" json:"paymentStatus"`
	// TotalPaid is cumulative minor currency units actually charged.
	TotalPaid int64 `bun:"total_paid" json:"totalPaid"`

	CreatedAt time.Time `bun:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bun:"updated_at" json:"updatedAt"`
}

// HasTickets reports whether the entry holds at least one ticket.
func (e *UserEntry) HasTickets() bool {
	return e != nil && e.TicketCount > 0
}
