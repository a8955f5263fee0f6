package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// EntryStep is one promotional step a user can complete for a competition
// (e.g. "follow the organizer", "share the draw").
type EntryStep struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
	Link        string `json:"link,omitempty"`
}

// EntrySteps is stored as a JSON column so the ordering survives round trips
// on both Postgres and SQLite.
type EntrySteps []EntryStep

func (s EntrySteps) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *EntrySteps) Scan(src interface{}) error {
	return scanJSON(src, s)
}

// IntList is an ordered list of integers stored as JSON (ticket numbers,
// entry progress flags).
type IntList []int

func (l IntList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *IntList) Scan(src interface{}) error {
	return scanJSON(src, l)
}

func scanJSON(src, dst interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported column type %T", src)
	}
}

type Competition struct {
	bun.BaseModel `bun:"table:competitions"`

	ID          int64  `bun:"id,pk,autoincrement" json:"id"`
	Title       string `bun:"title,notnull" json:"title"`
	Organizer   string `bun:"organizer" json:"organizer"`
	Description string `bun:"description" json:"description"`
	ImageURL    string `bun:"image_url" json:"imageUrl"`
	Platform    string `bun:"platform" json:"platform"`
	Type        string `bun:"type" json:"type"`
	Category    string `bun:"category" json:"category"`

	// Prize is the display value ("PS5 + 2 games"); PrizeValue is the
	// estimated worth in minor currency units, used by the high-value tab.
	Prize      string `bun:"prize" json:"prize"`
	PrizeValue int64  `bun:"prize_value" json:"prizeValue"`

	// TicketPrice is in minor currency units. Zero means free entry.
	TicketPrice       int64 `bun:"ticket_price" json:"ticketPrice"`
	MaxTicketsPerUser int   `bun:"max_tickets_per_user" json:"maxTicketsPerUser"`
	TotalTickets      int   `bun:"total_tickets" json:"totalTickets"`
	SoldTickets       int   `bun:"sold_tickets" json:"soldTickets"`

	// Entries counts distinct users who entered, not tickets.
	Entries int `bun:"entries" json:"entries"`

	EndDate  time.Time `bun:"end_date" json:"endDate"`
	DrawTime time.Time `bun:"draw_time" json:"drawTime"`

	EntrySteps EntrySteps `bun:"entry_steps,type:jsonb" json:"entrySteps"`

	IsVerified bool `bun:"is_verified" json:"isVerified"`
	IsDeleted  bool `bun:"is_deleted" json:"-"`

	CreatedAt time.Time `bun:"created_at" json:"createdAt"`
}

// Remaining returns how many tickets are still available, or -1 when the
// competition has no fixed inventory.
func (c *Competition) Remaining() int {
	if c.TotalTickets <= 0 {
		return -1
	}
	return c.TotalTickets - c.SoldTickets
}

// IsFree reports whether entering this competition costs nothing.
func (c *Competition) IsFree() bool {
	return c.TicketPrice <= 0
}
