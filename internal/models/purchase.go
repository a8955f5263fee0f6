package models

import (
	"time"

	"github.com/uptrace/bun"
)

type PurchaseStatus string

const (
	PurchaseInitiated      PurchaseStatus = "initiated"
	PurchaseAwaitingAction PurchaseStatus = "awaiting_action"
	PurchaseConfirmed      PurchaseStatus = "confirmed"
	PurchaseFailed         PurchaseStatus = "failed"
)

// Purchase tracks one charge attempt through the reconciliation state
// machine: initiated -> awaiting_action -> confirmed | failed. Tickets are
// only ever granted by the confirmed transition.
type Purchase struct {
	bun.BaseModel `bun:"table:purchases"`

	ID            string `bun:"id,pk" json:"id"`
	UserID        string `bun:"user_id,notnull" json:"userId"`
	CompetitionID int64  `bun:"competition_id,notnull" json:"competitionId"`

	TicketCount     int     `bun:"ticket_count" json:"ticketCount"`
	SelectedNumbers IntList `bun:"selected_numbers,type:jsonb" json:"selectedNumbers,omitempty"`

	// Amount is in minor currency units.
	Amount   int64  `bun:"amount" json:"amount"`
	Currency string `bun:"currency" json:"currency"`

	Status          PurchaseStatus `bun:"status" json:"status"`
	PaymentIntentID string         `bun:"payment_intent_id,nullzero" json:"-"`
	FailureReason   string         `bun:"failure_reason,nullzero" json:"failureReason,omitempty"`

	CreatedAt time.Time `bun:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bun:"updated_at" json:"updatedAt"`
}

// PurchaseResult is what the purchase endpoint returns to the client.
type PurchaseResult struct {
	Success        bool   `json:"success"`
	PurchaseID     string `json:"purchaseId,omitempty"`
	TicketCount    int    `json:"ticketCount,omitempty"`
	TicketNumbers  []int  `json:"ticketNumbers,omitempty"`
	RequiresAction bool   `json:"requiresAction,omitempty"`
	// ClientSecret lets the client complete 3-D Secure with the gateway;
	// the webhook then finalizes the purchase.
	ClientSecret string `json:"clientSecret,omitempty"`
	Reason       string `json:"reason,omitempty"`
}
