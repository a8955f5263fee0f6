package models

import (
	"time"

	"github.com/uptrace/bun"
)

type User struct {
	bun.BaseModel `bun:"table:users"`

	// ID is the OIDC subject claim.
	ID       string `bun:"id,pk" json:"id"`
	Email    string `bun:"email" json:"email"`
	FullName string `bun:"full_name" json:"fullName"`

	// StripeCustomerID is set the first time the user pays and reused for
	// every later charge.
	StripeCustomerID string `bun:"stripe_customer_id,nullzero" json:"-"`

	CreatedAt time.Time `bun:"created_at,notnull" json:"createdAt"`
}
