package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"ms-competitions/internal/models"
)

var ErrPurchaseNotFound = errors.New("purchase not found")

type DB struct {
	Bun *bun.DB
}

func NewDB(bunDB *bun.DB) *DB {
	return &DB{Bun: bunDB}
}

// ---------------- PURCHASES ----------------

func (d *DB) CreatePurchase(ctx context.Context, p *models.Purchase) error {
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	_, err := d.Bun.NewInsert().Model(p).Exec(ctx)
	return err
}

func (d *DB) UpdatePurchase(ctx context.Context, p *models.Purchase) error {
	p.UpdatedAt = time.Now()
	_, err := d.Bun.NewUpdate().
		Model(p).
		Column("status", "payment_intent_id", "failure_reason", "selected_numbers", "updated_at").
		Where("id = ?", p.ID).
		Exec(ctx)
	return err
}

func (d *DB) GetPurchaseByID(ctx context.Context, id string) (*models.Purchase, error) {
	var p models.Purchase
	err := d.Bun.NewSelect().
		Model(&p).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPurchaseNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (d *DB) GetPurchaseByIntent(ctx context.Context, paymentIntentID string) (*models.Purchase, error) {
	var p models.Purchase
	err := d.Bun.NewSelect().
		Model(&p).
		Where("payment_intent_id = ?", paymentIntentID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPurchaseNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ---------------- USERS ----------------

// GetOrCreateUser upserts the identity row for an OIDC subject. Email and
// name refresh on every call since they come from the verified token.
func (d *DB) GetOrCreateUser(ctx context.Context, id, email, fullName string) (*models.User, error) {
	var user models.User
	err := d.Bun.NewSelect().
		Model(&user).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		user = models.User{
			ID:        id,
			Email:     email,
			FullName:  fullName,
			CreatedAt: time.Now(),
		}
		if _, err := d.Bun.NewInsert().Model(&user).Exec(ctx); err != nil {
			return nil, err
		}
		return &user, nil
	}
	if err != nil {
		return nil, err
	}

	if (email != "" && user.Email != email) || (fullName != "" && user.FullName != fullName) {
		if email != "" {
			user.Email = email
		}
		if fullName != "" {
			user.FullName = fullName
		}
		if _, err := d.Bun.NewUpdate().
			Model(&user).
			Column("email", "full_name").
			Where("id = ?", id).
			Exec(ctx); err != nil {
			return nil, err
		}
	}
	return &user, nil
}

// SaveStripeCustomerID persists the gateway customer so later charges reuse it.
func (d *DB) SaveStripeCustomerID(ctx context.Context, userID, customerID string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.User)(nil)).
		Set("stripe_customer_id = ?", customerID).
		Where("id = ?", userID).
		Exec(ctx)
	return err
}
