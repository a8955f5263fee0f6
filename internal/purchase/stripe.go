package purchase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"

	"ms-competitions/internal/config"
	"ms-competitions/internal/logger"
	"ms-competitions/internal/models"
)

var ErrStripeClientInitFailed = errors.New("failed to initialize Stripe client")

// ChargeStatus is the gateway outcome the service branches on.
type ChargeStatus string

const (
	ChargeSucceeded      ChargeStatus = "succeeded"
	ChargeProcessing     ChargeStatus = "processing"
	ChargeRequiresAction ChargeStatus = "requires_action"
	ChargeFailed         ChargeStatus = "failed"
)

type ChargeRequest struct {
	PurchaseID      string
	CustomerID      string
	PaymentMethodID string
	// Amount is in minor currency units.
	Amount      int64
	Currency    string
	Description string
	Metadata    map[string]string
}

type ChargeResult struct {
	PaymentIntentID string
	Status          ChargeStatus
	ClientSecret    string
	FailureReason   string
}

// WebhookEvent is the service-facing view of a verified gateway event.
type WebhookEvent struct {
	Type            string
	PaymentIntentID string
	PurchaseID      string
	FailureReason   string
}

// WebhookError classifies webhook failures for HTTP mapping; PublicError is
// safe to return to the caller, InternalError goes to the logs.
type WebhookError struct {
	Category      string // "configuration", "validation", "processing"
	StatusCode    int
	PublicError   string
	InternalError string
	OriginalErr   error
}

func (e *WebhookError) Error() string {
	return e.InternalError
}

// StripeGateway is the production Gateway implementation on stripe-go.
type StripeGateway struct {
	client        *client.API
	webhookSecret string
	log           *logger.Logger
}

func NewStripeGateway(cfg config.StripeConfig, log *logger.Logger) (*StripeGateway, error) {
	if cfg.SecretKey == "" {
		log.Error("STRIPE", "STRIPE_SECRET_KEY environment variable not set")
		return nil, ErrStripeClientInitFailed
	}

	sc := client.New(cfg.SecretKey, nil)
	if sc == nil {
		log.Error("STRIPE", "Failed to initialize Stripe client")
		return nil, ErrStripeClientInitFailed
	}

	log.Info("STRIPE", "Stripe client initialized successfully")
	return &StripeGateway{
		client:        sc,
		webhookSecret: cfg.WebhookSecret,
		log:           log,
	}, nil
}

// EnsureCustomer returns the user's Stripe customer ID, creating the customer
// on first payment.
func (g *StripeGateway) EnsureCustomer(ctx context.Context, user *models.User) (string, error) {
	if user.StripeCustomerID != "" {
		return user.StripeCustomerID, nil
	}

	params := &stripe.CustomerParams{
		Email: stripe.String(user.Email),
		Name:  stripe.String(user.FullName),
	}
	params.Context = ctx
	params.AddMetadata("user_id", user.ID)

	cust, err := g.client.Customers.New(params)
	if err != nil {
		g.log.Error("STRIPE", fmt.Sprintf("Failed to create customer for user %s: %v", user.ID, err))
		return "", err
	}
	g.log.Info("STRIPE", fmt.Sprintf("Created Stripe customer %s for user %s", cust.ID, user.ID))
	return cust.ID, nil
}

// Charge confirms a PaymentIntent for the purchase. The context carries the
// charge timeout so a hung gateway call cannot hold the competition lock past
// its TTL.
func (g *StripeGateway) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	g.log.Info("STRIPE", fmt.Sprintf("Creating payment intent for purchase %s (%d %s)", req.PurchaseID, req.Amount, req.Currency))

	piParams := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(req.Amount),
		Currency:           stripe.String(req.Currency),
		Customer:           stripe.String(req.CustomerID),
		PaymentMethod:      stripe.String(req.PaymentMethodID),
		Description:        stripe.String(req.Description),
		Metadata:           req.Metadata,
		ConfirmationMethod: stripe.String("automatic"),
		Confirm:            stripe.Bool(true),
		PaymentMethodTypes: []*string{stripe.String("card")},
	}
	piParams.Context = ctx

	pi, err := g.client.PaymentIntents.New(piParams)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) {
			// Declines come back as errors; surface the card message
			// rather than failing the whole request.
			g.log.Warn("STRIPE", fmt.Sprintf("Charge declined for purchase %s: %v", req.PurchaseID, stripeErr.Msg))
			return &ChargeResult{
				Status:        ChargeFailed,
				FailureReason: stripeErr.Msg,
			}, nil
		}
		g.log.Error("STRIPE", fmt.Sprintf("Failed to create payment intent for purchase %s: %v", req.PurchaseID, err))
		return nil, err
	}
	g.log.Info("STRIPE", fmt.Sprintf("Payment intent %s created for purchase %s with status %s", pi.ID, req.PurchaseID, pi.Status))

	result := &ChargeResult{PaymentIntentID: pi.ID, ClientSecret: pi.ClientSecret}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		result.Status = ChargeSucceeded
	case stripe.PaymentIntentStatusProcessing:
		result.Status = ChargeProcessing
	case stripe.PaymentIntentStatusRequiresAction:
		result.Status = ChargeRequiresAction
	default:
		result.Status = ChargeFailed
		result.FailureReason = fmt.Sprintf("payment not completed (status %s)", pi.Status)
	}
	return result, nil
}

// Refund reverses a charge whose tickets could not be granted.
func (g *StripeGateway) Refund(ctx context.Context, paymentIntentID string) error {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentIntentID),
	}
	params.Context = ctx

	_, err := g.client.Refunds.New(params)
	if err != nil {
		g.log.Error("STRIPE", fmt.Sprintf("Failed to refund payment intent %s: %v", paymentIntentID, err))
		return err
	}
	g.log.Info("STRIPE", fmt.Sprintf("Refunded payment intent %s", paymentIntentID))
	return nil
}

// ParseWebhook verifies the Stripe signature and extracts the fields the
// reconciliation service needs. Errors are always *WebhookError.
func (g *StripeGateway) ParseWebhook(r *http.Request) (*WebhookEvent, error) {
	if g.webhookSecret == "" {
		g.log.Error("WEBHOOK", "Stripe webhook secret is not configured")
		return nil, &WebhookError{
			Category:      "configuration",
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Webhook processing error",
			InternalError: "Stripe webhook secret is not configured",
		}
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		g.log.Error("WEBHOOK", fmt.Sprintf("Failed to read webhook payload: %v", err))
		return nil, &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid webhook payload",
			InternalError: fmt.Sprintf("Failed to read webhook payload: %v", err),
			OriginalErr:   err,
		}
	}

	opts := webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	}
	event, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), g.webhookSecret, opts)
	if err != nil {
		g.log.Error("WEBHOOK", fmt.Sprintf("Webhook signature verification failed: %v", err))
		return nil, &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid webhook signature",
			InternalError: fmt.Sprintf("Webhook signature verification failed: %v", err),
			OriginalErr:   err,
		}
	}

	g.log.Info("WEBHOOK", fmt.Sprintf("Processing Stripe webhook event: %s", event.Type))

	ev := &WebhookEvent{Type: string(event.Type)}
	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			g.log.Error("WEBHOOK", fmt.Sprintf("Failed to unmarshal payment intent: %v", err))
			return nil, &WebhookError{
				Category:      "processing",
				StatusCode:    http.StatusBadRequest,
				PublicError:   "Invalid event data",
				InternalError: fmt.Sprintf("Failed to unmarshal payment intent: %v", err),
				OriginalErr:   err,
			}
		}
		ev.PaymentIntentID = pi.ID
		ev.PurchaseID = pi.Metadata["purchase_id"]
		if pi.LastPaymentError != nil {
			ev.FailureReason = pi.LastPaymentError.Msg
		}
	}
	return ev, nil
}
