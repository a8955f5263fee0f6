package purchase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"ms-competitions/internal/allocation"
	compdb "ms-competitions/internal/competition/db"
	"ms-competitions/internal/config"
	"ms-competitions/internal/kafka"
	"ms-competitions/internal/models"
	purchasedb "ms-competitions/internal/purchase/db"
)

var (
	ErrCompetitionNotFound = errors.New("competition not found")
	ErrCompetitionClosed   = errors.New("competition has ended")
	ErrPaymentMethodNeeded = errors.New("payment method is required for paid competitions")
	ErrPurchaseNotFound    = errors.New("purchase not found")
)

// Gateway abstracts the payment provider; StripeGateway is the production
// implementation.
type Gateway interface {
	EnsureCustomer(ctx context.Context, user *models.User) (string, error)
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	Refund(ctx context.Context, paymentIntentID string) error
	ParseWebhook(r *http.Request) (*WebhookEvent, error)
}

type Store interface {
	CreatePurchase(ctx context.Context, p *models.Purchase) error
	UpdatePurchase(ctx context.Context, p *models.Purchase) error
	GetPurchaseByID(ctx context.Context, id string) (*models.Purchase, error)
	GetPurchaseByIntent(ctx context.Context, paymentIntentID string) (*models.Purchase, error)
	GetOrCreateUser(ctx context.Context, id, email, fullName string) (*models.User, error)
	SaveStripeCustomerID(ctx context.Context, userID, customerID string) error
}

type CompetitionStore interface {
	GetByID(ctx context.Context, id int64) (*models.Competition, error)
}

type EntryStore interface {
	GetEntry(ctx context.Context, userID string, competitionID int64) (*models.UserEntry, error)
	TakenNumbers(ctx context.Context, competitionID int64) (map[int]bool, error)
}

// EntryApplier commits paid allocations; implemented by entry.Service.
type EntryApplier interface {
	RecordFreeEntry(ctx context.Context, userID string, competitionID int64, count int) (*models.UserEntry, error)
	ApplyPaidPurchase(ctx context.Context, userID string, comp *models.Competition, numbers []int, amountPaid int64) (*models.UserEntry, error)
}

type Locker interface {
	Acquire(ctx context.Context, competitionID int64, token string) error
	Release(ctx context.Context, competitionID int64, token string) error
}

type Publisher interface {
	PublishPaymentSucceeded(ev kafka.PaymentEvent) error
	PublishPaymentFailed(ev kafka.PaymentEvent) error
}

// Identity is the verified token identity attached to a purchase.
type Identity struct {
	UserID   string
	Email    string
	FullName string
}

type PurchaseRequest struct {
	CompetitionID   int64  `json:"competitionId"`
	TicketCount     int    `json:"ticketCount"`
	PaymentMethodID string `json:"paymentMethodId"`
	SelectedNumbers []int  `json:"selectedNumbers,omitempty"`
}

type Service struct {
	store    Store
	comps    CompetitionStore
	entryDB  EntryStore
	entries  EntryApplier
	gateway  Gateway
	locker   Locker
	producer Publisher
	cfg      config.StripeConfig
}

func NewService(store Store, comps CompetitionStore, entryDB EntryStore, entries EntryApplier,
	gateway Gateway, locker Locker, producer Publisher, cfg config.StripeConfig) *Service {
	return &Service{
		store:    store,
		comps:    comps,
		entryDB:  entryDB,
		entries:  entries,
		gateway:  gateway,
		locker:   locker,
		producer: producer,
		cfg:      cfg,
	}
}

func (s *Service) competition(ctx context.Context, id int64) (*models.Competition, error) {
	comp, err := s.comps.GetByID(ctx, id)
	if errors.Is(err, compdb.ErrNotFound) {
		return nil, ErrCompetitionNotFound
	}
	if err != nil {
		return nil, err
	}
	if comp.IsDeleted {
		return nil, ErrCompetitionNotFound
	}
	return comp, nil
}

// PurchaseTickets runs the full reconciliation flow. The competition lock is
// held from the capacity precheck through the charge and the commit, so no
// concurrent purchase can invalidate an allocation after money moved.
func (s *Service) PurchaseTickets(ctx context.Context, id Identity, req PurchaseRequest) (*models.PurchaseResult, error) {
	if req.TicketCount < 1 {
		req.TicketCount = 1
	}

	comp, err := s.competition(ctx, req.CompetitionID)
	if err != nil {
		return nil, err
	}
	if !comp.EndDate.IsZero() && comp.EndDate.Before(time.Now()) {
		return nil, ErrCompetitionClosed
	}

	// Free competitions never touch the gateway.
	if comp.IsFree() {
		e, err := s.entries.RecordFreeEntry(ctx, id.UserID, comp.ID, req.TicketCount)
		if err != nil {
			return nil, err
		}
		return &models.PurchaseResult{
			Success:       true,
			TicketCount:   e.TicketCount,
			TicketNumbers: e.TicketNumbers,
		}, nil
	}

	if req.PaymentMethodID == "" {
		return nil, ErrPaymentMethodNeeded
	}

	token := uuid.New().String()
	if err := s.locker.Acquire(ctx, comp.ID, token); err != nil {
		return nil, err
	}
	defer s.locker.Release(ctx, comp.ID, token)

	// Re-read inside the lock; the earlier read raced other purchases.
	comp, err = s.competition(ctx, req.CompetitionID)
	if err != nil {
		return nil, err
	}

	existing := 0
	if e, err := s.entryDB.GetEntry(ctx, id.UserID, comp.ID); err != nil {
		return nil, err
	} else if e != nil {
		existing = e.TicketCount
	}

	taken, err := s.entryDB.TakenNumbers(ctx, comp.ID)
	if err != nil {
		return nil, err
	}

	// Allocation dry run before any money moves.
	res, err := allocation.Allocate(comp, existing, req.TicketCount, req.SelectedNumbers, taken)
	if err != nil {
		return nil, err
	}

	user, err := s.store.GetOrCreateUser(ctx, id.UserID, id.Email, id.FullName)
	if err != nil {
		return nil, err
	}
	customerID, err := s.gateway.EnsureCustomer(ctx, user)
	if err != nil {
		return nil, err
	}
	if user.StripeCustomerID == "" {
		if err := s.store.SaveStripeCustomerID(ctx, user.ID, customerID); err != nil {
			return nil, err
		}
		user.StripeCustomerID = customerID
	}

	amount := comp.TicketPrice * int64(req.TicketCount)
	p := &models.Purchase{
		ID:              uuid.New().String(),
		UserID:          id.UserID,
		CompetitionID:   comp.ID,
		TicketCount:     req.TicketCount,
		SelectedNumbers: res.Numbers,
		Amount:          amount,
		Currency:        s.cfg.Currency,
		Status:          models.PurchaseInitiated,
	}
	if err := s.store.CreatePurchase(ctx, p); err != nil {
		return nil, err
	}

	chargeCtx := ctx
	if s.cfg.ChargeTimeout > 0 {
		var cancel context.CancelFunc
		chargeCtx, cancel = context.WithTimeout(ctx, s.cfg.ChargeTimeout)
		defer cancel()
	}

	charge, err := s.gateway.Charge(chargeCtx, ChargeRequest{
		PurchaseID:      p.ID,
		CustomerID:      customerID,
		PaymentMethodID: req.PaymentMethodID,
		Amount:          amount,
		Currency:        s.cfg.Currency,
		Description:     fmt.Sprintf("%d ticket(s) for %s", req.TicketCount, comp.Title),
		Metadata: map[string]string{
			"purchase_id":    p.ID,
			"user_id":        id.UserID,
			"competition_id": fmt.Sprintf("%d", comp.ID),
			"ticket_count":   fmt.Sprintf("%d", req.TicketCount),
		},
	})
	if err != nil {
		// Gateway unreachable or timed out: nothing was mutated.
		s.markFailed(ctx, p, "payment gateway error")
		return &models.PurchaseResult{
			Success:    false,
			PurchaseID: p.ID,
			Reason:     "payment gateway error, you have not been charged",
		}, nil
	}

	p.PaymentIntentID = charge.PaymentIntentID

	switch charge.Status {
	case ChargeSucceeded:
		if err := s.finalizeLocked(ctx, p, comp, res.Numbers); err != nil {
			return nil, err
		}
		return &models.PurchaseResult{
			Success:       true,
			PurchaseID:    p.ID,
			TicketCount:   req.TicketCount,
			TicketNumbers: res.Numbers,
		}, nil

	case ChargeRequiresAction:
		p.Status = models.PurchaseAwaitingAction
		if err := s.store.UpdatePurchase(ctx, p); err != nil {
			return nil, err
		}
		return &models.PurchaseResult{
			Success:        false,
			PurchaseID:     p.ID,
			RequiresAction: true,
			ClientSecret:   charge.ClientSecret,
		}, nil

	case ChargeProcessing:
		// The webhook will deliver the outcome.
		p.Status = models.PurchaseAwaitingAction
		if err := s.store.UpdatePurchase(ctx, p); err != nil {
			return nil, err
		}
		return &models.PurchaseResult{
			Success:    false,
			PurchaseID: p.ID,
			Reason:     "payment is processing, tickets will be assigned once it settles",
		}, nil

	default:
		s.markFailed(ctx, p, charge.FailureReason)
		return &models.PurchaseResult{
			Success:    false,
			PurchaseID: p.ID,
			Reason:     charge.FailureReason,
		}, nil
	}
}

// finalizeLocked commits a paid allocation. Caller must hold the competition
// lock and must have validated numbers against the taken set under it.
func (s *Service) finalizeLocked(ctx context.Context, p *models.Purchase, comp *models.Competition, numbers []int) error {
	if _, err := s.entries.ApplyPaidPurchase(ctx, p.UserID, comp, numbers, p.Amount); err != nil {
		return err
	}

	p.Status = models.PurchaseConfirmed
	p.SelectedNumbers = numbers
	if err := s.store.UpdatePurchase(ctx, p); err != nil {
		return err
	}

	s.publishOutcome(p, true, "")
	return nil
}

// GetPurchase returns the purchase only to its owner.
func (s *Service) GetPurchase(ctx context.Context, userID, purchaseID string) (*models.Purchase, error) {
	p, err := s.store.GetPurchaseByID(ctx, purchaseID)
	if errors.Is(err, purchasedb.ErrPurchaseNotFound) {
		return nil, ErrPurchaseNotFound
	}
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, ErrPurchaseNotFound
	}
	return p, nil
}

// HandleWebhook drives awaiting_action purchases to their terminal state.
// Returned errors are *WebhookError for HTTP mapping.
func (s *Service) HandleWebhook(r *http.Request) error {
	ev, err := s.gateway.ParseWebhook(r)
	if err != nil {
		return err
	}

	ctx := r.Context()
	switch ev.Type {
	case "payment_intent.succeeded":
		if err := s.finalizeFromWebhook(ctx, ev); err != nil {
			return &WebhookError{
				Category:      "processing",
				StatusCode:    http.StatusInternalServerError,
				PublicError:   "Failed to process payment",
				InternalError: fmt.Sprintf("Failed to finalize purchase for intent %s: %v", ev.PaymentIntentID, err),
				OriginalErr:   err,
			}
		}
	case "payment_intent.payment_failed":
		if err := s.failFromWebhook(ctx, ev); err != nil {
			return &WebhookError{
				Category:      "processing",
				StatusCode:    http.StatusInternalServerError,
				PublicError:   "Failed to record payment failure",
				InternalError: fmt.Sprintf("Failed to mark purchase failed for intent %s: %v", ev.PaymentIntentID, err),
				OriginalErr:   err,
			}
		}
	}
	return nil
}

func (s *Service) purchaseForEvent(ctx context.Context, ev *WebhookEvent) (*models.Purchase, error) {
	if ev.PurchaseID != "" {
		p, err := s.store.GetPurchaseByID(ctx, ev.PurchaseID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, purchasedb.ErrPurchaseNotFound) {
			return nil, err
		}
	}
	return s.store.GetPurchaseByIntent(ctx, ev.PaymentIntentID)
}

// finalizeFromWebhook re-acquires the competition lock, re-validates the
// stored numbers, and commits. Already-confirmed purchases are a no-op, so
// Stripe retries and the synchronous path never double-commit.
func (s *Service) finalizeFromWebhook(ctx context.Context, ev *WebhookEvent) error {
	p, err := s.purchaseForEvent(ctx, ev)
	if errors.Is(err, purchasedb.ErrPurchaseNotFound) {
		// Intent from another system or an already-reconciled replay.
		return nil
	}
	if err != nil {
		return err
	}
	if p.Status == models.PurchaseConfirmed {
		return nil
	}

	token := uuid.New().String()
	if err := s.locker.Acquire(ctx, p.CompetitionID, token); err != nil {
		return err
	}
	defer s.locker.Release(ctx, p.CompetitionID, token)

	// Re-read inside the lock: the synchronous path confirms purchases
	// while holding it, and Stripe sends the succeeded event even for
	// synchronously-confirmed intents. The pre-lock snapshot is stale by
	// the time the lock is ours.
	p, err = s.store.GetPurchaseByID(ctx, p.ID)
	if err != nil {
		return err
	}
	if p.Status == models.PurchaseConfirmed {
		return nil
	}
	if p.PaymentIntentID == "" {
		p.PaymentIntentID = ev.PaymentIntentID
	}

	comp, err := s.competition(ctx, p.CompetitionID)
	if err != nil {
		return err
	}

	existing := 0
	if e, err := s.entryDB.GetEntry(ctx, p.UserID, comp.ID); err != nil {
		return err
	} else if e != nil {
		existing = e.TicketCount
	}

	taken, err := s.entryDB.TakenNumbers(ctx, comp.ID)
	if err != nil {
		return err
	}

	numbers := []int(p.SelectedNumbers)
	// The numbers were reserved before the lock was released; another
	// purchase may have taken them while 3-D Secure was pending.
	_, err = allocation.Allocate(comp, existing, p.TicketCount, numbers, taken)
	if err != nil {
		var unavailErr *allocation.NumbersUnavailableError
		if errors.As(err, &unavailErr) {
			// Fall back to sequential numbers for the paid count.
			res, seqErr := allocation.Allocate(comp, existing, p.TicketCount, nil, taken)
			if seqErr != nil {
				return s.refundAndFail(ctx, p, seqErr)
			}
			numbers = res.Numbers
		} else {
			return s.refundAndFail(ctx, p, err)
		}
	}

	return s.finalizeLocked(ctx, p, comp, numbers)
}

// refundAndFail handles a charge whose tickets can no longer be granted:
// the purchase is marked failed and the money goes back.
func (s *Service) refundAndFail(ctx context.Context, p *models.Purchase, cause error) error {
	s.markFailed(ctx, p, cause.Error())
	if p.PaymentIntentID != "" {
		if err := s.gateway.Refund(ctx, p.PaymentIntentID); err != nil {
			return fmt.Errorf("purchase %s failed (%v) and refund errored: %w", p.ID, cause, err)
		}
	}
	return nil
}

func (s *Service) failFromWebhook(ctx context.Context, ev *WebhookEvent) error {
	p, err := s.purchaseForEvent(ctx, ev)
	if errors.Is(err, purchasedb.ErrPurchaseNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if p.Status == models.PurchaseConfirmed || p.Status == models.PurchaseFailed {
		return nil
	}

	token := uuid.New().String()
	if err := s.locker.Acquire(ctx, p.CompetitionID, token); err != nil {
		return err
	}
	defer s.locker.Release(ctx, p.CompetitionID, token)

	// Same stale-snapshot hazard as the succeeded path: never overwrite a
	// purchase the synchronous flow settled while this handler waited.
	p, err = s.store.GetPurchaseByID(ctx, p.ID)
	if err != nil {
		return err
	}
	if p.Status == models.PurchaseConfirmed || p.Status == models.PurchaseFailed {
		return nil
	}

	reason := ev.FailureReason
	if reason == "" {
		reason = "payment failed"
	}
	s.markFailed(ctx, p, reason)
	return nil
}

func (s *Service) markFailed(ctx context.Context, p *models.Purchase, reason string) {
	p.Status = models.PurchaseFailed
	p.FailureReason = reason
	if err := s.store.UpdatePurchase(ctx, p); err != nil {
		fmt.Printf("Failed to mark purchase %s as failed: %v\n", p.ID, err)
	}
	s.publishOutcome(p, false, reason)
}

func (s *Service) publishOutcome(p *models.Purchase, succeeded bool, reason string) {
	if s.producer == nil {
		return
	}
	ev := kafka.PaymentEvent{
		PurchaseID:    p.ID,
		UserID:        p.UserID,
		CompetitionID: p.CompetitionID,
		TicketCount:   p.TicketCount,
		Amount:        p.Amount,
		Currency:      p.Currency,
		Reason:        reason,
	}
	var err error
	if succeeded {
		err = s.producer.PublishPaymentSucceeded(ev)
	} else {
		err = s.producer.PublishPaymentFailed(ev)
	}
	if err != nil {
		fmt.Printf("Failed to publish payment event for purchase %s: %v\n", p.ID, err)
	}
}
