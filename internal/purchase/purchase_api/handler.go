package purchase_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-competitions/internal/allocation"
	"ms-competitions/internal/auth"
	"ms-competitions/internal/entry"
	"ms-competitions/internal/entry/redis"
	"ms-competitions/internal/logger"
	"ms-competitions/internal/purchase"
	"ms-competitions/internal/utils"
)

type Handler struct {
	Purchases *purchase.Service
	Logger    *logger.Logger
}

func NewHandler(purchases *purchase.Service, log *logger.Logger) *Handler {
	return &Handler{
		Purchases: purchases,
		Logger:    log,
	}
}

// PurchaseTickets runs the synchronous leg of the payment flow. The response
// is always a PurchaseResult; declines come back as success=false with a
// reason rather than an error status.
func (h *Handler) PurchaseTickets(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFrom(r.Context())
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	var req purchase.PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("PurchaseTickets: failed to decode request body: %v", err))
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	h.Logger.LogPurchase("request", "-", fmt.Sprintf("user=%s competition=%d count=%d", id.UserID, req.CompetitionID, req.TicketCount))

	result, err := h.Purchases.PurchaseTickets(r.Context(), purchase.Identity{
		UserID:   id.UserID,
		Email:    id.Email,
		FullName: id.FullName,
	}, req)
	if err != nil {
		h.writeServiceError(w, "PurchaseTickets", err)
		return
	}
	h.Logger.LogPurchase("result", result.PurchaseID, fmt.Sprintf("success=%t requiresAction=%t", result.Success, result.RequiresAction))

	utils.WriteSuccess(w, http.StatusOK, "Purchase processed", result)
}

// GetPurchase lets a client poll an awaiting_action purchase for its outcome.
func (h *Handler) GetPurchase(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	purchaseID := chi.URLParam(r, "purchaseID")

	p, err := h.Purchases.GetPurchase(r.Context(), userID, purchaseID)
	if err != nil {
		h.writeServiceError(w, "GetPurchase", err)
		return
	}

	utils.WriteSuccess(w, http.StatusOK, "Purchase retrieved", p)
}

// StripeWebhook receives gateway events and drives pending purchases to
// their terminal state.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	h.Logger.Info("API", "StripeWebhook: received webhook event")

	if err := h.Purchases.HandleWebhook(r); err != nil {
		h.Logger.Error("API", fmt.Sprintf("StripeWebhook: failed to process webhook: %v", err))

		var webhookErr *purchase.WebhookError
		if errors.As(err, &webhookErr) {
			h.Logger.Info("API", fmt.Sprintf("StripeWebhook: handling webhook error category=%s, status=%d",
				webhookErr.Category, webhookErr.StatusCode))
			http.Error(w, webhookErr.PublicError, webhookErr.StatusCode)
			return
		}

		http.Error(w, "Webhook processing error", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusOK)
	h.Logger.Info("API", "StripeWebhook: successfully processed webhook event")
}

func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))

	var limitErr *allocation.UserLimitError
	var invErr *allocation.InventoryError
	var unavailErr *allocation.NumbersUnavailableError

	switch {
	case errors.Is(err, purchase.ErrCompetitionNotFound), errors.Is(err, purchase.ErrPurchaseNotFound):
		utils.WriteError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, redis.ErrLockNotAcquired):
		utils.WriteError(w, http.StatusConflict, "Competition is busy", err)
	case errors.Is(err, purchase.ErrCompetitionClosed),
		errors.Is(err, purchase.ErrPaymentMethodNeeded),
		errors.Is(err, entry.ErrAlreadyEntered),
		errors.Is(err, entry.ErrNotFree),
		errors.Is(err, entry.ErrCompetitionClosed),
		errors.Is(err, allocation.ErrSoldOut),
		errors.Is(err, allocation.ErrInvalidRequest),
		errors.As(err, &limitErr),
		errors.As(err, &invErr),
		errors.As(err, &unavailErr):
		utils.WriteError(w, http.StatusBadRequest, "Purchase rejected", err)
	default:
		utils.WriteError(w, http.StatusInternalServerError, "Internal server error", err)
	}
}
