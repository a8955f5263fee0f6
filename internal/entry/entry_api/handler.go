package entry_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ms-competitions/internal/allocation"
	"ms-competitions/internal/auth"
	"ms-competitions/internal/entry"
	"ms-competitions/internal/entry/qr"
	"ms-competitions/internal/entry/redis"
	"ms-competitions/internal/logger"
	"ms-competitions/internal/utils"
)

type Handler struct {
	Entries *entry.Service
	QR      *qr.Generator
	Logger  *logger.Logger
}

func NewHandler(entries *entry.Service, qrGen *qr.Generator, log *logger.Logger) *Handler {
	return &Handler{
		Entries: entries,
		QR:      qrGen,
		Logger:  log,
	}
}

func competitionID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "competitionID"), 10, 64)
}

// Enter records a free entry. Paid competitions go through the purchase
// endpoint instead.
func (h *Handler) Enter(w http.ResponseWriter, r *http.Request) {
	compID, err := competitionID(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid competition ID", err)
		return
	}
	userID := auth.UserID(r.Context())
	h.Logger.Info("API", fmt.Sprintf("Enter: user=%s competition=%d", userID, compID))

	var body struct {
		TicketCount int `json:"ticketCount"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			utils.WriteError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	e, err := h.Entries.RecordFreeEntry(r.Context(), userID, compID, body.TicketCount)
	if err != nil {
		h.writeServiceError(w, "Enter", err)
		return
	}

	utils.WriteSuccess(w, http.StatusCreated, "Entry recorded", e)
}

// Bookmark toggles the bookmark flag.
func (h *Handler) Bookmark(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, "Bookmark", h.Entries.ToggleBookmark)
}

// Like toggles the like flag.
func (h *Handler) Like(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, "Like", h.Entries.ToggleLike)
}

func (h *Handler) toggle(w http.ResponseWriter, r *http.Request, op string,
	fn func(ctx context.Context, userID string, competitionID int64) (bool, error)) {
	compID, err := competitionID(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid competition ID", err)
		return
	}
	userID := auth.UserID(r.Context())

	value, err := fn(r.Context(), userID, compID)
	if err != nil {
		h.writeServiceError(w, op, err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("%s: user=%s competition=%d value=%t", op, userID, compID, value))

	utils.WriteSuccess(w, http.StatusOK, op+" toggled", map[string]bool{"value": value})
}

// CompleteStep marks one promotional step done. The index in the URL is
// zero-based.
func (h *Handler) CompleteStep(w http.ResponseWriter, r *http.Request) {
	compID, err := competitionID(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid competition ID", err)
		return
	}
	stepIndex, err := strconv.Atoi(chi.URLParam(r, "stepIndex"))
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid step index", err)
		return
	}
	userID := auth.UserID(r.Context())

	e, err := h.Entries.CompleteEntryStep(r.Context(), userID, compID, stepIndex)
	if err != nil {
		h.writeServiceError(w, "CompleteStep", err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("CompleteStep: user=%s competition=%d step=%d", userID, compID, stepIndex))

	utils.WriteSuccess(w, http.StatusOK, "Step completed", e)
}

// CompleteEntry marks every promotional step done in one call.
func (h *Handler) CompleteEntry(w http.ResponseWriter, r *http.Request) {
	compID, err := competitionID(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid competition ID", err)
		return
	}
	userID := auth.UserID(r.Context())

	e, err := h.Entries.CompleteAllEntrySteps(r.Context(), userID, compID)
	if err != nil {
		h.writeServiceError(w, "CompleteEntry", err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("CompleteEntry: user=%s competition=%d", userID, compID))

	utils.WriteSuccess(w, http.StatusOK, "All steps completed", e)
}

// GetEntry returns the caller's entry for a competition.
func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	compID, err := competitionID(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid competition ID", err)
		return
	}
	userID := auth.UserID(r.Context())

	e, err := h.Entries.EntryFor(r.Context(), userID, compID)
	if err != nil {
		h.writeServiceError(w, "GetEntry", err)
		return
	}
	if e == nil {
		utils.WriteError(w, http.StatusNotFound, "Entry not found", entry.ErrEntryNotFound)
		return
	}

	utils.WriteSuccess(w, http.StatusOK, "Entry retrieved", e)
}

// EntryQR streams the caller's encrypted entry pass as a PNG.
func (h *Handler) EntryQR(w http.ResponseWriter, r *http.Request) {
	compID, err := competitionID(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid competition ID", err)
		return
	}
	userID := auth.UserID(r.Context())

	e, err := h.Entries.EntryFor(r.Context(), userID, compID)
	if err != nil {
		h.writeServiceError(w, "EntryQR", err)
		return
	}
	if e == nil || !e.HasTickets() {
		utils.WriteError(w, http.StatusNotFound, "No tickets for this competition", entry.ErrEntryNotFound)
		return
	}

	png, err := h.QR.GenerateEntryQR(e)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("EntryQR: failed to generate QR: %v", err))
		utils.WriteError(w, http.StatusInternalServerError, "Failed to generate QR code", err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("EntryQR: issued pass for user=%s competition=%d", userID, compID))

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(png); err != nil {
		h.Logger.Error("API", fmt.Sprintf("EntryQR: failed to write response: %v", err))
	}
}

// MyEntries lists all of the caller's entries.
func (h *Handler) MyEntries(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	entries, err := h.Entries.EntriesByUser(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, "MyEntries", err)
		return
	}

	utils.WriteSuccess(w, http.StatusOK, "Entries retrieved", entries)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))

	var limitErr *allocation.UserLimitError
	var invErr *allocation.InventoryError
	var unavailErr *allocation.NumbersUnavailableError

	switch {
	case errors.Is(err, entry.ErrCompetitionNotFound), errors.Is(err, entry.ErrEntryNotFound):
		utils.WriteError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, redis.ErrLockNotAcquired):
		utils.WriteError(w, http.StatusConflict, "Competition is busy", err)
	case errors.Is(err, entry.ErrAlreadyEntered),
		errors.Is(err, entry.ErrNotFree),
		errors.Is(err, entry.ErrCompetitionClosed),
		errors.Is(err, entry.ErrInvalidStep),
		errors.Is(err, allocation.ErrSoldOut),
		errors.Is(err, allocation.ErrInvalidRequest),
		errors.As(err, &limitErr),
		errors.As(err, &invErr),
		errors.As(err, &unavailErr):
		utils.WriteError(w, http.StatusBadRequest, "Entry rejected", err)
	default:
		utils.WriteError(w, http.StatusInternalServerError, "Internal server error", err)
	}
}
