package competition_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ms-competitions/internal/auth"
	"ms-competitions/internal/competition"
	"ms-competitions/internal/competition/db"
	"ms-competitions/internal/entry"
	"ms-competitions/internal/logger"
	"ms-competitions/internal/models"
	"ms-competitions/internal/projection"
	"ms-competitions/internal/utils"
)

type Handler struct {
	Competitions *competition.Service
	Entries      *entry.Service
	Logger       *logger.Logger
}

func NewHandler(competitions *competition.Service, entries *entry.Service, log *logger.Logger) *Handler {
	return &Handler{
		Competitions: competitions,
		Entries:      entries,
		Logger:       log,
	}
}

func competitionID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "competitionID"), 10, 64)
}

// List serves the browse page: filters, tabs and sorts from query params,
// with the caller's entry status merged in when a token is present.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id, authed := auth.IdentityFrom(r.Context())

	filter := db.ListFilter{
		Search:   q.Get("search"),
		Category: q.Get("category"),
		Platform: q.Get("platform"),
		Type:     q.Get("type"),
		Tab:      q.Get("tab"),
		SortBy:   q.Get("sortBy"),
	}
	if authed {
		filter.UserID = id.UserID
	}
	// Soft-deleted rows are admin-only.
	if q.Get("includeDeleted") == "true" && authed && id.IsAdmin() {
		filter.IncludeDeleted = true
	}

	h.Logger.Info("API", fmt.Sprintf("List: tab=%q sortBy=%q search=%q", filter.Tab, filter.SortBy, filter.Search))

	comps, err := h.Competitions.List(r.Context(), filter)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("List: failed to list competitions: %v", err))
		utils.WriteError(w, http.StatusInternalServerError, "Failed to list competitions", err)
		return
	}

	views := make([]*projection.CompetitionView, 0, len(comps))
	if !authed {
		for i := range comps {
			views = append(views, projection.CompetitionWithStatus(&comps[i], nil, nil))
		}
		utils.WriteSuccess(w, http.StatusOK, "Competitions retrieved", views)
		return
	}

	entriesByComp, winsByComp, err := h.userStatusIndex(r, id.UserID)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Failed to load entry status", err)
		return
	}
	for i := range comps {
		views = append(views, projection.CompetitionWithStatus(
			&comps[i], entriesByComp[comps[i].ID], winsByComp[comps[i].ID]))
	}
	utils.WriteSuccess(w, http.StatusOK, "Competitions retrieved", views)
}

func (h *Handler) userStatusIndex(r *http.Request, userID string) (map[int64]*models.UserEntry, map[int64]*models.UserWin, error) {
	entries, err := h.Entries.EntriesByUser(r.Context(), userID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("List: failed to load entries for user %s: %v", userID, err))
		return nil, nil, err
	}
	wins, err := h.Entries.WinsByUser(r.Context(), userID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("List: failed to load wins for user %s: %v", userID, err))
		return nil, nil, err
	}

	entriesByComp := make(map[int64]*models.UserEntry, len(entries))
	for i := range entries {
		entriesByComp[entries[i].CompetitionID] = &entries[i]
	}
	winsByComp := make(map[int64]*models.UserWin, len(wins))
	for i := range wins {
		winsByComp[wins[i].CompetitionID] = &wins[i]
	}
	return entriesByComp, winsByComp, nil
}

// Get serves a single competition with the caller's status merged in.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	compID, err := competitionID(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid competition ID", err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("Get: competitionID=%d", compID))

	comp, err := h.Competitions.Get(r.Context(), compID)
	if err != nil {
		h.writeServiceError(w, "Get", err)
		return
	}

	var userEntry *models.UserEntry
	var win *models.UserWin
	if id, ok := auth.IdentityFrom(r.Context()); ok {
		if userEntry, err = h.Entries.EntryFor(r.Context(), id.UserID, compID); err != nil {
			utils.WriteError(w, http.StatusInternalServerError, "Failed to load entry status", err)
			return
		}
		if win, err = h.Entries.WinFor(r.Context(), id.UserID, compID); err != nil {
			utils.WriteError(w, http.StatusInternalServerError, "Failed to load win status", err)
			return
		}
	}

	utils.WriteSuccess(w, http.StatusOK, "Competition retrieved", projection.CompetitionWithStatus(comp, userEntry, win))
}

// Create is the admin endpoint for publishing a new competition.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var comp models.Competition
	if err := json.NewDecoder(r.Body).Decode(&comp); err != nil {
		h.Logger.Error("API", fmt.Sprintf("Create: failed to decode request body: %v", err))
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	created, err := h.Competitions.Create(r.Context(), &comp)
	if err != nil {
		h.writeServiceError(w, "Create", err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("Create: competition %d created", created.ID))

	utils.WriteSuccess(w, http.StatusCreated, "Competition created", created)
}

// Update applies a merge patch to a competition.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	compID, err := competitionID(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid competition ID", err)
		return
	}

	var patch map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		h.Logger.Error("API", fmt.Sprintf("Update: failed to decode patch: %v", err))
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	updated, err := h.Competitions.Update(r.Context(), compID, patch)
	if err != nil {
		h.writeServiceError(w, "Update", err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("Update: competition %d updated", compID))

	utils.WriteSuccess(w, http.StatusOK, "Competition updated", updated)
}

// Delete soft-deletes a competition; existing entries keep their history.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	compID, err := competitionID(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid competition ID", err)
		return
	}

	if err := h.Competitions.SoftDelete(r.Context(), compID); err != nil {
		h.writeServiceError(w, "Delete", err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("Delete: competition %d soft-deleted", compID))

	utils.WriteSuccess(w, http.StatusOK, "Competition deleted", nil)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))

	switch {
	case errors.Is(err, competition.ErrNotFound):
		utils.WriteError(w, http.StatusNotFound, "Competition not found", err)
	case errors.Is(err, competition.ErrMissingField),
		errors.Is(err, competition.ErrInvalidValue),
		errors.Is(err, competition.ErrInvalidDate),
		errors.Is(err, competition.ErrDrawInThePast):
		utils.WriteError(w, http.StatusBadRequest, "Invalid competition data", err)
	default:
		utils.WriteError(w, http.StatusInternalServerError, "Internal server error", err)
	}
}
