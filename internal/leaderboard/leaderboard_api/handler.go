package leaderboard_api

import (
	"fmt"
	"net/http"
	"strconv"

	"ms-competitions/internal/leaderboard"
	"ms-competitions/internal/logger"
	"ms-competitions/internal/utils"
)

type Handler struct {
	Leaderboard *leaderboard.DB
	Logger      *logger.Logger
}

func NewHandler(lb *leaderboard.DB, log *logger.Logger) *Handler {
	return &Handler{
		Leaderboard: lb,
		Logger:      log,
	}
}

// Top serves the public ranking. `limit` is an optional query param.
func (h *Handler) Top(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	rows, err := h.Leaderboard.Top(r.Context(), limit)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Top: failed to load leaderboard: %v", err))
		utils.WriteError(w, http.StatusInternalServerError, "Failed to load leaderboard", err)
		return
	}

	utils.WriteSuccess(w, http.StatusOK, "Leaderboard retrieved", rows)
}
