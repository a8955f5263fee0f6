package analytics_api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ms-competitions/internal/analytics"
	compdb "ms-competitions/internal/competition/db"
	"ms-competitions/internal/logger"
	"ms-competitions/internal/utils"
)

// Handler handles the admin analytics endpoints.
type Handler struct {
	Service *analytics.Service
	Logger  *logger.Logger
}

func NewHandler(service *analytics.Service, log *logger.Logger) *Handler {
	return &Handler{
		Service: service,
		Logger:  log,
	}
}

// GetSalesReport serves the per-competition sales report.
func (h *Handler) GetSalesReport(w http.ResponseWriter, r *http.Request) {
	compID, err := strconv.ParseInt(chi.URLParam(r, "competitionID"), 10, 64)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid competition ID", err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("GetSalesReport: competitionID=%d", compID))

	report, err := h.Service.SalesReportFor(r.Context(), compID)
	if err != nil {
		if errors.Is(err, compdb.ErrNotFound) {
			utils.WriteError(w, http.StatusNotFound, "Competition not found", err)
			return
		}
		h.Logger.Error("API", fmt.Sprintf("GetSalesReport: failed to build report: %v", err))
		utils.WriteError(w, http.StatusInternalServerError, "Failed to build sales report", err)
		return
	}

	utils.WriteSuccess(w, http.StatusOK, "Sales report retrieved", report)
}
