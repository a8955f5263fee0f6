package analytics

import (
	"context"

	"ms-competitions/internal/models"
)

// CompetitionStore is the read side needed for report headers.
type CompetitionStore interface {
	GetByID(ctx context.Context, id int64) (*models.Competition, error)
}

// SalesReport is the full admin view for one competition.
type SalesReport struct {
	CompetitionID int64  `json:"competitionId"`
	Title         string `json:"title"`
	TotalTickets  int    `json:"totalTickets"`
	SoldTickets   int    `json:"soldTickets"`
	Entries       int    `json:"entries"`

	Summary    *SalesSummary   `json:"summary"`
	DailySales []DailySalesData `json:"dailySales"`
	Failures   []FailureData    `json:"failures"`
}

type Service struct {
	db    *DB
	comps CompetitionStore
}

func NewService(db *DB, comps CompetitionStore) *Service {
	return &Service{db: db, comps: comps}
}

// SalesReportFor builds the per-competition report from confirmed and failed
// purchases plus the live counters.
func (s *Service) SalesReportFor(ctx context.Context, competitionID int64) (*SalesReport, error) {
	comp, err := s.comps.GetByID(ctx, competitionID)
	if err != nil {
		return nil, err
	}

	summary, err := s.db.GetSalesSummary(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	daily, err := s.db.GetDailySales(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	failures, err := s.db.GetFailureBreakdown(ctx, competitionID)
	if err != nil {
		return nil, err
	}

	return &SalesReport{
		CompetitionID: comp.ID,
		Title:         comp.Title,
		TotalTickets:  comp.TotalTickets,
		SoldTickets:   comp.SoldTickets,
		Entries:       comp.Entries,
		Summary:       summary,
		DailySales:    daily,
		Failures:      failures,
	}, nil
}
