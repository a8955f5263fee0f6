package analytics

import (
	"context"

	"github.com/uptrace/bun"
)

// DB handles analytics database operations. Only confirmed purchases count:
// initiated, awaiting_action and failed rows never moved money for tickets.
type DB struct {
	bun *bun.DB
}

func NewDB(db *bun.DB) *DB {
	return &DB{bun: db}
}

// SalesSummary are the headline numbers for one competition.
type SalesSummary struct {
	Revenue     int64 `bun:"revenue" json:"revenue"`
	TicketsSold int   `bun:"tickets_sold" json:"ticketsSold"`
	Purchases   int   `bun:"purchases" json:"purchases"`
	Buyers      int   `bun:"buyers" json:"buyers"`
}

// GetSalesSummary aggregates confirmed purchases for a competition.
func (db *DB) GetSalesSummary(ctx context.Context, competitionID int64) (*SalesSummary, error) {
	var summary SalesSummary
	err := db.bun.NewRaw(`
		SELECT
			COALESCE(SUM(amount), 0) AS revenue,
			COALESCE(SUM(ticket_count), 0) AS tickets_sold,
			COUNT(*) AS purchases,
			COUNT(DISTINCT user_id) AS buyers
		FROM purchases
		WHERE competition_id = ? AND status = 'confirmed'
	`, competitionID).Scan(ctx, &summary)
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// DailySalesData represents raw daily sales metrics from the database.
// SalesDate is the plain YYYY-MM-DD the grouping produced.
type DailySalesData struct {
	SalesDate     string `bun:"sales_date" json:"salesDate"`
	DailyRevenue  int64  `bun:"daily_revenue" json:"dailyRevenue"`
	DailyQuantity int    `bun:"daily_quantity" json:"dailyQuantity"`
}

// GetDailySales retrieves per-day revenue and ticket quantity for a
// competition.
func (db *DB) GetDailySales(ctx context.Context, competitionID int64) ([]DailySalesData, error) {
	var dailySales []DailySalesData
	err := db.bun.NewRaw(`
		SELECT
			DATE(created_at) AS sales_date,
			SUM(amount) AS daily_revenue,
			SUM(ticket_count) AS daily_quantity
		FROM purchases
		WHERE competition_id = ? AND status = 'confirmed'
		GROUP BY DATE(created_at)
		ORDER BY DATE(created_at)
	`, competitionID).Scan(ctx, &dailySales)

	return dailySales, err
}

// FailureData counts failed purchases per recorded reason.
type FailureData struct {
	Reason string `bun:"failure_reason" json:"reason"`
	Count  int    `bun:"failure_count" json:"count"`
}

// GetFailureBreakdown groups failed purchases by reason so organizers can see
// why charges are declining.
func (db *DB) GetFailureBreakdown(ctx context.Context, competitionID int64) ([]FailureData, error) {
	var failures []FailureData
	err := db.bun.NewRaw(`
		SELECT
			failure_reason,
			COUNT(*) AS failure_count
		FROM purchases
		WHERE competition_id = ? AND status = 'failed'
		GROUP BY failure_reason
		ORDER BY failure_count DESC
	`, competitionID).Scan(ctx, &failures)

	return failures, err
}
