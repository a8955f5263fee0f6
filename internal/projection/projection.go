package projection

import (
	"time"

	"ms-competitions/internal/models"
)

// UserStatus is the per-user slice of a competition view. Every field has a
// sensible zero default so anonymous and not-yet-entered views marshal cleanly.
type UserStatus struct {
	IsEntered     bool                      `json:"isEntered"`
	TicketCount   int                       `json:"ticketCount"`
	TicketNumbers models.IntList            `json:"ticketNumbers"`
	EntryProgress models.IntList            `json:"entryProgress"`
	IsBookmarked  bool                      `json:"isBookmarked"`
	IsLiked       bool                      `json:"isLiked"`
	PaymentStatus models.EntryPaymentStatus `json:"paymentStatus"`
	TotalPaid     int64                     `json:"totalPaid"`

	IsWinner      bool       `json:"isWinner"`
	WinDate       *time.Time `json:"winDate,omitempty"`
	ClaimByDate   *time.Time `json:"claimByDate,omitempty"`
	PrizeReceived bool       `json:"prizeReceived"`
}

// CompetitionView is what the list and detail endpoints return: the
// competition row flattened together with the caller's status.
type CompetitionView struct {
	models.Competition
	UserStatus
	RemainingTickets int `json:"remainingTickets"`
}

// CompetitionWithStatus merges a competition with the caller's entry and win
// rows. Both entry and win may be nil.
func CompetitionWithStatus(comp *models.Competition, entry *models.UserEntry, win *models.UserWin) *CompetitionView {
	view := &CompetitionView{
		Competition:      *comp,
		RemainingTickets: comp.Remaining(),
		UserStatus: UserStatus{
			TicketNumbers: models.IntList{},
			EntryProgress: make(models.IntList, len(comp.EntrySteps)),
			PaymentStatus: models.EntryPaymentNone,
		},
	}

	if entry != nil {
		view.IsEntered = true
		view.TicketCount = entry.TicketCount
		view.IsBookmarked = entry.IsBookmarked
		view.IsLiked = entry.IsLiked
		view.PaymentStatus = entry.PaymentStatus
		view.TotalPaid = entry.TotalPaid
		if len(entry.TicketNumbers) > 0 {
			view.TicketNumbers = entry.TicketNumbers
		}
		// Progress arrays written before a steps edit may be short.
		copy(view.EntryProgress, entry.EntryProgress)
	}

	if win != nil {
		view.IsWinner = true
		view.WinDate = &win.WinDate
		view.ClaimByDate = &win.ClaimByDate
		view.PrizeReceived = win.PrizeReceived
	}

	return view
}
