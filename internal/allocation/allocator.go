// Package allocation decides which ticket numbers a purchase receives. It is
// pure: callers pass the competition counters and the authoritative set of
// taken numbers, and persist the result themselves inside the same critical
// section that produced it.
package allocation

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"ms-competitions/internal/models"
)

var ErrInvalidRequest = errors.New("ticket count must be at least 1")

var ErrSoldOut = errors.New("competition is sold out")

// UserLimitError is returned when a request would push the user past the
// per-user cap. Allowed is how many more tickets the user may still buy.
type UserLimitError struct {
	Max     int
	Allowed int
}

func (e *UserLimitError) Error() string {
	if e.Allowed <= 0 {
		return fmt.Sprintf("you already hold the maximum of %d tickets", e.Max)
	}
	return fmt.Sprintf("you can only purchase up to %d more tickets (limit %d per user)", e.Allowed, e.Max)
}

// InventoryError is returned when fewer tickets remain than were requested.
type InventoryError struct {
	Remaining int
}

func (e *InventoryError) Error() string {
	return fmt.Sprintf("only %d tickets remaining", e.Remaining)
}

// NumbersUnavailableError is returned when explicitly picked numbers were
// taken since the client last fetched the grid.
type NumbersUnavailableError struct {
	Numbers []int
}

func (e *NumbersUnavailableError) Error() string {
	return fmt.Sprintf("ticket numbers no longer available: %v", e.Numbers)
}

// Result carries the allocated numbers and the competition's new sold count.
// The allocator never mutates its inputs.
type Result struct {
	Numbers        []int
	NewSoldTickets int
}

// Allocate validates a request against the competition's capacity and the
// user's cap, then assigns ticket numbers.
//
// When picks is non-empty it must have exactly requested elements, each in
// range and absent from taken. Otherwise numbers are assigned sequentially
// from soldTickets+1 upward, skipping numbers already taken by explicit
// picks, and wrapping down into any holes below the high-water mark.
func Allocate(comp *models.Competition, existing, requested int, picks []int, taken map[int]bool) (*Result, error) {
	if requested < 1 {
		return nil, ErrInvalidRequest
	}
	if comp.TotalTickets > 0 && comp.SoldTickets >= comp.TotalTickets {
		return nil, ErrSoldOut
	}
	if comp.MaxTicketsPerUser > 0 && existing+requested > comp.MaxTicketsPerUser {
		return nil, &UserLimitError{
			Max:     comp.MaxTicketsPerUser,
			Allowed: comp.MaxTicketsPerUser - existing,
		}
	}
	if comp.TotalTickets > 0 {
		remaining := comp.TotalTickets - comp.SoldTickets
		if requested > remaining {
			return nil, &InventoryError{Remaining: remaining}
		}
	}

	var numbers []int
	if len(picks) > 0 {
		var err error
		numbers, err = validatePicks(comp, requested, picks, taken)
		if err != nil {
			return nil, err
		}
	} else {
		numbers = sequential(comp, requested, taken)
	}

	return &Result{
		Numbers:        numbers,
		NewSoldTickets: comp.SoldTickets + requested,
	}, nil
}

func validatePicks(comp *models.Competition, requested int, picks []int, taken map[int]bool) ([]int, error) {
	if len(picks) != requested {
		return nil, fmt.Errorf("%w: %d numbers picked for %d tickets", ErrInvalidRequest, len(picks), requested)
	}
	seen := make(map[int]bool, len(picks))
	var unavailable []int
	for _, n := range picks {
		if n < 1 || (comp.TotalTickets > 0 && n > comp.TotalTickets) {
			return nil, fmt.Errorf("%w: ticket number %d out of range", ErrInvalidRequest, n)
		}
		if seen[n] {
			return nil, fmt.Errorf("%w: duplicate ticket number %d", ErrInvalidRequest, n)
		}
		seen[n] = true
		if taken[n] {
			unavailable = append(unavailable, n)
		}
	}
	if len(unavailable) > 0 {
		sort.Ints(unavailable)
		return nil, &NumbersUnavailableError{Numbers: unavailable}
	}
	out := make([]int, len(picks))
	copy(out, picks)
	return out, nil
}

// sequential walks upward from soldTickets+1. Explicit picks can leave holes
// below the high-water mark, so once the top of the range is reached the scan
// wraps to 1 and fills the gaps. The capacity precondition guarantees enough
// free numbers exist.
func sequential(comp *models.Competition, requested int, taken map[int]bool) []int {
	numbers := make([]int, 0, requested)
	n := comp.SoldTickets + 1
	wrapped := false
	for len(numbers) < requested {
		if comp.TotalTickets > 0 && n > comp.TotalTickets {
			if wrapped {
				break
			}
			wrapped = true
			n = 1
			continue
		}
		if !taken[n] {
			numbers = append(numbers, n)
		}
		n++
	}
	return numbers
}

// LuckyDip picks n random available numbers from [1, totalTickets] for
// callers that want a random selection instead of sequential assignment. The
// result feeds back through Allocate as explicit picks, so it shares every
// validation with user-chosen numbers.
func LuckyDip(comp *models.Competition, n int, taken map[int]bool, rng *rand.Rand) ([]int, error) {
	if comp.TotalTickets <= 0 {
		return nil, errors.New("lucky dip requires a fixed ticket inventory")
	}
	var available []int
	for i := 1; i <= comp.TotalTickets; i++ {
		if !taken[i] {
			available = append(available, i)
		}
	}
	if n < 1 || n > len(available) {
		return nil, &InventoryError{Remaining: len(available)}
	}
	rng.Shuffle(len(available), func(i, j int) {
		available[i], available[j] = available[j], available[i]
	})
	picks := available[:n]
	sort.Ints(picks)
	return picks, nil
}
