package allocation_test

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-competitions/internal/allocation"
	"ms-competitions/internal/models"
)

func comp(total, sold, maxPerUser int) *models.Competition {
	return &models.Competition{
		TotalTickets:      total,
		SoldTickets:       sold,
		MaxTicketsPerUser: maxPerUser,
	}
}

func takenUpTo(n int) map[int]bool {
	taken := make(map[int]bool, n)
	for i := 1; i <= n; i++ {
		taken[i] = true
	}
	return taken
}

func TestAllocateSequential(t *testing.T) {
	// totalTickets=10, soldTickets=8: two tickets left, numbers 9 and 10.
	res, err := allocation.Allocate(comp(10, 8, 5), 0, 2, nil, takenUpTo(8))
	require.NoError(t, err)
	assert.Equal(t, []int{9, 10}, res.Numbers)
	assert.Equal(t, 10, res.NewSoldTickets)
}

func TestAllocateRejectsZeroCount(t *testing.T) {
	_, err := allocation.Allocate(comp(10, 0, 0), 0, 0, nil, nil)
	assert.ErrorIs(t, err, allocation.ErrInvalidRequest)

	_, err = allocation.Allocate(comp(10, 0, 0), 0, -3, nil, nil)
	assert.ErrorIs(t, err, allocation.ErrInvalidRequest)
}

func TestAllocateSoldOut(t *testing.T) {
	_, err := allocation.Allocate(comp(10, 10, 0), 0, 1, nil, takenUpTo(10))
	assert.ErrorIs(t, err, allocation.ErrSoldOut)
}

func TestAllocateUserLimit(t *testing.T) {
	// User already holds 4 of a 5-per-user cap and asks for 2 more.
	_, err := allocation.Allocate(comp(100, 10, 5), 4, 2, nil, takenUpTo(10))

	var limitErr *allocation.UserLimitError
	require.True(t, errors.As(err, &limitErr))
	assert.Equal(t, 5, limitErr.Max)
	assert.Equal(t, 1, limitErr.Allowed)
	assert.Contains(t, limitErr.Error(), "1 more")
}

func TestAllocateUserLimitCheckedBeforeInventory(t *testing.T) {
	// Both the cap and the inventory would fail; the cap is reported first.
	_, err := allocation.Allocate(comp(10, 9, 2), 2, 3, nil, takenUpTo(9))

	var limitErr *allocation.UserLimitError
	assert.True(t, errors.As(err, &limitErr))
}

func TestAllocateInsufficientInventory(t *testing.T) {
	// totalTickets=10, soldTickets=8, request 3: only 2 remain.
	_, err := allocation.Allocate(comp(10, 8, 5), 0, 3, nil, takenUpTo(8))

	var invErr *allocation.InventoryError
	require.True(t, errors.As(err, &invErr))
	assert.Equal(t, 2, invErr.Remaining)
	assert.Contains(t, invErr.Error(), "only 2 tickets remaining")
}

func TestAllocateExplicitPicks(t *testing.T) {
	taken := map[int]bool{1: true, 5: true}
	res, err := allocation.Allocate(comp(10, 2, 0), 0, 3, []int{2, 7, 9}, taken)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 7, 9}, res.Numbers)
	assert.Equal(t, 5, res.NewSoldTickets)
}

func TestAllocatePicksTakenSinceGridFetch(t *testing.T) {
	taken := map[int]bool{3: true, 7: true}
	_, err := allocation.Allocate(comp(10, 2, 0), 0, 3, []int{3, 4, 7}, taken)

	var unavailErr *allocation.NumbersUnavailableError
	require.True(t, errors.As(err, &unavailErr))
	assert.Equal(t, []int{3, 7}, unavailErr.Numbers)
}

func TestAllocatePicksValidation(t *testing.T) {
	// Count mismatch.
	_, err := allocation.Allocate(comp(10, 0, 0), 0, 3, []int{1, 2}, nil)
	assert.ErrorIs(t, err, allocation.ErrInvalidRequest)

	// Out of range.
	_, err = allocation.Allocate(comp(10, 0, 0), 0, 1, []int{11}, nil)
	assert.ErrorIs(t, err, allocation.ErrInvalidRequest)

	// Duplicate.
	_, err = allocation.Allocate(comp(10, 0, 0), 0, 2, []int{4, 4}, nil)
	assert.ErrorIs(t, err, allocation.ErrInvalidRequest)
}

func TestSequentialSkipsExplicitPicks(t *testing.T) {
	// Numbers 3 and 4 were sold as explicit picks; sequential allocation
	// from the sold-count watermark must not hand them out again.
	taken := map[int]bool{1: true, 2: true, 3: true, 4: true}
	res, err := allocation.Allocate(comp(10, 4, 0), 0, 3, nil, taken)
	require.NoError(t, err)
	assert.Equal(t, []int{5, 6, 7}, res.Numbers)
}

func TestSequentialFillsHolesBelowWatermark(t *testing.T) {
	// Explicit picks of 9 and 10 pushed the watermark to the top while
	// leaving 1 and 2 free; the scan wraps down to fill them.
	taken := map[int]bool{3: true, 4: true, 5: true, 6: true, 7: true, 8: true, 9: true, 10: true}
	res, err := allocation.Allocate(comp(10, 8, 0), 0, 2, nil, taken)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, res.Numbers)
	assert.Equal(t, 10, res.NewSoldTickets)
}

func TestAllocateNeverCollides(t *testing.T) {
	// Simulate a full sell-out through a mix of explicit and sequential
	// purchases; no number may be assigned twice and the inventory
	// invariant must hold throughout.
	c := comp(50, 0, 0)
	taken := make(map[int]bool)
	seen := make(map[int]bool)

	requests := []struct {
		count int
		picks []int
	}{
		{5, nil}, {3, []int{10, 20, 30}}, {7, nil}, {1, []int{50}},
		{10, nil}, {4, []int{40, 41, 42, 43}}, {20, nil},
	}
	for _, r := range requests {
		res, err := allocation.Allocate(c, 0, r.count, r.picks, taken)
		require.NoError(t, err)
		require.Len(t, res.Numbers, r.count)
		for _, n := range res.Numbers {
			require.False(t, seen[n], "number %d assigned twice", n)
			seen[n] = true
			taken[n] = true
		}
		c.SoldTickets = res.NewSoldTickets
		require.LessOrEqual(t, c.SoldTickets, c.TotalTickets)
	}
	assert.Equal(t, 50, c.SoldTickets)

	_, err := allocation.Allocate(c, 0, 1, nil, taken)
	assert.ErrorIs(t, err, allocation.ErrSoldOut)
}

func TestLuckyDip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	taken := takenUpTo(90)

	picks, err := allocation.LuckyDip(comp(100, 90, 0), 5, taken, rng)
	require.NoError(t, err)
	require.Len(t, picks, 5)
	for _, n := range picks {
		assert.False(t, taken[n])
		assert.GreaterOrEqual(t, n, 91)
		assert.LessOrEqual(t, n, 100)
	}

	// Asking for more than remain fails with the remaining count.
	_, err = allocation.LuckyDip(comp(100, 90, 0), 11, taken, rng)
	var invErr *allocation.InventoryError
	require.True(t, errors.As(err, &invErr))
	assert.Equal(t, 10, invErr.Remaining)

	// Lucky dip output is valid input for Allocate.
	res, err := allocation.Allocate(comp(100, 90, 0), 0, 5, picks, taken)
	require.NoError(t, err)
	assert.Equal(t, picks, res.Numbers)
}
