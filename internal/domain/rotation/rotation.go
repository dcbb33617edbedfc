// Package rotation tracks which main-course favorites have been used in the
// current rotation cycle for one user.
//
// The state is a pure value type: it performs no I/O and is owned by the plan
// aggregate, which is its sole writer. Projections hold derived copies only.
package rotation

import (
	"math"
	"time"

	"github.com/mealcycle/mealcycle/internal/errors"
)

// State is the rotation bookkeeping for one user's main-course favorites.
type State struct {
	// CycleNumber is monotonic and starts at 1. Increments saturate; the
	// counter never wraps.
	CycleNumber uint64
	// CycleStartedAt is when the current cycle began.
	CycleStartedAt time.Time
	// UsedRecipeIDs holds the main-course recipe ids consumed this cycle.
	UsedRecipeIDs map[string]struct{}
	// TotalFavoriteCount is the number of eligible main-course favorites for
	// the current cycle. Always at least 1.
	TotalFavoriteCount int
}

// New builds a fresh first-cycle state. A rotation over zero favorites is
// meaningless, so a non-positive favorite count is an error rather than a
// silently-accepted default.
func New(totalFavorites int, now time.Time) (State, error) {
	if totalFavorites <= 0 {
		return State{}, errors.New(errors.CodeInvalidRotationState, "rotation state requires at least one favorite")
	}
	return State{
		CycleNumber:        1,
		CycleStartedAt:     now.UTC(),
		UsedRecipeIDs:      make(map[string]struct{}),
		TotalFavoriteCount: totalFavorites,
	}, nil
}

// ShouldReset reports whether every main-course favorite has been used at
// least once in the current cycle.
func (s State) ShouldReset() bool {
	return len(s.UsedRecipeIDs) >= s.TotalFavoriteCount
}

// ResetCycle begins a new cycle: the cycle number increments (saturating at
// the maximum representable value), the used set clears and the start
// timestamp updates.
func (s *State) ResetCycle(now time.Time) {
	if s.CycleNumber < math.MaxUint64 {
		s.CycleNumber++
	}
	s.UsedRecipeIDs = make(map[string]struct{})
	s.CycleStartedAt = now.UTC()
}

// MarkUsed records a main-course recipe as consumed. When the cycle is
// already exhausted the cycle resets first, then the recipe is marked against
// the fresh cycle. It reports whether a reset occurred.
func (s *State) MarkUsed(id string, now time.Time) bool {
	reset := false
	if s.ShouldReset() {
		s.ResetCycle(now)
		reset = true
	}
	if s.UsedRecipeIDs == nil {
		s.UsedRecipeIDs = make(map[string]struct{})
	}
	s.UsedRecipeIDs[id] = struct{}{}
	return reset
}

// Used reports whether a recipe id has been consumed this cycle.
func (s State) Used(id string) bool {
	_, ok := s.UsedRecipeIDs[id]
	return ok
}

// Release returns a recipe to the available set. Meal replacement uses this
// to free the swapped-out recipe; releasing an id that is not marked is a
// no-op.
func (s *State) Release(id string) {
	delete(s.UsedRecipeIDs, id)
}

// Clone returns a deep copy so callers can speculate without mutating the
// aggregate's state.
func (s State) Clone() State {
	used := make(map[string]struct{}, len(s.UsedRecipeIDs))
	for id := range s.UsedRecipeIDs {
		used[id] = struct{}{}
	}
	s.UsedRecipeIDs = used
	return s
}
