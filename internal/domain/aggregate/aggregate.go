// Package aggregate reconstructs plan state by folding the event journal.
package aggregate

import (
	"fmt"

	"github.com/mealcycle/mealcycle/internal/domain/event"
	"github.com/mealcycle/mealcycle/internal/domain/plan"
)

// Replay folds a user's journal, in commit order, into plan state. Any fold
// failure aborts reconstruction: a partially-applied journal is worse than a
// loud error.
func Replay(events []event.Event) (plan.State, error) {
	state := plan.State{}
	for _, evt := range events {
		next, err := plan.Fold(state, evt)
		if err != nil {
			return plan.State{}, fmt.Errorf("replay %s seq %d: %w", evt.Type, evt.Seq, err)
		}
		state = next
	}
	return state, nil
}
