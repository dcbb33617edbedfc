// Package projection applies plan journal events to the denormalized read
// models: plan headers, the calendar, rotation progress, and shopping-list
// sources.
//
// Handlers are idempotent per (user, seq); the outbox worker wraps each apply
// in an exactly-once checkpoint, and every write here tolerates replays on
// top of that.
package projection

import (
	"context"
	"fmt"
	"time"

	"github.com/mealcycle/mealcycle/internal/domain/event"
	"github.com/mealcycle/mealcycle/internal/storage"
)

// Applier applies event journal entries to projection stores.
type Applier struct {
	// Plan writes plan-header read models.
	Plan storage.PlanStore
	// Calendar writes the calendar read model.
	Calendar storage.CalendarStore
	// Rotation writes rotation-progress read models.
	Rotation storage.RotationStore
	// Shopping writes shopping-list source read models.
	Shopping storage.ShoppingStore
}

// Apply routes one journal event to its projection handler after checking the
// handler's declared store and envelope preconditions. An event type outside
// the handler registry is a configuration error, not a skip.
func (a Applier) Apply(ctx context.Context, evt event.Event) error {
	h, ok := handlers[evt.Type]
	if !ok {
		return fmt.Errorf("unhandled projection event type: %s", evt.Type)
	}
	if err := a.validatePreconditions(h, evt); err != nil {
		return err
	}
	return h.apply(a, ctx, evt)
}

// ensureTimestamp normalizes timestamps so projections always persist UTC,
// defaulting to now for events that do not set time.
func ensureTimestamp(ts time.Time) time.Time {
	if ts.IsZero() {
		return time.Now().UTC()
	}
	return ts.UTC()
}
