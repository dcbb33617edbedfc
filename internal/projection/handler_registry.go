package projection

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mealcycle/mealcycle/internal/domain/event"
)

// idRequirement specifies which event envelope fields a handler requires.
type idRequirement uint8

const (
	requireUserID idRequirement = 1 << iota
	requireEntityID
)

// storeRequirement specifies which stores a handler depends on. Requirements
// are checked before dispatch; the handler will not execute if any required
// store is nil.
type storeRequirement uint8

const (
	needPlan storeRequirement = 1 << iota
	needCalendar
	needRotation
	needShopping
)

// handlerEntry declares the preconditions and apply function for one event type.
type handlerEntry struct {
	stores storeRequirement
	ids    idRequirement
	apply  func(Applier, context.Context, event.Event) error
}

// handlers maps each journal event type to its handler entry.
var handlers = map[event.Type]handlerEntry{
	event.TypePlanGenerated: {
		stores: needPlan | needCalendar | needRotation | needShopping,
		ids:    requireUserID | requireEntityID,
		apply:  func(a Applier, ctx context.Context, evt event.Event) error { return a.applyPlanGenerated(ctx, evt) },
	},
	event.TypeWeekRegenerated: {
		stores: needPlan | needCalendar | needRotation | needShopping,
		ids:    requireUserID,
		apply:  func(a Applier, ctx context.Context, evt event.Event) error { return a.applyWeekRegenerated(ctx, evt) },
	},
	event.TypeCycleReset: {
		stores: needRotation,
		ids:    requireUserID,
		apply:  func(a Applier, ctx context.Context, evt event.Event) error { return a.applyCycleReset(ctx, evt) },
	},
	event.TypeMealReplaced: {
		stores: needPlan | needCalendar | needRotation | needShopping,
		ids:    requireUserID,
		apply:  func(a Applier, ctx context.Context, evt event.Event) error { return a.applyMealReplaced(ctx, evt) },
	},
}

// HandledTypes returns the sorted list of event types in the handler registry.
func HandledTypes() []event.Type {
	types := make([]event.Type, 0, len(handlers))
	for t := range handlers {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool {
		return string(types[i]) < string(types[j])
	})
	return types
}

// validatePreconditions checks that the applier's stores and event envelope
// fields satisfy the handler's declared requirements.
func (a Applier) validatePreconditions(h handlerEntry, evt event.Event) error {
	if h.stores&needPlan != 0 && a.Plan == nil {
		return fmt.Errorf("plan store is not configured")
	}
	if h.stores&needCalendar != 0 && a.Calendar == nil {
		return fmt.Errorf("calendar store is not configured")
	}
	if h.stores&needRotation != 0 && a.Rotation == nil {
		return fmt.Errorf("rotation store is not configured")
	}
	if h.stores&needShopping != 0 && a.Shopping == nil {
		return fmt.Errorf("shopping store is not configured")
	}

	if h.ids&requireUserID != 0 && strings.TrimSpace(evt.UserID) == "" {
		return fmt.Errorf("user id is required")
	}
	if h.ids&requireEntityID != 0 && strings.TrimSpace(evt.EntityID) == "" {
		return fmt.Errorf("entity id is required")
	}
	return nil
}
