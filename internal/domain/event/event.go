// Package event defines the immutable event journal entries for plan
// aggregates and the closed registry of event types.
package event

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type identifies the type of a plan event.
type Type string

// Plan lifecycle events. The registry is closed: the aggregate, the
// projection layer and the journal all dispatch over exactly these types.
const (
	// TypePlanGenerated records a full multi-week generation. The payload
	// carries the complete resulting week set, locked week included, never a
	// delta.
	TypePlanGenerated Type = "plan.generated"
	// TypeWeekRegenerated records the replacement of exactly one non-locked
	// week.
	TypeWeekRegenerated Type = "plan.week_regenerated"
	// TypeCycleReset records a rotation cycle reset. It updates rotation
	// state only and never alters meal assignments.
	TypeCycleReset Type = "plan.cycle_reset"
	// TypeMealReplaced records a single-slot swap, including the rotation
	// state delta for the swapped recipes.
	TypeMealReplaced Type = "plan.meal_replaced"
)

// Registered returns the closed list of journal event types.
func Registered() []Type {
	return []Type{
		TypePlanGenerated,
		TypeWeekRegenerated,
		TypeCycleReset,
		TypeMealReplaced,
	}
}

// IsRegistered reports whether the type belongs to the closed registry.
func (t Type) IsRegistered() bool {
	switch t {
	case TypePlanGenerated, TypeWeekRegenerated, TypeCycleReset, TypeMealReplaced:
		return true
	}
	return false
}

// IsValid reports whether the event type is usable.
func (t Type) IsValid() bool {
	return strings.TrimSpace(string(t)) != ""
}

// Event represents an immutable entry in a user's plan event journal.
type Event struct {
	// UserID is the plan aggregate this event belongs to.
	UserID string
	// Seq is the event sequence number within the user's journal (starts at 1).
	// Assigned by storage on append.
	Seq uint64
	// Timestamp is when the event occurred.
	Timestamp time.Time
	// Type identifies the kind of event.
	Type Type
	// RequestID correlates the events committed by one orchestrator call.
	RequestID string
	// EntityID is the plan id the event affects (or the week start date for
	// week-scoped events).
	EntityID string
	// PayloadJSON holds event-specific data as JSON.
	PayloadJSON []byte
}

// NewRequestID mints a correlation id for one orchestrator invocation.
func NewRequestID() string {
	return uuid.NewString()
}
