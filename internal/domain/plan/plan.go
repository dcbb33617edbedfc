// Package plan defines the meal-plan aggregate: its value types, the event
// payloads that mutate it and the fold function that rebuilds state from the
// event journal.
package plan

import (
	"fmt"
	"time"

	"github.com/mealcycle/mealcycle/internal/domain/recipe"
	"github.com/mealcycle/mealcycle/internal/domain/rotation"
)

// DateLayout is the wire format for calendar dates in payloads and routes.
const DateLayout = "2006-01-02"

// Status is the lifecycle state of a plan.
type Status string

const (
	// StatusNone means no plan has been generated yet.
	StatusNone Status = ""
	// StatusActive is the single current plan for a user.
	StatusActive Status = "active"
	// StatusArchived marks a plan superseded by a newer generation.
	StatusArchived Status = "archived"
)

// MealAssignment is one course slot on one calendar day.
type MealAssignment struct {
	// Date is the calendar day, normalized to UTC midnight.
	Date time.Time
	// Slot is the course type this assignment fills.
	Slot recipe.Course
	// RecipeID is the assigned recipe; empty means the slot is a gap.
	RecipeID string
	// AccompanimentID is the paired accompaniment, when the main accepts one.
	AccompanimentID string
	// AdvancePrep flags assignments whose recipe needs advance preparation.
	AdvancePrep bool
	// Rationale is a human-readable explanation of the pick for UI display.
	Rationale string
}

// Week is one Monday-through-Sunday stretch of assignments.
type Week struct {
	// StartDate is the week's Monday at UTC midnight.
	StartDate time.Time
	// EndDate is the week's Sunday at UTC midnight.
	EndDate time.Time
	// Locked marks the week containing "today"; locked weeks are immutable to
	// regeneration.
	Locked bool
	// Assignments is ordered by date, then slot order.
	Assignments []MealAssignment
}

// State is the authoritative event-sourced state for one user's meal plan.
// Only Fold mutates it.
type State struct {
	// UserID owns the plan.
	UserID string
	// PlanID identifies the current plan; empty before the first generation.
	PlanID string
	// Status is the lifecycle state of the current plan.
	Status Status
	// Weeks is the current plan's weeks in chronological order.
	Weeks []Week
	// Rotation is the rotation bookkeeping snapshot. The aggregate is its
	// sole writer.
	Rotation rotation.State
	// ArchivedPlanIDs lists plans superseded by later generations.
	ArchivedPlanIDs []string
}

// ParseDate parses a wire-format calendar date.
func ParseDate(value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", value, err)
	}
	return t.UTC(), nil
}

// FormatDate renders a calendar date in wire format.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// MondayOf returns the Monday of the week containing t, at UTC midnight.
func MondayOf(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// WeekFor returns the week containing the given date, if any.
func (s State) WeekFor(date time.Time) (Week, bool) {
	monday := MondayOf(date)
	for _, w := range s.Weeks {
		if w.StartDate.Equal(monday) {
			return w, true
		}
	}
	return Week{}, false
}

// WeekByStart returns the week starting on the given Monday, if any.
func (s State) WeekByStart(start time.Time) (Week, bool) {
	for _, w := range s.Weeks {
		if w.StartDate.Equal(start.UTC()) {
			return w, true
		}
	}
	return Week{}, false
}
