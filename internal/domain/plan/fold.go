package plan

import (
	"encoding/json"
	"fmt"

	"github.com/mealcycle/mealcycle/internal/domain/event"
	"github.com/mealcycle/mealcycle/internal/domain/rotation"
)

// Fold applies an event to plan state and returns the updated state.
//
// Fold validates before mutating: every payload decode and embedded rotation
// parse happens against locals first, so a bad event never leaves the
// aggregate half-updated. Any error aborts reconstruction.
func Fold(state State, evt event.Event) (State, error) {
	switch evt.Type {
	case event.TypePlanGenerated:
		return foldGenerated(state, evt)
	case event.TypeWeekRegenerated:
		return foldWeekRegenerated(state, evt)
	case event.TypeCycleReset:
		return foldCycleReset(state, evt)
	case event.TypeMealReplaced:
		return foldMealReplaced(state, evt)
	default:
		return State{}, fmt.Errorf("unhandled plan event type: %s", evt.Type)
	}
}

func foldGenerated(state State, evt event.Event) (State, error) {
	var payload GeneratedPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return State{}, fmt.Errorf("decode plan.generated payload: %w", err)
	}
	if payload.PlanID == "" {
		return State{}, fmt.Errorf("plan.generated requires a plan id")
	}

	rot, err := rotation.Parse(payload.RotationState)
	if err != nil {
		return State{}, err
	}

	weeks := make([]Week, 0, len(payload.Weeks))
	for _, wp := range payload.Weeks {
		week, err := DecodeWeek(wp)
		if err != nil {
			return State{}, fmt.Errorf("decode plan.generated week: %w", err)
		}
		weeks = append(weeks, week)
	}

	if state.Status == StatusActive && state.PlanID != "" && state.PlanID != payload.PlanID {
		state.ArchivedPlanIDs = append(state.ArchivedPlanIDs, state.PlanID)
	}
	state.UserID = evt.UserID
	state.PlanID = payload.PlanID
	state.Status = StatusActive
	state.Weeks = weeks
	state.Rotation = rot
	return state, nil
}

func foldWeekRegenerated(state State, evt event.Event) (State, error) {
	if state.Status != StatusActive {
		return State{}, fmt.Errorf("plan.week_regenerated requires an active plan")
	}

	var payload WeekRegeneratedPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return State{}, fmt.Errorf("decode plan.week_regenerated payload: %w", err)
	}

	rot, err := rotation.Parse(payload.RotationState)
	if err != nil {
		return State{}, err
	}
	week, err := DecodeWeek(payload.Week)
	if err != nil {
		return State{}, fmt.Errorf("decode plan.week_regenerated week: %w", err)
	}

	replaced := false
	weeks := make([]Week, len(state.Weeks))
	for i, w := range state.Weeks {
		if w.StartDate.Equal(week.StartDate) {
			weeks[i] = week
			replaced = true
			continue
		}
		weeks[i] = w
	}
	if !replaced {
		return State{}, fmt.Errorf("plan.week_regenerated targets unknown week %s", payload.Week.StartDate)
	}

	state.Weeks = weeks
	state.Rotation = rot
	return state, nil
}

func foldCycleReset(state State, evt event.Event) (State, error) {
	if state.Status != StatusActive {
		return State{}, fmt.Errorf("plan.cycle_reset requires an active plan")
	}

	var payload CycleResetPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return State{}, fmt.Errorf("decode plan.cycle_reset payload: %w", err)
	}

	rot, err := rotation.Parse(payload.RotationState)
	if err != nil {
		return State{}, err
	}

	// Rotation fields only; assignments are untouched.
	state.Rotation = rot
	return state, nil
}

func foldMealReplaced(state State, evt event.Event) (State, error) {
	if state.Status != StatusActive {
		return State{}, fmt.Errorf("plan.meal_replaced requires an active plan")
	}

	var payload MealReplacedPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return State{}, fmt.Errorf("decode plan.meal_replaced payload: %w", err)
	}

	rot, err := rotation.Parse(payload.RotationState)
	if err != nil {
		return State{}, err
	}
	date, err := ParseDate(payload.Date)
	if err != nil {
		return State{}, fmt.Errorf("plan.meal_replaced date: %w", err)
	}
	if payload.RecipeID == "" {
		return State{}, fmt.Errorf("plan.meal_replaced requires a recipe id")
	}

	replaced := false
	weeks := make([]Week, len(state.Weeks))
	for i, w := range state.Weeks {
		if date.Before(w.StartDate) || date.After(w.EndDate) {
			weeks[i] = w
			continue
		}
		assignments := make([]MealAssignment, len(w.Assignments))
		copy(assignments, w.Assignments)
		for j, a := range assignments {
			if a.Date.Equal(date) && string(a.Slot) == payload.Slot {
				assignments[j].RecipeID = payload.RecipeID
				assignments[j].AccompanimentID = payload.AccompanimentID
				assignments[j].AdvancePrep = payload.AdvancePrep
				assignments[j].Rationale = payload.Rationale
				replaced = true
			}
		}
		w.Assignments = assignments
		weeks[i] = w
	}
	if !replaced {
		return State{}, fmt.Errorf("plan.meal_replaced targets unknown slot %s/%s", payload.Date, payload.Slot)
	}

	state.Weeks = weeks
	state.Rotation = rot
	return state, nil
}
