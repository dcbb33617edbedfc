package plan

import (
	"encoding/json"
	"fmt"

	"github.com/mealcycle/mealcycle/internal/domain/recipe"
)

// GeneratedPayload is the payload of a plan.generated event. It always
// encodes the full resulting week set, locked week included.
type GeneratedPayload struct {
	PlanID           string          `json:"plan_id"`
	SupersededPlanID string          `json:"superseded_plan_id,omitempty"`
	Weeks            []WeekPayload   `json:"weeks"`
	RotationState    json.RawMessage `json:"rotation_state"`
}

// WeekRegeneratedPayload is the payload of a plan.week_regenerated event.
type WeekRegeneratedPayload struct {
	PlanID        string          `json:"plan_id"`
	Week          WeekPayload     `json:"week"`
	RotationState json.RawMessage `json:"rotation_state"`
}

// CycleResetPayload is the payload of a plan.cycle_reset event.
type CycleResetPayload struct {
	PlanID              string          `json:"plan_id"`
	PreviousCycleNumber uint64          `json:"previous_cycle_number"`
	RotationState       json.RawMessage `json:"rotation_state"`
}

// MealReplacedPayload is the payload of a plan.meal_replaced event. The
// rotation state embedded here already reflects the swap: the new recipe
// marked used, the previous one released.
type MealReplacedPayload struct {
	PlanID           string          `json:"plan_id"`
	Date             string          `json:"date"`
	Slot             string          `json:"slot"`
	PreviousRecipeID string          `json:"previous_recipe_id,omitempty"`
	RecipeID         string          `json:"recipe_id"`
	AccompanimentID  string          `json:"accompaniment_id,omitempty"`
	AdvancePrep      bool            `json:"advance_prep,omitempty"`
	Rationale        string          `json:"rationale,omitempty"`
	RotationState    json.RawMessage `json:"rotation_state"`
}

// WeekPayload is the wire form of a Week.
type WeekPayload struct {
	StartDate   string              `json:"start_date"`
	EndDate     string              `json:"end_date"`
	Locked      bool                `json:"locked,omitempty"`
	Assignments []AssignmentPayload `json:"assignments"`
}

// AssignmentPayload is the wire form of a MealAssignment.
type AssignmentPayload struct {
	Date            string `json:"date"`
	Slot            string `json:"slot"`
	RecipeID        string `json:"recipe_id,omitempty"`
	AccompanimentID string `json:"accompaniment_id,omitempty"`
	AdvancePrep     bool   `json:"advance_prep,omitempty"`
	Rationale       string `json:"rationale,omitempty"`
}

// EncodeWeek converts a Week to its wire form.
func EncodeWeek(w Week) WeekPayload {
	assignments := make([]AssignmentPayload, 0, len(w.Assignments))
	for _, a := range w.Assignments {
		assignments = append(assignments, AssignmentPayload{
			Date:            FormatDate(a.Date),
			Slot:            string(a.Slot),
			RecipeID:        a.RecipeID,
			AccompanimentID: a.AccompanimentID,
			AdvancePrep:     a.AdvancePrep,
			Rationale:       a.Rationale,
		})
	}
	return WeekPayload{
		StartDate:   FormatDate(w.StartDate),
		EndDate:     FormatDate(w.EndDate),
		Locked:      w.Locked,
		Assignments: assignments,
	}
}

// DecodeWeek converts a wire-form week back to a Week.
func DecodeWeek(p WeekPayload) (Week, error) {
	start, err := ParseDate(p.StartDate)
	if err != nil {
		return Week{}, fmt.Errorf("week start: %w", err)
	}
	end, err := ParseDate(p.EndDate)
	if err != nil {
		return Week{}, fmt.Errorf("week end: %w", err)
	}

	assignments := make([]MealAssignment, 0, len(p.Assignments))
	for _, a := range p.Assignments {
		date, err := ParseDate(a.Date)
		if err != nil {
			return Week{}, fmt.Errorf("assignment date: %w", err)
		}
		assignments = append(assignments, MealAssignment{
			Date:            date,
			Slot:            recipe.Course(a.Slot),
			RecipeID:        a.RecipeID,
			AccompanimentID: a.AccompanimentID,
			AdvancePrep:     a.AdvancePrep,
			Rationale:       a.Rationale,
		})
	}
	return Week{
		StartDate:   start,
		EndDate:     end,
		Locked:      p.Locked,
		Assignments: assignments,
	}, nil
}
