package httpapi

import (
	"time"

	"github.com/mealcycle/mealcycle/internal/domain/plan"
	"github.com/mealcycle/mealcycle/internal/storage"
)

type assignmentView struct {
	Date            string `json:"date"`
	Slot            string `json:"slot"`
	RecipeID        string `json:"recipe_id,omitempty"`
	AccompanimentID string `json:"accompaniment_id,omitempty"`
	AdvancePrep     bool   `json:"advance_prep,omitempty"`
	Rationale       string `json:"rationale,omitempty"`
}

type weekView struct {
	StartDate   string           `json:"start_date"`
	EndDate     string           `json:"end_date"`
	Locked      bool             `json:"locked"`
	Assignments []assignmentView `json:"assignments"`
}

type rotationView struct {
	CycleNumber    uint64 `json:"cycle_number"`
	CycleStartedAt string `json:"cycle_started_at,omitempty"`
	UsedCount      int    `json:"used_count"`
	TotalCount     int    `json:"total_count"`
}

type planView struct {
	PlanID   string       `json:"plan_id"`
	Status   string       `json:"status"`
	Weeks    []weekView   `json:"weeks"`
	Rotation rotationView `json:"rotation"`
}

// newPlanView renders aggregate state. The lock flag is computed against the
// serving clock, not the flag persisted at generation time, so the current
// week always reads as locked.
func newPlanView(state plan.State, now time.Time) planView {
	currentMonday := plan.MondayOf(now)
	weeks := make([]weekView, 0, len(state.Weeks))
	for _, w := range state.Weeks {
		assignments := make([]assignmentView, 0, len(w.Assignments))
		for _, a := range w.Assignments {
			assignments = append(assignments, assignmentView{
				Date:            plan.FormatDate(a.Date),
				Slot:            string(a.Slot),
				RecipeID:        a.RecipeID,
				AccompanimentID: a.AccompanimentID,
				AdvancePrep:     a.AdvancePrep,
				Rationale:       a.Rationale,
			})
		}
		weeks = append(weeks, weekView{
			StartDate:   plan.FormatDate(w.StartDate),
			EndDate:     plan.FormatDate(w.EndDate),
			Locked:      w.StartDate.Equal(currentMonday),
			Assignments: assignments,
		})
	}

	view := planView{
		PlanID: state.PlanID,
		Status: string(state.Status),
		Weeks:  weeks,
		Rotation: rotationView{
			CycleNumber: state.Rotation.CycleNumber,
			UsedCount:   len(state.Rotation.UsedRecipeIDs),
			TotalCount:  state.Rotation.TotalFavoriteCount,
		},
	}
	if !state.Rotation.CycleStartedAt.IsZero() {
		view.Rotation.CycleStartedAt = state.Rotation.CycleStartedAt.UTC().Format(time.RFC3339)
	}
	return view
}

// newWeekView renders projected calendar rows for one week. Lock state is
// temporal, so it is computed against the serving clock the same way
// newPlanView does it rather than read from the persisted rows.
func newWeekView(weekStart time.Time, rows []storage.AssignmentRecord, now time.Time) weekView {
	assignments := make([]assignmentView, 0, len(rows))
	for _, row := range rows {
		assignments = append(assignments, assignmentView{
			Date:            plan.FormatDate(row.Date),
			Slot:            row.Slot,
			RecipeID:        row.RecipeID,
			AccompanimentID: row.AccompanimentID,
			AdvancePrep:     row.AdvancePrep,
			Rationale:       row.Rationale,
		})
	}
	return weekView{
		StartDate:   plan.FormatDate(weekStart),
		EndDate:     plan.FormatDate(weekStart.AddDate(0, 0, 6)),
		Locked:      weekStart.Equal(plan.MondayOf(now)),
		Assignments: assignments,
	}
}
