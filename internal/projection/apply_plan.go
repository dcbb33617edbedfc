package projection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/mealcycle/mealcycle/internal/domain/event"
	"github.com/mealcycle/mealcycle/internal/domain/plan"
	"github.com/mealcycle/mealcycle/internal/domain/rotation"
	"github.com/mealcycle/mealcycle/internal/storage"
)

func (a Applier) applyPlanGenerated(ctx context.Context, evt event.Event) error {
	var payload plan.GeneratedPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return fmt.Errorf("decode plan.generated payload: %w", err)
	}
	state, err := rotation.Parse(payload.RotationState)
	if err != nil {
		return fmt.Errorf("parse rotation state: %w", err)
	}
	ts := ensureTimestamp(evt.Timestamp)

	if payload.SupersededPlanID != "" {
		if err := a.archivePlan(ctx, payload.SupersededPlanID, ts); err != nil {
			return err
		}
	}

	// A generated plan replaces the whole calendar, not just its own weeks:
	// stale rows from a superseded plan must not survive.
	if err := a.Calendar.DeleteUserAssignments(ctx, evt.UserID); err != nil {
		return err
	}
	if err := a.Shopping.DeleteUserSources(ctx, evt.UserID); err != nil {
		return err
	}

	weeks := make([]plan.Week, 0, len(payload.Weeks))
	for _, wp := range payload.Weeks {
		week, err := plan.DecodeWeek(wp)
		if err != nil {
			return fmt.Errorf("decode plan week: %w", err)
		}
		weeks = append(weeks, week)
	}

	var firstWeekStart time.Time
	if len(weeks) > 0 {
		firstWeekStart = weeks[0].StartDate
	}
	if err := a.Plan.PutPlan(ctx, storage.PlanRecord{
		ID:        payload.PlanID,
		UserID:    evt.UserID,
		Status:    string(plan.StatusActive),
		WeekCount: len(weeks),
		WeekStart: firstWeekStart,
		CreatedAt: ts,
		UpdatedAt: ts,
	}); err != nil {
		return err
	}

	for _, week := range weeks {
		if err := a.projectWeek(ctx, evt.UserID, payload.PlanID, week); err != nil {
			return err
		}
	}

	return a.projectRotation(ctx, evt.UserID, state, ts)
}

func (a Applier) applyWeekRegenerated(ctx context.Context, evt event.Event) error {
	var payload plan.WeekRegeneratedPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return fmt.Errorf("decode plan.week_regenerated payload: %w", err)
	}
	state, err := rotation.Parse(payload.RotationState)
	if err != nil {
		return fmt.Errorf("parse rotation state: %w", err)
	}
	week, err := plan.DecodeWeek(payload.Week)
	if err != nil {
		return fmt.Errorf("decode regenerated week: %w", err)
	}
	ts := ensureTimestamp(evt.Timestamp)

	if err := a.projectWeek(ctx, evt.UserID, payload.PlanID, week); err != nil {
		return err
	}
	if err := a.touchPlan(ctx, payload.PlanID, ts); err != nil {
		return err
	}
	return a.projectRotation(ctx, evt.UserID, state, ts)
}

func (a Applier) applyCycleReset(ctx context.Context, evt event.Event) error {
	var payload plan.CycleResetPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return fmt.Errorf("decode plan.cycle_reset payload: %w", err)
	}
	state, err := rotation.Parse(payload.RotationState)
	if err != nil {
		return fmt.Errorf("parse rotation state: %w", err)
	}
	ts := ensureTimestamp(evt.Timestamp)

	// Deleting an already-cleared cycle is a no-op, so replays are safe.
	if err := a.Rotation.DeleteCycleUsage(ctx, evt.UserID, payload.PreviousCycleNumber); err != nil {
		return err
	}
	return a.projectRotation(ctx, evt.UserID, state, ts)
}

func (a Applier) applyMealReplaced(ctx context.Context, evt event.Event) error {
	var payload plan.MealReplacedPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return fmt.Errorf("decode plan.meal_replaced payload: %w", err)
	}
	state, err := rotation.Parse(payload.RotationState)
	if err != nil {
		return fmt.Errorf("parse rotation state: %w", err)
	}
	date, err := plan.ParseDate(payload.Date)
	if err != nil {
		return fmt.Errorf("parse replacement date: %w", err)
	}
	ts := ensureTimestamp(evt.Timestamp)
	weekStart := plan.MondayOf(date)

	rows, err := a.Calendar.GetWeek(ctx, evt.UserID, weekStart)
	if err != nil {
		return err
	}
	var target *storage.AssignmentRecord
	for i := range rows {
		if rows[i].Date.Equal(date) && rows[i].Slot == payload.Slot {
			target = &rows[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("no calendar row for %s/%s", payload.Date, payload.Slot)
	}

	target.RecipeID = payload.RecipeID
	target.AccompanimentID = payload.AccompanimentID
	target.AdvancePrep = payload.AdvancePrep
	target.Rationale = payload.Rationale
	if err := a.Calendar.UpdateAssignment(ctx, *target); err != nil {
		return err
	}

	if err := a.Shopping.ReplaceWeekSources(ctx, evt.UserID, weekStart, weekSources(evt.UserID, target.PlanID, rows)); err != nil {
		return err
	}
	if err := a.touchPlan(ctx, payload.PlanID, ts); err != nil {
		return err
	}
	return a.projectRotation(ctx, evt.UserID, state, ts)
}

// projectWeek rewrites one week's calendar rows and shopping sources.
func (a Applier) projectWeek(ctx context.Context, userID, planID string, week plan.Week) error {
	rows := make([]storage.AssignmentRecord, 0, len(week.Assignments))
	for _, assignment := range week.Assignments {
		rows = append(rows, storage.AssignmentRecord{
			UserID:          userID,
			PlanID:          planID,
			WeekStart:       week.StartDate,
			Date:            assignment.Date,
			Slot:            string(assignment.Slot),
			RecipeID:        assignment.RecipeID,
			AccompanimentID: assignment.AccompanimentID,
			AdvancePrep:     assignment.AdvancePrep,
			Rationale:       assignment.Rationale,
			Locked:          week.Locked,
		})
	}
	if err := a.Calendar.ReplaceWeek(ctx, userID, week.StartDate, rows); err != nil {
		return err
	}
	return a.Shopping.ReplaceWeekSources(ctx, userID, week.StartDate, weekSources(userID, planID, rows))
}

// weekSources derives shopping-list source rows from calendar rows. Paired
// accompaniments count as sources in their own right.
func weekSources(userID, planID string, rows []storage.AssignmentRecord) []storage.ShoppingSourceRecord {
	var sources []storage.ShoppingSourceRecord
	for _, row := range rows {
		if row.RecipeID != "" {
			sources = append(sources, storage.ShoppingSourceRecord{
				UserID:    userID,
				PlanID:    planID,
				WeekStart: row.WeekStart,
				Date:      row.Date,
				RecipeID:  row.RecipeID,
			})
		}
		if row.AccompanimentID != "" {
			sources = append(sources, storage.ShoppingSourceRecord{
				UserID:    userID,
				PlanID:    planID,
				WeekStart: row.WeekStart,
				Date:      row.Date,
				RecipeID:  row.AccompanimentID,
			})
		}
	}
	return sources
}

// projectRotation rewrites the rotation meter and the current cycle's usage
// rows from the authoritative rotation snapshot carried by the event.
func (a Applier) projectRotation(ctx context.Context, userID string, state rotation.State, ts time.Time) error {
	if err := a.Rotation.PutProgress(ctx, storage.RotationProgressRecord{
		UserID:         userID,
		CycleNumber:    state.CycleNumber,
		CycleStartedAt: state.CycleStartedAt,
		UsedCount:      len(state.UsedRecipeIDs),
		TotalCount:     state.TotalFavoriteCount,
		UpdatedAt:      ts,
	}); err != nil {
		return err
	}

	// Rewrite the whole cycle's usage set so releases (meal replacement) and
	// reconciliation prunes are reflected, not just additions.
	if err := a.Rotation.DeleteCycleUsage(ctx, userID, state.CycleNumber); err != nil {
		return err
	}
	ids := make([]string, 0, len(state.UsedRecipeIDs))
	for id := range state.UsedRecipeIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := a.Rotation.PutUsage(ctx, storage.RotationUsageRecord{
			UserID:      userID,
			CycleNumber: state.CycleNumber,
			RecipeID:    id,
			UsedAt:      ts,
		}); err != nil {
			return err
		}
	}
	return nil
}

// archivePlan flips a superseded plan header to archived. A missing header is
// tolerated: replays onto a rebuilt projections database may see the archive
// before the header exists.
func (a Applier) archivePlan(ctx context.Context, planID string, ts time.Time) error {
	record, err := a.Plan.GetPlan(ctx, planID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	record.Status = string(plan.StatusArchived)
	record.UpdatedAt = ts
	return a.Plan.PutPlan(ctx, record)
}

// touchPlan bumps a plan header's updated timestamp.
func (a Applier) touchPlan(ctx context.Context, planID string, ts time.Time) error {
	record, err := a.Plan.GetPlan(ctx, planID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	record.UpdatedAt = ts
	return a.Plan.PutPlan(ctx, record)
}
