package service

import (
	"context"
	"encoding/json"
	"fmt"
	mathrand "math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/mealcycle/mealcycle/internal/domain/event"
	"github.com/mealcycle/mealcycle/internal/domain/plan"
	"github.com/mealcycle/mealcycle/internal/domain/recipe"
	"github.com/mealcycle/mealcycle/internal/domain/schedule"
	apperrors "github.com/mealcycle/mealcycle/internal/errors"
)

// ReplaceMeal swaps the recipe in a single slot for a randomly chosen
// alternative. The replaced recipe returns to the available set and the new
// one is marked used, so the rotation guarantee holds across manual swaps.
// Replacements apply to today and future days only.
func (o *Orchestrator) ReplaceMeal(ctx context.Context, userID string, date time.Time, slot recipe.Course) (plan.State, error) {
	ctx, span := o.tracer.Start(ctx, "service.ReplaceMeal")
	defer span.End()

	if userID == "" {
		return plan.State{}, apperrors.New(apperrors.CodeEmptyUserID, "user id is required")
	}
	if !slot.IsValid() {
		return plan.State{}, apperrors.New(apperrors.CodeInvalidMealAssignment,
			fmt.Sprintf("unknown course slot %q", slot))
	}
	date = date.UTC().Truncate(24 * time.Hour)

	release, err := o.lock(userID)
	if err != nil {
		return plan.State{}, err
	}
	defer release()

	state, err := o.replay(ctx, userID)
	if err != nil {
		return plan.State{}, err
	}
	if state.Status != plan.StatusActive {
		return plan.State{}, apperrors.New(apperrors.CodeNoActivePlan, "no active plan")
	}

	now := o.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if date.Before(today) {
		return plan.State{}, apperrors.New(apperrors.CodeInvalidMealAssignment,
			fmt.Sprintf("cannot replace a meal on past date %s", plan.FormatDate(date)))
	}

	current, err := findAssignment(state, date, slot)
	if err != nil {
		return plan.State{}, err
	}

	constraints, _, err := o.loadConstraints(ctx, userID)
	if err != nil {
		return plan.State{}, err
	}
	pool, err := o.stores.Favorites.SnapshotFavorites(ctx, userID)
	if err != nil {
		return plan.State{}, fmt.Errorf("snapshot favorites: %w", err)
	}
	rng, err := o.newRand()
	if err != nil {
		return plan.State{}, err
	}

	rot := state.Rotation.Clone()
	var resets []schedule.CycleReset
	if slot.Rotating() && current.RecipeID != "" {
		rot.Release(current.RecipeID)
	}

	candidates := alternativesFor(pool, constraints, date, slot, current.RecipeID)
	if slot.Rotating() {
		unused := make([]recipe.ForPlanning, 0, len(candidates))
		for _, r := range candidates {
			if !rot.Used(r.ID) {
				unused = append(unused, r)
			}
		}
		// All alternatives consumed this cycle counts as exhaustion even
		// though the released recipe keeps the used set one short of the
		// total, so reset-and-continue the way generation does.
		if len(unused) == 0 && len(candidates) > 0 {
			previous := rot.CycleNumber
			rot.ResetCycle(now)
			resets = append(resets, schedule.CycleReset{
				PreviousCycleNumber: previous,
				NewCycleNumber:      rot.CycleNumber,
				At:                  now,
			})
			unused = append(unused[:0], candidates...)
		}
		candidates = unused
	}
	if len(candidates) == 0 {
		return plan.State{}, apperrors.WithMetadata(
			apperrors.CodeInsufficientRecipes,
			fmt.Sprintf("no alternative %s recipe available for %s", slot, plan.FormatDate(date)),
			map[string]string{"course": string(slot)},
		)
	}

	picked := candidates[rng.Intn(len(candidates))]
	if slot.Rotating() {
		rot.MarkUsed(picked.ID, now)
	}

	rotationRaw, err := marshalRotation(rot)
	if err != nil {
		return plan.State{}, err
	}
	payload := plan.MealReplacedPayload{
		PlanID:           state.PlanID,
		Date:             plan.FormatDate(date),
		Slot:             string(slot),
		PreviousRecipeID: current.RecipeID,
		RecipeID:         picked.ID,
		AdvancePrep:      picked.AdvancePrep > 0,
		Rationale:        replacementRationale(picked, slot),
		RotationState:    rotationRaw,
	}
	if acc, ok := pickAccompaniment(pool, picked, rng); ok {
		payload.AccompanimentID = acc.ID
		if acc.Name != "" {
			payload.Rationale += fmt.Sprintf("; paired with %s", acc.Name)
		}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return plan.State{}, fmt.Errorf("marshal plan.meal_replaced payload: %w", err)
	}

	requestID := event.NewRequestID()
	batch := []event.Event{{
		UserID:      userID,
		Timestamp:   now,
		Type:        event.TypeMealReplaced,
		RequestID:   requestID,
		EntityID:    state.PlanID,
		PayloadJSON: raw,
	}}
	resetBatch, err := resetEvents(userID, state.PlanID, requestID, resets, rotationRaw, now)
	if err != nil {
		return plan.State{}, err
	}
	state, err = o.append(ctx, state, append(batch, resetBatch...))
	if err != nil {
		return plan.State{}, err
	}

	o.logger.Info("meal replaced",
		zap.String("user_id", userID),
		zap.String("plan_id", state.PlanID),
		zap.String("date", plan.FormatDate(date)),
		zap.String("slot", string(slot)),
		zap.String("previous_recipe_id", current.RecipeID),
		zap.String("recipe_id", picked.ID),
	)
	return state, nil
}

// findAssignment locates the slot being replaced in the active plan.
func findAssignment(state plan.State, date time.Time, slot recipe.Course) (plan.MealAssignment, error) {
	week, ok := state.WeekFor(date)
	if !ok {
		return plan.MealAssignment{}, apperrors.New(apperrors.CodeNotFound,
			fmt.Sprintf("no plan week contains %s", plan.FormatDate(date)))
	}
	for _, a := range week.Assignments {
		if a.Date.Equal(date) && a.Slot == slot {
			return a, nil
		}
	}
	return plan.MealAssignment{}, apperrors.New(apperrors.CodeNotFound,
		fmt.Sprintf("no %s assignment on %s", slot, plan.FormatDate(date)))
}

// alternativesFor filters the slot's favorites by the day-type prep budget
// and drops the recipe currently assigned.
func alternativesFor(pool recipe.Pool, constraints schedule.Constraints, date time.Time, slot recipe.Course, currentID string) []recipe.ForPlanning {
	budget := constraints.MaxPrepWeeknight
	if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
		budget = constraints.MaxPrepWeekend
	}
	var out []recipe.ForPlanning
	for _, r := range pool.Course(slot) {
		if r.ID == currentID {
			continue
		}
		if budget > 0 && r.PrepTime > budget {
			continue
		}
		out = append(out, r)
	}
	return out
}

// pickAccompaniment mirrors generation pairing: only recipes flagged to
// accept an accompaniment get one, chosen from their compatible list.
func pickAccompaniment(pool recipe.Pool, picked recipe.ForPlanning, rng *mathrand.Rand) (recipe.ForPlanning, bool) {
	if !picked.AcceptsAccompaniment {
		return recipe.ForPlanning{}, false
	}
	var compatible []recipe.ForPlanning
	for _, id := range picked.CompatibleAccompanimentIDs {
		if acc, ok := pool.Accompaniment(id); ok {
			compatible = append(compatible, acc)
		}
	}
	if len(compatible) == 0 {
		return recipe.ForPlanning{}, false
	}
	return compatible[rng.Intn(len(compatible))], true
}

func replacementRationale(picked recipe.ForPlanning, slot recipe.Course) string {
	if picked.Name != "" {
		return fmt.Sprintf("manual swap to %s", picked.Name)
	}
	return fmt.Sprintf("manual %s swap", slot)
}
