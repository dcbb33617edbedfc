package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mealcycle/mealcycle/internal/domain/event"
	"github.com/mealcycle/mealcycle/internal/domain/plan"
	"github.com/mealcycle/mealcycle/internal/domain/rotation"
	"github.com/mealcycle/mealcycle/internal/domain/schedule"
	apperrors "github.com/mealcycle/mealcycle/internal/errors"
)

// RegenerateWeek replaces the assignments of one future week of the active
// plan. The current week is locked; weeks already past are immutable.
func (o *Orchestrator) RegenerateWeek(ctx context.Context, userID string, weekStart time.Time) (plan.State, error) {
	ctx, span := o.tracer.Start(ctx, "service.RegenerateWeek")
	defer span.End()

	if userID == "" {
		return plan.State{}, apperrors.New(apperrors.CodeEmptyUserID, "user id is required")
	}
	weekStart = weekStart.UTC()
	if !weekStart.Equal(plan.MondayOf(weekStart)) {
		return plan.State{}, apperrors.New(apperrors.CodeInvalidWeekStart,
			fmt.Sprintf("week start %s is not a Monday", plan.FormatDate(weekStart)))
	}

	release, err := o.lock(userID)
	if err != nil {
		return plan.State{}, err
	}
	defer release()

	state, err := o.replay(ctx, userID)
	if err != nil {
		return plan.State{}, err
	}
	week, err := o.regenerableWeek(state, weekStart)
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
	if err := checkThreshold(pool, constraints.Slots); err != nil {
		return plan.State{}, err
	}

	now := o.now()
	rng, err := o.newRand()
	if err != nil {
		return plan.State{}, err
	}
	result, err := schedule.Generate(schedule.Input{
		Pool:        pool,
		WeekStarts:  []time.Time{weekStart},
		Constraints: constraints,
		Rotation:    releaseWeek(state.Rotation, week),
		Now:         now,
		Rand:        rng,
	})
	if err != nil {
		return plan.State{}, err
	}

	batch, err := regenerationBatch(userID, state.PlanID, result, now)
	if err != nil {
		return plan.State{}, err
	}
	state, err = o.append(ctx, state, batch)
	if err != nil {
		return plan.State{}, err
	}

	o.logger.Info("week regenerated",
		zap.String("user_id", userID),
		zap.String("plan_id", state.PlanID),
		zap.String("week_start", plan.FormatDate(weekStart)),
		zap.Int("gaps", result.Gaps),
		zap.Int("cycle_resets", len(result.Resets)),
	)
	return state, nil
}

// RegenerateAllFuture replaces every week of the active plan that starts
// after the current one, in a single atomic batch. The current week's
// assignments are carried over unchanged.
func (o *Orchestrator) RegenerateAllFuture(ctx context.Context, userID string) (plan.State, error) {
	ctx, span := o.tracer.Start(ctx, "service.RegenerateAllFuture")
	defer span.End()

	if userID == "" {
		return plan.State{}, apperrors.New(apperrors.CodeEmptyUserID, "user id is required")
	}

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
		return plan.State{}, apperrors.New(apperrors.CodeNoActivePlan, "no active plan to regenerate")
	}

	now := o.now()
	currentMonday := plan.MondayOf(now)
	rot := state.Rotation
	var starts []time.Time
	for _, w := range state.Weeks {
		if !w.StartDate.After(currentMonday) {
			continue
		}
		starts = append(starts, w.StartDate)
		rot = releaseWeek(rot, w)
	}
	if len(starts) == 0 {
		return plan.State{}, apperrors.New(apperrors.CodeNotFound, "the active plan has no future weeks")
	}

	constraints, _, err := o.loadConstraints(ctx, userID)
	if err != nil {
		return plan.State{}, err
	}
	pool, err := o.stores.Favorites.SnapshotFavorites(ctx, userID)
	if err != nil {
		return plan.State{}, fmt.Errorf("snapshot favorites: %w", err)
	}
	if err := checkThreshold(pool, constraints.Slots); err != nil {
		return plan.State{}, err
	}

	rng, err := o.newRand()
	if err != nil {
		return plan.State{}, err
	}
	result, err := schedule.Generate(schedule.Input{
		Pool:        pool,
		WeekStarts:  starts,
		Constraints: constraints,
		Rotation:    rot,
		Now:         now,
		Rand:        rng,
	})
	if err != nil {
		return plan.State{}, err
	}

	batch, err := regenerationBatch(userID, state.PlanID, result, now)
	if err != nil {
		return plan.State{}, err
	}
	state, err = o.append(ctx, state, batch)
	if err != nil {
		return plan.State{}, err
	}

	o.logger.Info("future weeks regenerated",
		zap.String("user_id", userID),
		zap.String("plan_id", state.PlanID),
		zap.Int("weeks", len(result.Weeks)),
		zap.Int("gaps", result.Gaps),
		zap.Int("cycle_resets", len(result.Resets)),
	)
	return state, nil
}

// regenerableWeek validates that weekStart names a week of the active plan
// that regeneration may touch.
func (o *Orchestrator) regenerableWeek(state plan.State, weekStart time.Time) (plan.Week, error) {
	if state.Status != plan.StatusActive {
		return plan.Week{}, apperrors.New(apperrors.CodeNoActivePlan, "no active plan to regenerate")
	}
	week, ok := state.WeekByStart(weekStart)
	if !ok {
		return plan.Week{}, apperrors.New(apperrors.CodeNotFound,
			fmt.Sprintf("week %s is not part of the active plan", plan.FormatDate(weekStart)))
	}

	currentMonday := plan.MondayOf(o.now())
	if weekStart.Equal(currentMonday) {
		return plan.Week{}, apperrors.New(apperrors.CodeWeekLocked,
			fmt.Sprintf("week %s contains today and is locked", plan.FormatDate(weekStart)))
	}
	if weekStart.Before(currentMonday) {
		return plan.Week{}, apperrors.New(apperrors.CodeWeekAlreadyStarted,
			fmt.Sprintf("week %s has already started", plan.FormatDate(weekStart)))
	}
	return week, nil
}

// releaseWeek returns the assignments of one week to the available set so
// regeneration can pick them again.
func releaseWeek(rot rotation.State, week plan.Week) rotation.State {
	out := rot.Clone()
	for _, a := range week.Assignments {
		if a.Slot.Rotating() && a.RecipeID != "" {
			out.Release(a.RecipeID)
		}
	}
	return out
}

// regenerationBatch assembles one plan.week_regenerated event per produced
// week, followed by any cycle resets, all under one request id.
func regenerationBatch(userID, planID string, result schedule.Result, ts time.Time) ([]event.Event, error) {
	rotationRaw, err := marshalRotation(result.Rotation)
	if err != nil {
		return nil, err
	}

	requestID := event.NewRequestID()
	batch := make([]event.Event, 0, len(result.Weeks)+len(result.Resets))
	for _, week := range result.Weeks {
		payload, err := json.Marshal(plan.WeekRegeneratedPayload{
			PlanID:        planID,
			Week:          plan.EncodeWeek(week),
			RotationState: rotationRaw,
		})
		if err != nil {
			return nil, fmt.Errorf("marshal plan.week_regenerated payload: %w", err)
		}
		batch = append(batch, event.Event{
			UserID:      userID,
			Timestamp:   ts,
			Type:        event.TypeWeekRegenerated,
			RequestID:   requestID,
			EntityID:    plan.FormatDate(week.StartDate),
			PayloadJSON: payload,
		})
	}
	resets, err := resetEvents(userID, planID, requestID, result.Resets, rotationRaw, ts)
	if err != nil {
		return nil, err
	}
	return append(batch, resets...), nil
}
