package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mealcycle/mealcycle/internal/domain/event"
	"github.com/mealcycle/mealcycle/internal/domain/plan"
	"github.com/mealcycle/mealcycle/internal/domain/schedule"
	apperrors "github.com/mealcycle/mealcycle/internal/errors"
)

// Generate produces a fresh multi-week plan for the user, superseding any
// active plan. The window starts on the Monday after the current week; when
// the superseded plan covers the week containing now, that week is carried
// into the new plan unchanged and marked locked, so in-progress meals
// survive the supersede.
func (o *Orchestrator) Generate(ctx context.Context, userID string) (plan.State, error) {
	ctx, span := o.tracer.Start(ctx, "service.Generate")
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

	constraints, weeksPerGeneration, err := o.loadConstraints(ctx, userID)
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
	rot, err := rotationFor(state, pool, now)
	if err != nil {
		return plan.State{}, err
	}
	rng, err := o.newRand()
	if err != nil {
		return plan.State{}, err
	}

	result, err := schedule.Generate(schedule.Input{
		Pool:        pool,
		WeekStarts:  generationWindow(now, weeksPerGeneration),
		Constraints: constraints,
		Rotation:    rot,
		Now:         now,
		Rand:        rng,
	})
	if err != nil {
		return plan.State{}, err
	}

	planID := newPlanID()
	batch, err := generationBatch(userID, planID, state, result, now)
	if err != nil {
		return plan.State{}, err
	}

	state, err = o.append(ctx, state, batch)
	if err != nil {
		return plan.State{}, err
	}

	o.logger.Info("plan generated",
		zap.String("user_id", userID),
		zap.String("plan_id", planID),
		zap.Int("weeks", len(result.Weeks)),
		zap.Int("gaps", result.Gaps),
		zap.Int("cycle_resets", len(result.Resets)),
		zap.Uint64("cycle", result.Rotation.CycleNumber),
	)
	return state, nil
}

// generationWindow returns the consecutive Mondays a generation covers,
// starting the week after the one containing now.
func generationWindow(now time.Time, weeks int) []time.Time {
	first := plan.MondayOf(now).AddDate(0, 0, 7)
	starts := make([]time.Time, 0, weeks)
	for i := 0; i < weeks; i++ {
		starts = append(starts, first.AddDate(0, 0, 7*i))
	}
	return starts
}

// generationBatch assembles the plan.generated event plus one cycle-reset
// event per reset, all sharing a request id so the commit reads as one
// invocation in the journal. The payload encodes the full resulting week
// set: the superseded plan's current week (locked) first, then the newly
// generated weeks.
func generationBatch(userID, planID string, state plan.State, result schedule.Result, ts time.Time) ([]event.Event, error) {
	rotationRaw, err := marshalRotation(result.Rotation)
	if err != nil {
		return nil, err
	}

	weeks := make([]plan.WeekPayload, 0, len(result.Weeks)+1)
	if state.Status == plan.StatusActive {
		if current, ok := state.WeekByStart(plan.MondayOf(ts)); ok {
			current.Locked = true
			weeks = append(weeks, plan.EncodeWeek(current))
		}
	}
	for _, w := range result.Weeks {
		weeks = append(weeks, plan.EncodeWeek(w))
	}
	generated := plan.GeneratedPayload{
		PlanID:        planID,
		Weeks:         weeks,
		RotationState: rotationRaw,
	}
	if state.Status == plan.StatusActive {
		generated.SupersededPlanID = state.PlanID
	}
	payload, err := json.Marshal(generated)
	if err != nil {
		return nil, fmt.Errorf("marshal plan.generated payload: %w", err)
	}

	requestID := event.NewRequestID()
	batch := []event.Event{{
		UserID:      userID,
		Timestamp:   ts,
		Type:        event.TypePlanGenerated,
		RequestID:   requestID,
		EntityID:    planID,
		PayloadJSON: payload,
	}}
	resets, err := resetEvents(userID, planID, requestID, result.Resets, rotationRaw, ts)
	if err != nil {
		return nil, err
	}
	return append(batch, resets...), nil
}
