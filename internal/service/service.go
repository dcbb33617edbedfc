// Package service holds the generation orchestrator: the write-side entry
// point that serializes per-user plan mutations, runs the scheduling
// algorithm on pre-loaded state, and commits the resulting events as one
// atomic batch.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	mathrand "math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/mealcycle/mealcycle/internal/domain/aggregate"
	"github.com/mealcycle/mealcycle/internal/domain/event"
	"github.com/mealcycle/mealcycle/internal/domain/plan"
	"github.com/mealcycle/mealcycle/internal/domain/recipe"
	"github.com/mealcycle/mealcycle/internal/domain/rotation"
	"github.com/mealcycle/mealcycle/internal/domain/schedule"
	apperrors "github.com/mealcycle/mealcycle/internal/errors"
	"github.com/mealcycle/mealcycle/internal/random"
	"github.com/mealcycle/mealcycle/internal/storage"
)

// requiredFavoritesPerCourse is the minimum favorites a course needs before
// generation runs: one full week of distinct picks.
const requiredFavoritesPerCourse = 7

// defaultWeeksPerGeneration is used when a user has no stored preferences.
const defaultWeeksPerGeneration = 2

// Stores bundles the persistence dependencies of the orchestrator.
type Stores struct {
	Events      storage.EventStore
	Calendar    storage.CalendarStore
	Preferences storage.PreferencesStore
	Favorites   storage.FavoritesStore
}

// Orchestrator serializes plan mutations per user and turns scheduling
// results into journal events.
type Orchestrator struct {
	stores Stores
	logger *zap.Logger
	tracer trace.Tracer
	locks  userLocks

	now  func() time.Time
	seed func() (int64, error)
}

// Option adjusts orchestrator construction.
type Option func(*Orchestrator)

// WithClock injects the time source. Tests pin it for deterministic windows.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithSeedSource injects the RNG seed source.
func WithSeedSource(seed func() (int64, error)) Option {
	return func(o *Orchestrator) {
		o.seed = seed
	}
}

// New creates an Orchestrator.
func New(stores Stores, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		stores: stores,
		logger: logger,
		tracer: otel.Tracer("mealcycle/service"),
		now:    func() time.Time { return time.Now().UTC() },
		seed:   random.NewSeed,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// lock takes the per-user generation lock or fails fast.
func (o *Orchestrator) lock(userID string) (func(), error) {
	release := o.locks.tryAcquire(userID)
	if release == nil {
		return nil, apperrors.WithMetadata(
			apperrors.CodeConcurrentGeneration,
			"another generation is in progress for this user",
			map[string]string{"retry_after_seconds": "1"},
		)
	}
	return release, nil
}

// replay rebuilds the user's plan aggregate from the journal.
func (o *Orchestrator) replay(ctx context.Context, userID string) (plan.State, error) {
	events, err := o.stores.Events.ListEvents(ctx, userID)
	if err != nil {
		return plan.State{}, fmt.Errorf("list events: %w", err)
	}
	state, err := aggregate.Replay(events)
	if err != nil {
		return plan.State{}, err
	}
	if state.UserID == "" {
		state.UserID = userID
	}
	return state, nil
}

// loadConstraints maps stored preferences to scheduling constraints, falling
// back to a one-dinner-per-day default when none are stored.
func (o *Orchestrator) loadConstraints(ctx context.Context, userID string) (schedule.Constraints, int, error) {
	record, err := o.stores.Preferences.GetPreferences(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return schedule.Constraints{
			Slots: []recipe.Course{recipe.CourseDinner},
		}, defaultWeeksPerGeneration, nil
	}
	if err != nil {
		return schedule.Constraints{}, 0, fmt.Errorf("load preferences: %w", err)
	}

	slots := make([]recipe.Course, 0, len(record.Slots))
	for _, slot := range record.Slots {
		slots = append(slots, recipe.Course(slot))
	}
	weeks := record.WeeksPerGeneration
	if weeks <= 0 {
		weeks = defaultWeeksPerGeneration
	}
	return schedule.Constraints{
		Slots:                   slots,
		MaxPrepWeeknight:        record.MaxPrepWeeknight,
		MaxPrepWeekend:          record.MaxPrepWeekend,
		AvoidConsecutiveComplex: record.AvoidConsecutiveComplex,
		CuisineVarietyWeight:    record.CuisineVarietyWeight,
	}, weeks, nil
}

// checkThreshold enforces the per-course favorites minimum before any
// algorithm time is spent.
func checkThreshold(pool recipe.Pool, slots []recipe.Course) error {
	seen := map[recipe.Course]bool{}
	for _, course := range slots {
		if seen[course] {
			continue
		}
		seen[course] = true
		current := pool.Count(course)
		if current < requiredFavoritesPerCourse {
			return apperrors.WithMetadata(
				apperrors.CodeInsufficientRecipes,
				fmt.Sprintf("%d %s favorites available, %d required", current, course, requiredFavoritesPerCourse),
				map[string]string{
					"course":   string(course),
					"current":  strconv.Itoa(current),
					"required": strconv.Itoa(requiredFavoritesPerCourse),
				},
			)
		}
	}
	return nil
}

// rotationFor returns the aggregate's rotation state, or a fresh cycle sized
// to the rotating pool for first-time generation.
func rotationFor(state plan.State, pool recipe.Pool, now time.Time) (rotation.State, error) {
	if state.Rotation.CycleNumber > 0 {
		return state.Rotation, nil
	}
	total := pool.Count(recipe.CourseMain) + pool.Count(recipe.CourseDinner)
	return rotation.New(total, now)
}

// newRand builds the algorithm's random source from the crypto-seeded seed.
func (o *Orchestrator) newRand() (*mathrand.Rand, error) {
	seed, err := o.seed()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeAlgorithmFault, "seed random source", err)
	}
	return mathrand.New(mathrand.NewSource(seed)), nil
}

// newPlanID mints a lexicographically sortable plan id.
func newPlanID() string {
	return strings.ToLower(ulid.Make().String())
}

// append commits a batch and folds it onto the given state so callers return
// the post-commit aggregate without a second journal read.
func (o *Orchestrator) append(ctx context.Context, state plan.State, events []event.Event) (plan.State, error) {
	appended, err := o.stores.Events.AppendEvents(ctx, events)
	if err != nil {
		return plan.State{}, fmt.Errorf("append events: %w", err)
	}
	for _, evt := range appended {
		state, err = plan.Fold(state, evt)
		if err != nil {
			return plan.State{}, err
		}
	}
	return state, nil
}

// marshalRotation encodes rotation state for an event payload.
func marshalRotation(state rotation.State) ([]byte, error) {
	raw, err := state.Marshal()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeAlgorithmFault, "marshal rotation state", err)
	}
	return raw, nil
}

// resetEvents builds one plan.cycle_reset event per reset that occurred
// during an invocation. They follow the triggering event in the same batch so
// the journal records the cycle history.
func resetEvents(userID, planID, requestID string, resets []schedule.CycleReset, rotationRaw []byte, ts time.Time) ([]event.Event, error) {
	events := make([]event.Event, 0, len(resets))
	for _, reset := range resets {
		payload, err := json.Marshal(plan.CycleResetPayload{
			PlanID:              planID,
			PreviousCycleNumber: reset.PreviousCycleNumber,
			RotationState:       rotationRaw,
		})
		if err != nil {
			return nil, fmt.Errorf("marshal cycle reset payload: %w", err)
		}
		events = append(events, event.Event{
			UserID:      userID,
			Timestamp:   ts,
			Type:        event.TypeCycleReset,
			RequestID:   requestID,
			EntityID:    planID,
			PayloadJSON: payload,
		})
	}
	return events, nil
}
