package projection

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/mealcycle/mealcycle/internal/domain/event"
	"github.com/mealcycle/mealcycle/internal/domain/plan"
	"github.com/mealcycle/mealcycle/internal/domain/recipe"
	"github.com/mealcycle/mealcycle/internal/domain/rotation"
	"github.com/mealcycle/mealcycle/internal/storage/sqlite"
)

func openTestApplier(t *testing.T) (Applier, *sqlite.Store) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "projections.sqlite")
	store, err := sqlite.OpenProjections(path)
	if err != nil {
		t.Fatalf("open projections store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close projections store: %v", err)
		}
	})
	return Applier{
		Plan:     store,
		Calendar: store,
		Rotation: store,
		Shopping: store,
	}, store
}

func mustMarshalRotation(t *testing.T, state rotation.State) json.RawMessage {
	t.Helper()
	raw, err := state.Marshal()
	if err != nil {
		t.Fatalf("marshal rotation state: %v", err)
	}
	return raw
}

func testWeek(start time.Time) plan.Week {
	return plan.Week{
		StartDate: start,
		EndDate:   start.AddDate(0, 0, 6),
		Assignments: []plan.MealAssignment{
			{
				Date:            start,
				Slot:            recipe.CourseDinner,
				RecipeID:        "r-1",
				AccompanimentID: "a-1",
				Rationale:       "cycle 1 rotation pick",
			},
			{
				Date:     start.AddDate(0, 0, 1),
				Slot:     recipe.CourseDinner,
				RecipeID: "r-2",
			},
		},
	}
}

func generatedEvent(t *testing.T, userID, planID, supersededID string, weeks []plan.Week, state rotation.State, ts time.Time) event.Event {
	t.Helper()

	weekPayloads := make([]plan.WeekPayload, 0, len(weeks))
	for _, week := range weeks {
		weekPayloads = append(weekPayloads, plan.EncodeWeek(week))
	}
	payload, err := json.Marshal(plan.GeneratedPayload{
		PlanID:           planID,
		SupersededPlanID: supersededID,
		Weeks:            weekPayloads,
		RotationState:    mustMarshalRotation(t, state),
	})
	if err != nil {
		t.Fatalf("marshal generated payload: %v", err)
	}
	return event.Event{
		UserID:      userID,
		Seq:         1,
		Timestamp:   ts,
		Type:        event.TypePlanGenerated,
		EntityID:    planID,
		PayloadJSON: payload,
	}
}

func TestApplyPlanGeneratedProjectsAllReadModels(t *testing.T) {
	applier, store := openTestApplier(t)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	weekStart := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	state, err := rotation.New(10, now)
	if err != nil {
		t.Fatalf("new rotation state: %v", err)
	}
	state.MarkUsed("r-1", now)
	state.MarkUsed("r-2", now)

	evt := generatedEvent(t, "user-1", "plan-1", "", []plan.Week{testWeek(weekStart)}, state, now)
	if err := applier.Apply(context.Background(), evt); err != nil {
		t.Fatalf("apply plan.generated: %v", err)
	}

	header, err := store.GetActivePlan(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("get active plan: %v", err)
	}
	if header.ID != "plan-1" || header.WeekCount != 1 {
		t.Fatalf("unexpected plan header %+v", header)
	}
	if !header.WeekStart.Equal(weekStart) {
		t.Fatalf("expected week start %s, got %s", weekStart, header.WeekStart)
	}

	rows, err := store.GetWeek(context.Background(), "user-1", weekStart)
	if err != nil {
		t.Fatalf("get week: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 calendar rows, got %d", len(rows))
	}
	if rows[0].RecipeID != "r-1" || rows[0].AccompanimentID != "a-1" {
		t.Fatalf("unexpected first row %+v", rows[0])
	}

	progress, err := store.GetProgress(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("get rotation progress: %v", err)
	}
	if progress.CycleNumber != 1 || progress.UsedCount != 2 || progress.TotalCount != 10 {
		t.Fatalf("unexpected progress %+v", progress)
	}
	usage, err := store.ListCycleUsage(context.Background(), "user-1", 1)
	if err != nil {
		t.Fatalf("list cycle usage: %v", err)
	}
	if len(usage) != 2 {
		t.Fatalf("expected 2 usage rows, got %d", len(usage))
	}

	sources, err := store.ListWeekSources(context.Background(), "user-1", weekStart)
	if err != nil {
		t.Fatalf("list week sources: %v", err)
	}
	// Two mains plus one paired accompaniment.
	if len(sources) != 3 {
		t.Fatalf("expected 3 shopping sources, got %d", len(sources))
	}
}

func TestApplyPlanGeneratedArchivesSupersededPlan(t *testing.T) {
	applier, store := openTestApplier(t)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	weekStart := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	state, err := rotation.New(10, now)
	if err != nil {
		t.Fatalf("new rotation state: %v", err)
	}

	first := generatedEvent(t, "user-1", "plan-1", "", []plan.Week{testWeek(weekStart)}, state, now)
	if err := applier.Apply(context.Background(), first); err != nil {
		t.Fatalf("apply first generation: %v", err)
	}

	nextWeek := testWeek(weekStart.AddDate(0, 0, 7))
	second := generatedEvent(t, "user-1", "plan-2", "plan-1", []plan.Week{nextWeek}, state, now.Add(time.Hour))
	second.Seq = 2
	if err := applier.Apply(context.Background(), second); err != nil {
		t.Fatalf("apply second generation: %v", err)
	}

	archived, err := store.GetPlan(context.Background(), "plan-1")
	if err != nil {
		t.Fatalf("get archived plan: %v", err)
	}
	if archived.Status != string(plan.StatusArchived) {
		t.Fatalf("expected plan-1 archived, got %q", archived.Status)
	}
	active, err := store.GetActivePlan(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("get active plan: %v", err)
	}
	if active.ID != "plan-2" {
		t.Fatalf("expected plan-2 active, got %s", active.ID)
	}

	// The superseded plan's calendar rows must not survive.
	stale, err := store.GetWeek(context.Background(), "user-1", weekStart)
	if err != nil {
		t.Fatalf("get superseded week: %v", err)
	}
	if len(stale) != 0 {
		t.Fatalf("expected superseded calendar cleared, got %d rows", len(stale))
	}
}

func TestApplyPlanGeneratedReplayMatchesSingleApply(t *testing.T) {
	applier, store := openTestApplier(t)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	weekStart := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	state, err := rotation.New(10, now)
	if err != nil {
		t.Fatalf("new rotation state: %v", err)
	}
	state.MarkUsed("r-1", now)

	evt := generatedEvent(t, "user-1", "plan-1", "", []plan.Week{testWeek(weekStart)}, state, now)
	for i := 0; i < 2; i++ {
		if err := applier.Apply(context.Background(), evt); err != nil {
			t.Fatalf("apply attempt %d: %v", i+1, err)
		}
	}

	rows, err := store.GetWeek(context.Background(), "user-1", weekStart)
	if err != nil {
		t.Fatalf("get week: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected replay to leave 2 rows, got %d", len(rows))
	}
	usage, err := store.ListCycleUsage(context.Background(), "user-1", 1)
	if err != nil {
		t.Fatalf("list cycle usage: %v", err)
	}
	if len(usage) != 1 {
		t.Fatalf("expected replay to leave 1 usage row, got %d", len(usage))
	}
}

func TestApplyCycleResetDropsPreviousCycleUsage(t *testing.T) {
	applier, store := openTestApplier(t)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	state, err := rotation.New(3, now)
	if err != nil {
		t.Fatalf("new rotation state: %v", err)
	}
	state.MarkUsed("r-1", now)
	state.MarkUsed("r-2", now)
	if err := applier.projectRotation(context.Background(), "user-1", state, now); err != nil {
		t.Fatalf("seed rotation: %v", err)
	}

	reset := state.Clone()
	reset.ResetCycle(now.Add(time.Hour))
	reset.MarkUsed("r-3", now.Add(time.Hour))
	payload, err := json.Marshal(plan.CycleResetPayload{
		PlanID:              "plan-1",
		PreviousCycleNumber: 1,
		RotationState:       mustMarshalRotation(t, reset),
	})
	if err != nil {
		t.Fatalf("marshal cycle reset payload: %v", err)
	}

	evt := event.Event{
		UserID:      "user-1",
		Seq:         2,
		Timestamp:   now.Add(time.Hour),
		Type:        event.TypeCycleReset,
		EntityID:    "plan-1",
		PayloadJSON: payload,
	}
	if err := applier.Apply(context.Background(), evt); err != nil {
		t.Fatalf("apply cycle reset: %v", err)
	}

	previous, err := store.ListCycleUsage(context.Background(), "user-1", 1)
	if err != nil {
		t.Fatalf("list previous cycle usage: %v", err)
	}
	if len(previous) != 0 {
		t.Fatalf("expected previous cycle cleared, got %d rows", len(previous))
	}
	current, err := store.ListCycleUsage(context.Background(), "user-1", 2)
	if err != nil {
		t.Fatalf("list current cycle usage: %v", err)
	}
	if len(current) != 1 || current[0].RecipeID != "r-3" {
		t.Fatalf("unexpected current cycle usage %+v", current)
	}
	progress, err := store.GetProgress(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("get rotation progress: %v", err)
	}
	if progress.CycleNumber != 2 || progress.UsedCount != 1 {
		t.Fatalf("unexpected progress %+v", progress)
	}
}

func TestApplyMealReplacedRewritesRowAndSources(t *testing.T) {
	applier, store := openTestApplier(t)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	weekStart := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	state, err := rotation.New(10, now)
	if err != nil {
		t.Fatalf("new rotation state: %v", err)
	}
	state.MarkUsed("r-1", now)
	state.MarkUsed("r-2", now)

	generated := generatedEvent(t, "user-1", "plan-1", "", []plan.Week{testWeek(weekStart)}, state, now)
	if err := applier.Apply(context.Background(), generated); err != nil {
		t.Fatalf("apply generation: %v", err)
	}

	swapped := state.Clone()
	swapped.Release("r-2")
	swapped.MarkUsed("r-7", now.Add(time.Hour))
	payload, err := json.Marshal(plan.MealReplacedPayload{
		PlanID:           "plan-1",
		Date:             plan.FormatDate(weekStart.AddDate(0, 0, 1)),
		Slot:             string(recipe.CourseDinner),
		PreviousRecipeID: "r-2",
		RecipeID:         "r-7",
		Rationale:        "swapped by user",
		RotationState:    mustMarshalRotation(t, swapped),
	})
	if err != nil {
		t.Fatalf("marshal meal replaced payload: %v", err)
	}

	evt := event.Event{
		UserID:      "user-1",
		Seq:         2,
		Timestamp:   now.Add(time.Hour),
		Type:        event.TypeMealReplaced,
		EntityID:    "plan-1",
		PayloadJSON: payload,
	}
	if err := applier.Apply(context.Background(), evt); err != nil {
		t.Fatalf("apply meal replaced: %v", err)
	}

	rows, err := store.GetWeek(context.Background(), "user-1", weekStart)
	if err != nil {
		t.Fatalf("get week: %v", err)
	}
	var found bool
	for _, row := range rows {
		if row.Date.Equal(weekStart.AddDate(0, 0, 1)) && row.Slot == string(recipe.CourseDinner) {
			found = true
			if row.RecipeID != "r-7" || row.Rationale != "swapped by user" {
				t.Fatalf("unexpected replaced row %+v", row)
			}
		}
	}
	if !found {
		t.Fatal("replaced row not found")
	}

	sources, err := store.ListWeekSources(context.Background(), "user-1", weekStart)
	if err != nil {
		t.Fatalf("list week sources: %v", err)
	}
	ids := map[string]bool{}
	for _, source := range sources {
		ids[source.RecipeID] = true
	}
	if ids["r-2"] || !ids["r-7"] {
		t.Fatalf("expected sources to track replacement, got %v", ids)
	}

	usage, err := store.ListCycleUsage(context.Background(), "user-1", 1)
	if err != nil {
		t.Fatalf("list cycle usage: %v", err)
	}
	usageIDs := map[string]bool{}
	for _, row := range usage {
		usageIDs[row.RecipeID] = true
	}
	if usageIDs["r-2"] || !usageIDs["r-7"] {
		t.Fatalf("expected usage rewrite after release, got %v", usageIDs)
	}
}

func TestApplyRejectsUnhandledType(t *testing.T) {
	applier, _ := openTestApplier(t)

	err := applier.Apply(context.Background(), event.Event{
		UserID: "user-1",
		Seq:    1,
		Type:   event.Type("plan.unknown"),
	})
	if err == nil {
		t.Fatal("expected unhandled event type to error")
	}
}

func TestApplyRejectsMissingStore(t *testing.T) {
	applier, _ := openTestApplier(t)
	applier.Calendar = nil

	state, err := rotation.New(10, time.Now().UTC())
	if err != nil {
		t.Fatalf("new rotation state: %v", err)
	}
	evt := generatedEvent(t, "user-1", "plan-1", "", nil, state, time.Now().UTC())
	if err := applier.Apply(context.Background(), evt); err == nil {
		t.Fatal("expected missing calendar store to fail preconditions")
	}
}

func TestHandledTypesCoversRegistry(t *testing.T) {
	types := HandledTypes()
	if len(types) != len(event.Registered()) {
		t.Fatalf("expected handler for every registered type, got %d of %d", len(types), len(event.Registered()))
	}
	for _, registered := range event.Registered() {
		var found bool
		for _, handled := range types {
			if handled == registered {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("registered type %s has no projection handler", registered)
		}
	}
}
