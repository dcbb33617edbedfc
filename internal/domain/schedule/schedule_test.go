package schedule

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/mealcycle/mealcycle/internal/domain/plan"
	"github.com/mealcycle/mealcycle/internal/domain/recipe"
	"github.com/mealcycle/mealcycle/internal/domain/rotation"
	"github.com/mealcycle/mealcycle/internal/errors"
)

var (
	scheduleNow = time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)
	monday      = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
)

func mains(n int) []recipe.ForPlanning {
	out := make([]recipe.ForPlanning, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, recipe.ForPlanning{
			ID:      fmt.Sprintf("main-%d", i),
			Name:    fmt.Sprintf("Main %d", i),
			Course:  recipe.CourseMain,
			Cuisine: "italian",
		})
	}
	return out
}

func freshRotation(t *testing.T, total int) rotation.State {
	t.Helper()
	state, err := rotation.New(total, scheduleNow)
	if err != nil {
		t.Fatalf("new rotation: %v", err)
	}
	return state
}

func baseInput(t *testing.T, pool recipe.Pool, weeks int) Input {
	t.Helper()
	starts := make([]time.Time, 0, weeks)
	for i := 0; i < weeks; i++ {
		starts = append(starts, monday.AddDate(0, 0, 7*i))
	}
	return Input{
		Pool:       pool,
		WeekStarts: starts,
		Constraints: Constraints{
			Slots: []recipe.Course{recipe.CourseMain},
		},
		Rotation: freshRotation(t, pool.Count(recipe.CourseMain)),
		Now:      scheduleNow,
		Rand:     rand.New(rand.NewSource(42)),
	}
}

func TestGenerateFillsEverySlot(t *testing.T) {
	pool := recipe.Pool{recipe.CourseMain: mains(10)}
	result, err := Generate(baseInput(t, pool, 1))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(result.Weeks) != 1 {
		t.Fatalf("expected 1 week, got %d", len(result.Weeks))
	}
	week := result.Weeks[0]
	if !week.StartDate.Equal(monday) || !week.EndDate.Equal(monday.AddDate(0, 0, 6)) {
		t.Fatalf("unexpected week bounds: %v..%v", week.StartDate, week.EndDate)
	}
	if len(week.Assignments) != 7 {
		t.Fatalf("expected 7 assignments, got %d", len(week.Assignments))
	}
	for _, a := range week.Assignments {
		if a.RecipeID == "" {
			t.Fatalf("unexpected gap on %s", plan.FormatDate(a.Date))
		}
		if a.Rationale == "" {
			t.Fatal("expected a rationale on every assignment")
		}
	}
	if result.Gaps != 0 {
		t.Fatalf("expected no gaps, got %d", result.Gaps)
	}
}

func TestMainCourseUniquenessAcrossWindow(t *testing.T) {
	// 21 slots over 3 weeks, 25 mains: no id may repeat before the cycle
	// exhausts, and with spare favorites it never exhausts.
	pool := recipe.Pool{recipe.CourseMain: mains(25)}
	result, err := Generate(baseInput(t, pool, 3))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	seen := make(map[string]int)
	for _, week := range result.Weeks {
		for _, a := range week.Assignments {
			if a.RecipeID == "" {
				t.Fatalf("unexpected gap on %s", plan.FormatDate(a.Date))
			}
			seen[a.RecipeID]++
		}
	}
	for id, count := range seen {
		if count > 1 {
			t.Fatalf("main %s assigned %d times before cycle exhaustion", id, count)
		}
	}
	if len(result.Resets) != 0 {
		t.Fatalf("expected no resets, got %d", len(result.Resets))
	}
	if len(result.Rotation.UsedRecipeIDs) != 21 {
		t.Fatalf("expected 21 used mains, got %d", len(result.Rotation.UsedRecipeIDs))
	}
}

func TestCycleResetMidWindowContinues(t *testing.T) {
	// 3 mains across a 7-slot week: the cycle exhausts after 3 picks and must
	// reset and keep filling rather than leaving slots empty.
	pool := recipe.Pool{recipe.CourseMain: mains(3)}
	result, err := Generate(baseInput(t, pool, 1))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	for _, a := range result.Weeks[0].Assignments {
		if a.RecipeID == "" {
			t.Fatalf("expected reset-and-continue, found gap on %s", plan.FormatDate(a.Date))
		}
	}
	// 7 picks over 3 favorites: resets after picks 3 and 6.
	if len(result.Resets) != 2 {
		t.Fatalf("expected 2 resets, got %d", len(result.Resets))
	}
	if result.Resets[0].PreviousCycleNumber != 1 || result.Resets[0].NewCycleNumber != 2 {
		t.Fatalf("unexpected first reset: %+v", result.Resets[0])
	}
	if result.Rotation.CycleNumber != 3 {
		t.Fatalf("expected cycle 3 after two resets, got %d", result.Rotation.CycleNumber)
	}
	// Between resets every id is distinct: 7 picks = 3 + 3 + 1.
	if len(result.Rotation.UsedRecipeIDs) != 1 {
		t.Fatalf("expected 1 used main in final cycle, got %d", len(result.Rotation.UsedRecipeIDs))
	}
}

func TestExhaustedCycleResetsBeforeNextAssignment(t *testing.T) {
	// Cycle-reset round trip: prior generations consumed all 3 main-course
	// favorites, so the next required main must bump cycle_number by 1 and
	// clear the used set before any assignment is made.
	pool := recipe.Pool{recipe.CourseMain: mains(3)}
	rot := freshRotation(t, 3)
	for _, r := range pool[recipe.CourseMain] {
		rot.MarkUsed(r.ID, scheduleNow)
	}
	if !rot.ShouldReset() {
		t.Fatal("setup: expected exhausted cycle")
	}

	input := baseInput(t, pool, 1)
	input.Rotation = rot
	result, err := Generate(input)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if len(result.Resets) == 0 {
		t.Fatal("expected a reset before the first assignment")
	}
	first := result.Resets[0]
	if first.PreviousCycleNumber != 1 || first.NewCycleNumber != 2 {
		t.Fatalf("expected cycle 1 -> 2, got %d -> %d", first.PreviousCycleNumber, first.NewCycleNumber)
	}
	if got := result.Weeks[0].Assignments[0].RecipeID; got == "" {
		t.Fatal("expected first slot assigned from the fresh cycle")
	}
	// 7 picks over 3 favorites starting exhausted: resets before picks 1, 4 and 7.
	if len(result.Resets) != 3 {
		t.Fatalf("expected 3 resets, got %d", len(result.Resets))
	}
	if result.Rotation.CycleNumber != 4 {
		t.Fatalf("expected cycle 4, got %d", result.Rotation.CycleNumber)
	}
}

func TestAccompanimentGating(t *testing.T) {
	accepting := recipe.ForPlanning{
		ID: "main-acc", Name: "Roast", Course: recipe.CourseMain,
		AcceptsAccompaniment:       true,
		CompatibleAccompanimentIDs: []string{"side-1", "side-2"},
	}
	refusing := recipe.ForPlanning{
		ID: "main-solo", Name: "Stew", Course: recipe.CourseMain,
		AcceptsAccompaniment:       false,
		CompatibleAccompanimentIDs: []string{"side-1"},
	}
	pool := recipe.Pool{
		recipe.CourseMain: {accepting, refusing},
		recipe.CourseAccompaniment: {
			{ID: "side-1", Name: "Salad", Course: recipe.CourseAccompaniment},
			{ID: "side-2", Name: "Rice", Course: recipe.CourseAccompaniment},
		},
	}

	input := baseInput(t, pool, 1)
	result, err := Generate(input)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	for _, a := range result.Weeks[0].Assignments {
		switch a.RecipeID {
		case "main-acc":
			if a.AccompanimentID == "" {
				t.Fatal("accepting main must be paired")
			}
			if a.AccompanimentID != "side-1" && a.AccompanimentID != "side-2" {
				t.Fatalf("paired with incompatible accompaniment %s", a.AccompanimentID)
			}
		case "main-solo":
			if a.AccompanimentID != "" {
				t.Fatalf("refusing main must never be paired, got %s", a.AccompanimentID)
			}
		}
	}
}

func TestEmptyAccompanimentPoolLeavesPairingEmpty(t *testing.T) {
	pool := recipe.Pool{
		recipe.CourseMain: {{
			ID: "main-acc", Course: recipe.CourseMain,
			AcceptsAccompaniment:       true,
			CompatibleAccompanimentIDs: []string{"side-1"},
		}},
	}
	result, err := Generate(baseInput(t, pool, 1))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	for _, a := range result.Weeks[0].Assignments {
		if a.RecipeID != "main-acc" {
			t.Fatalf("expected main assigned despite missing accompaniments, got %q", a.RecipeID)
		}
		if a.AccompanimentID != "" {
			t.Fatalf("expected empty accompaniment, got %s", a.AccompanimentID)
		}
	}
}

func TestEmptyCandidatePoolLeavesSlotOpen(t *testing.T) {
	pool := recipe.Pool{
		recipe.CourseMain: mains(7),
		// No dessert favorites at all.
	}
	input := baseInput(t, pool, 1)
	input.Constraints.Slots = []recipe.Course{recipe.CourseMain, recipe.CourseDessert}

	result, err := Generate(input)
	if err != nil {
		t.Fatalf("generate must not fail on empty pools: %v", err)
	}
	gaps := 0
	for _, a := range result.Weeks[0].Assignments {
		if a.Slot == recipe.CourseDessert {
			if a.RecipeID != "" {
				t.Fatal("expected dessert slots to stay open")
			}
			if a.Rationale == "" {
				t.Fatal("expected gap rationale")
			}
			gaps++
		}
	}
	if gaps != 7 || result.Gaps != 7 {
		t.Fatalf("expected 7 gaps, got %d counted / %d reported", gaps, result.Gaps)
	}
}

func TestPrepBudgetFiltering(t *testing.T) {
	quick := recipe.ForPlanning{ID: "quick", Course: recipe.CourseMain, PrepTime: 20 * time.Minute}
	slow := recipe.ForPlanning{ID: "slow", Course: recipe.CourseMain, PrepTime: 2 * time.Hour}
	pool := recipe.Pool{recipe.CourseMain: {quick, slow}}

	input := baseInput(t, pool, 1)
	input.Constraints.MaxPrepWeeknight = 30 * time.Minute
	input.Constraints.MaxPrepWeekend = 3 * time.Hour

	result, err := Generate(input)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	for _, a := range result.Weeks[0].Assignments {
		wd := a.Date.Weekday()
		weekend := wd == time.Saturday || wd == time.Sunday
		if !weekend && a.RecipeID == "slow" {
			t.Fatalf("slow recipe assigned on weeknight %s", plan.FormatDate(a.Date))
		}
	}
}

func TestAvoidConsecutiveComplex(t *testing.T) {
	var pool recipe.Pool
	complexMains := make([]recipe.ForPlanning, 0, 10)
	for i := 0; i < 9; i++ {
		complexMains = append(complexMains, recipe.ForPlanning{
			ID:         fmt.Sprintf("complex-%d", i),
			Course:     recipe.CourseMain,
			Complexity: recipe.ComplexityComplex,
		})
	}
	simple := recipe.ForPlanning{ID: "simple-0", Course: recipe.CourseMain, Complexity: recipe.ComplexitySimple}
	pool = recipe.Pool{recipe.CourseMain: append(complexMains, simple)}

	input := baseInput(t, pool, 1)
	input.Constraints.AvoidConsecutiveComplex = true

	result, err := Generate(input)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	assignments := result.Weeks[0].Assignments
	complexOn := make(map[string]bool)
	for _, a := range assignments {
		if a.RecipeID == "" {
			continue
		}
		complexOn[plan.FormatDate(a.Date)] = a.RecipeID != "simple-0"
	}
	for i := 1; i < len(assignments); i++ {
		day := plan.FormatDate(assignments[i].Date)
		prev := plan.FormatDate(assignments[i].Date.AddDate(0, 0, -1))
		if complexOn[prev] && complexOn[day] {
			t.Fatalf("complex recipes on consecutive days %s and %s", prev, day)
		}
	}
}

func TestVarietyWeightOnePrefersLeastUsedCuisine(t *testing.T) {
	pool := recipe.Pool{recipe.CourseMain: {
		{ID: "it-1", Course: recipe.CourseMain, Cuisine: "italian"},
		{ID: "it-2", Course: recipe.CourseMain, Cuisine: "italian"},
		{ID: "it-3", Course: recipe.CourseMain, Cuisine: "italian"},
		{ID: "th-1", Course: recipe.CourseMain, Cuisine: "thai"},
		{ID: "mx-1", Course: recipe.CourseMain, Cuisine: "mexican"},
		{ID: "th-2", Course: recipe.CourseMain, Cuisine: "thai"},
		{ID: "mx-2", Course: recipe.CourseMain, Cuisine: "mexican"},
	}}
	input := baseInput(t, pool, 1)
	input.Constraints.CuisineVarietyWeight = 1

	result, err := Generate(input)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	// With weight 1 every pick takes a least-used cuisine, so after three
	// picks all three cuisines must have appeared.
	cuisines := make(map[string]bool)
	byID := make(map[string]string)
	for _, r := range pool[recipe.CourseMain] {
		byID[r.ID] = r.Cuisine
	}
	for _, a := range result.Weeks[0].Assignments[:3] {
		cuisines[byID[a.RecipeID]] = true
	}
	if len(cuisines) != 3 {
		t.Fatalf("expected all cuisines represented in first three picks, got %v", cuisines)
	}
}

func TestAppetizersRepeatAfterFirstFullPass(t *testing.T) {
	pool := recipe.Pool{
		recipe.CourseMain: mains(7),
		recipe.CourseAppetizer: {
			{ID: "app-1", Course: recipe.CourseAppetizer},
			{ID: "app-2", Course: recipe.CourseAppetizer},
		},
	}
	input := baseInput(t, pool, 1)
	input.Constraints.Slots = []recipe.Course{recipe.CourseAppetizer, recipe.CourseMain}

	result, err := Generate(input)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	var apps []string
	for _, a := range result.Weeks[0].Assignments {
		if a.Slot == recipe.CourseAppetizer {
			if a.RecipeID == "" {
				t.Fatal("appetizer slot unexpectedly empty")
			}
			apps = append(apps, a.RecipeID)
		}
	}
	if len(apps) != 7 {
		t.Fatalf("expected 7 appetizer picks, got %d", len(apps))
	}
	// First pass is unique; afterwards repeats are free.
	if apps[0] == apps[1] {
		t.Fatalf("first pass must not repeat: %v", apps[:2])
	}
}

func TestSameSeedSameOutput(t *testing.T) {
	pool := recipe.Pool{recipe.CourseMain: mains(10)}

	run := func(seed int64) Result {
		input := baseInput(t, pool, 2)
		input.Rand = rand.New(rand.NewSource(seed))
		result, err := Generate(input)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		return result
	}

	a, b := run(99), run(99)
	for i := range a.Weeks {
		for j := range a.Weeks[i].Assignments {
			if a.Weeks[i].Assignments[j].RecipeID != b.Weeks[i].Assignments[j].RecipeID {
				t.Fatal("same seed must produce identical assignments")
			}
		}
	}
}

func TestValidateInput(t *testing.T) {
	pool := recipe.Pool{recipe.CourseMain: mains(3)}

	t.Run("missing random source", func(t *testing.T) {
		input := baseInput(t, pool, 1)
		input.Rand = nil
		if _, err := Generate(input); !errors.IsCode(err, errors.CodeAlgorithmFault) {
			t.Fatalf("expected ALGORITHM_FAULT, got %v", err)
		}
	})
	t.Run("no slots", func(t *testing.T) {
		input := baseInput(t, pool, 1)
		input.Constraints.Slots = nil
		if _, err := Generate(input); err == nil {
			t.Fatal("expected error")
		}
	})
	t.Run("weight out of range", func(t *testing.T) {
		input := baseInput(t, pool, 1)
		input.Constraints.CuisineVarietyWeight = 1.5
		if _, err := Generate(input); err == nil {
			t.Fatal("expected error")
		}
	})
	t.Run("non-monday week start", func(t *testing.T) {
		input := baseInput(t, pool, 1)
		input.WeekStarts = []time.Time{monday.AddDate(0, 0, 1)}
		if _, err := Generate(input); err == nil {
			t.Fatal("expected error")
		}
	})
	t.Run("non-consecutive weeks", func(t *testing.T) {
		input := baseInput(t, pool, 1)
		input.WeekStarts = []time.Time{monday, monday.AddDate(0, 0, 14)}
		if _, err := Generate(input); err == nil {
			t.Fatal("expected error")
		}
	})
}
