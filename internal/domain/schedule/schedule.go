// Package schedule implements the meal-plan scheduling algorithm.
//
// Generate is a pure function: given a favorites pool, a calendar window,
// constraints, prior rotation state and an injected random source it produces
// week-by-week assignments and the updated rotation state. It performs no
// I/O. The same inputs with different seeds produce different valid
// arrangements; that variety is part of the contract.
package schedule

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/mealcycle/mealcycle/internal/domain/plan"
	"github.com/mealcycle/mealcycle/internal/domain/recipe"
	"github.com/mealcycle/mealcycle/internal/domain/rotation"
	"github.com/mealcycle/mealcycle/internal/errors"
)

// Constraints are the user planning preferences applied per slot.
type Constraints struct {
	// Slots is the ordered list of course types filled for every day.
	Slots []recipe.Course
	// MaxPrepWeeknight caps recipe prep time Monday through Friday; zero
	// means no cap.
	MaxPrepWeeknight time.Duration
	// MaxPrepWeekend caps recipe prep time Saturday and Sunday; zero means no
	// cap.
	MaxPrepWeekend time.Duration
	// AvoidConsecutiveComplex excludes complex recipes on a day immediately
	// following another complex assignment in the same course.
	AvoidConsecutiveComplex bool
	// CuisineVarietyWeight in [0,1] scales the preference for cuisines
	// underrepresented so far: 0 ignores cuisine, 1 always prefers the
	// least-used cuisine.
	CuisineVarietyWeight float64
}

// Input bundles everything Generate needs. All recipe metadata must be
// pre-loaded; Generate never blocks on I/O.
type Input struct {
	Pool        recipe.Pool
	WeekStarts  []time.Time // consecutive Mondays, UTC midnight
	Constraints Constraints
	Rotation    rotation.State
	Now         time.Time
	Rand        *rand.Rand
}

// CycleReset records one rotation cycle reset that occurred mid-generation,
// in the order it occurred.
type CycleReset struct {
	PreviousCycleNumber uint64
	NewCycleNumber      uint64
	At                  time.Time
}

// Result is the outcome of one generation.
type Result struct {
	Weeks []plan.Week
	// Rotation reflects every recipe consumed during this invocation.
	Rotation rotation.State
	// Resets lists cycle resets in occurrence order; each must be committed
	// as its own event alongside the generation.
	Resets []CycleReset
	// Gaps counts slots left empty because no eligible recipe remained.
	Gaps int
}

// Generate produces one assignment per configured slot per day across the
// window. An empty candidate pool for a slot leaves the slot open; it is
// never an error.
func Generate(input Input) (Result, error) {
	if err := validate(input); err != nil {
		return Result{}, err
	}

	g := &generator{
		pool:        input.Pool,
		constraints: input.Constraints,
		rot:         input.Rotation.Clone(),
		now:         input.Now.UTC(),
		rng:         input.Rand,
		passDone:    make(map[recipe.Course]bool),
		passUsed:    make(map[recipe.Course]map[string]struct{}),
		cuisineUse:  make(map[string]int),
		lastComplex: make(map[recipe.Course]time.Time),
	}
	g.reconcileRotation()

	weeks := make([]plan.Week, 0, len(input.WeekStarts))
	for _, start := range input.WeekStarts {
		week := plan.Week{
			StartDate: start,
			EndDate:   start.AddDate(0, 0, 6),
		}
		for day := 0; day < 7; day++ {
			date := start.AddDate(0, 0, day)
			for _, slot := range input.Constraints.Slots {
				week.Assignments = append(week.Assignments, g.fill(date, slot))
			}
		}
		weeks = append(weeks, week)
	}

	return Result{
		Weeks:    weeks,
		Rotation: g.rot,
		Resets:   g.resets,
		Gaps:     g.gaps,
	}, nil
}

func validate(input Input) error {
	if input.Rand == nil {
		return errors.New(errors.CodeAlgorithmFault, "random source is required")
	}
	if len(input.Constraints.Slots) == 0 {
		return errors.New(errors.CodeAlgorithmFault, "at least one course slot is required")
	}
	if w := input.Constraints.CuisineVarietyWeight; w < 0 || w > 1 {
		return errors.New(errors.CodeAlgorithmFault, "cuisine variety weight must be within [0,1]")
	}
	if len(input.WeekStarts) == 0 {
		return errors.New(errors.CodeAlgorithmFault, "at least one week is required")
	}
	for i, start := range input.WeekStarts {
		if !start.Equal(plan.MondayOf(start)) {
			return errors.New(errors.CodeAlgorithmFault, fmt.Sprintf("week start %s is not a Monday", plan.FormatDate(start)))
		}
		if i > 0 && !start.Equal(input.WeekStarts[i-1].AddDate(0, 0, 7)) {
			return errors.New(errors.CodeAlgorithmFault, "week starts must be consecutive")
		}
	}
	return nil
}

type generator struct {
	pool        recipe.Pool
	constraints Constraints
	rot         rotation.State
	now         time.Time
	rng         *rand.Rand

	resets []CycleReset
	gaps   int

	// passDone marks repeatable courses that finished their first full pass;
	// afterwards they repeat freely.
	passDone map[recipe.Course]bool
	// passUsed tracks first-pass consumption per repeatable course.
	passUsed map[recipe.Course]map[string]struct{}
	// cuisineUse counts cuisine picks so far this invocation.
	cuisineUse map[string]int
	// lastComplex records the last date a complex recipe was assigned per
	// course.
	lastComplex map[recipe.Course]time.Time
}

// reconcileRotation aligns the rotation state with the current favorites
// snapshot: favorites removed since the last generation leave the used set,
// and the eligible total follows the snapshot.
func (g *generator) reconcileRotation() {
	var mains []recipe.ForPlanning
	for course, recipes := range g.pool {
		if course.Rotating() {
			mains = append(mains, recipes...)
		}
	}
	if len(mains) == 0 {
		return
	}
	inPool := make(map[string]struct{}, len(mains))
	for _, r := range mains {
		inPool[r.ID] = struct{}{}
	}
	for id := range g.rot.UsedRecipeIDs {
		if _, ok := inPool[id]; !ok {
			g.rot.Release(id)
		}
	}
	g.rot.TotalFavoriteCount = len(mains)
}

// fill produces the assignment for one slot on one date.
func (g *generator) fill(date time.Time, slot recipe.Course) plan.MealAssignment {
	assignment := plan.MealAssignment{Date: date, Slot: slot}

	candidates := g.eligible(date, slot)
	if slot.Rotating() {
		unused := excludeUsed(candidates, g.rot)
		if len(unused) == 0 && len(candidates) > 0 && g.rot.ShouldReset() {
			// Cycle exhausted mid-window: reset and keep filling rather than
			// leaving the remaining slots empty.
			previous := g.rot.CycleNumber
			g.rot.ResetCycle(g.now)
			g.resets = append(g.resets, CycleReset{
				PreviousCycleNumber: previous,
				NewCycleNumber:      g.rot.CycleNumber,
				At:                  g.now,
			})
			unused = excludeUsed(candidates, g.rot)
		}
		candidates = unused
	} else if !g.passDone[slot] {
		candidates = g.excludePassUsed(slot, candidates)
	}

	if len(candidates) == 0 {
		g.gaps++
		assignment.Rationale = fmt.Sprintf("no eligible %s recipe; slot left open", slot)
		return assignment
	}

	picked, viaVariety := g.pick(candidates)
	assignment.RecipeID = picked.ID
	assignment.AdvancePrep = picked.AdvancePrep > 0
	assignment.Rationale = g.rationale(picked, slot, viaVariety)

	g.record(date, slot, picked)
	g.pair(&assignment, picked)
	return assignment
}

// eligible applies the hard constraint filters for a slot: prep-time budget
// by day type and the consecutive-complex exclusion.
func (g *generator) eligible(date time.Time, slot recipe.Course) []recipe.ForPlanning {
	budget := g.constraints.MaxPrepWeeknight
	if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
		budget = g.constraints.MaxPrepWeekend
	}
	blockComplex := false
	if g.constraints.AvoidConsecutiveComplex {
		if last, ok := g.lastComplex[slot]; ok && last.AddDate(0, 0, 1).Equal(date) {
			blockComplex = true
		}
	}

	var out []recipe.ForPlanning
	for _, r := range g.pool.Course(slot) {
		if budget > 0 && r.PrepTime > budget {
			continue
		}
		if blockComplex && r.Complexity == recipe.ComplexityComplex {
			continue
		}
		out = append(out, r)
	}
	return out
}

func excludeUsed(candidates []recipe.ForPlanning, rot rotation.State) []recipe.ForPlanning {
	var out []recipe.ForPlanning
	for _, r := range candidates {
		if !rot.Used(r.ID) {
			out = append(out, r)
		}
	}
	return out
}

func (g *generator) excludePassUsed(slot recipe.Course, candidates []recipe.ForPlanning) []recipe.ForPlanning {
	used := g.passUsed[slot]
	var out []recipe.ForPlanning
	for _, r := range candidates {
		if _, ok := used[r.ID]; !ok {
			out = append(out, r)
		}
	}
	return out
}

// pick selects among eligible candidates, weighting toward underrepresented
// cuisines per the variety weight. It reports whether the variety preference
// drove the pick.
func (g *generator) pick(candidates []recipe.ForPlanning) (recipe.ForPlanning, bool) {
	weight := g.constraints.CuisineVarietyWeight
	if weight > 0 && g.rng.Float64() < weight {
		least := leastUsedCuisine(candidates, g.cuisineUse)
		if len(least) > 0 {
			return least[g.rng.Intn(len(least))], true
		}
	}
	return candidates[g.rng.Intn(len(candidates))], false
}

// leastUsedCuisine returns the candidates whose cuisine has the lowest usage
// count so far.
func leastUsedCuisine(candidates []recipe.ForPlanning, use map[string]int) []recipe.ForPlanning {
	best := -1
	var out []recipe.ForPlanning
	for _, r := range candidates {
		count := use[r.Cuisine]
		switch {
		case best == -1 || count < best:
			best = count
			out = append(out[:0], r)
		case count == best:
			out = append(out, r)
		}
	}
	return out
}

// record updates rotation and pass bookkeeping after a pick.
func (g *generator) record(date time.Time, slot recipe.Course, picked recipe.ForPlanning) {
	if slot.Rotating() {
		g.rot.MarkUsed(picked.ID, g.now)
	} else if !g.passDone[slot] {
		used := g.passUsed[slot]
		if used == nil {
			used = make(map[string]struct{})
			g.passUsed[slot] = used
		}
		used[picked.ID] = struct{}{}
		if len(used) >= g.pool.Count(slot) {
			g.passDone[slot] = true
		}
	}
	g.cuisineUse[picked.Cuisine]++
	if picked.Complexity == recipe.ComplexityComplex {
		g.lastComplex[slot] = date
	}
}

// pair attaches an accompaniment when, and only when, the picked recipe
// accepts one. A recipe with the flag unset is never paired, even when
// compatible accompaniments exist.
func (g *generator) pair(assignment *plan.MealAssignment, picked recipe.ForPlanning) {
	if !picked.AcceptsAccompaniment {
		return
	}
	var compatible []recipe.ForPlanning
	for _, id := range picked.CompatibleAccompanimentIDs {
		if acc, ok := g.pool.Accompaniment(id); ok {
			compatible = append(compatible, acc)
		}
	}
	if len(compatible) == 0 {
		// Zero accompaniments in the pool is a gap in pairing, not a
		// generation failure.
		return
	}
	acc := compatible[g.rng.Intn(len(compatible))]
	assignment.AccompanimentID = acc.ID
	if acc.Name != "" {
		assignment.Rationale += fmt.Sprintf("; paired with %s", acc.Name)
	}
}

func (g *generator) rationale(picked recipe.ForPlanning, slot recipe.Course, viaVariety bool) string {
	if slot.Rotating() {
		if viaVariety {
			return fmt.Sprintf("cycle %d pick; %s cuisine underrepresented", g.rot.CycleNumber, picked.Cuisine)
		}
		return fmt.Sprintf("cycle %d rotation pick", g.rot.CycleNumber)
	}
	if viaVariety {
		return fmt.Sprintf("%s pick; %s cuisine underrepresented", slot, picked.Cuisine)
	}
	return fmt.Sprintf("%s pick", slot)
}
