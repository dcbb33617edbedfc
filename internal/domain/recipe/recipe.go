// Package recipe defines the read-only recipe snapshot consumed by the
// planning engine. The engine never mutates these values; they are owned by
// the favorites provider that produced them.
package recipe

import "time"

// Course identifies the course slot a recipe fills.
type Course string

const (
	// CourseAppetizer recipes may repeat after a first full pass.
	CourseAppetizer Course = "appetizer"
	// CourseMain recipes drive the rotation cycle and never repeat within one.
	CourseMain Course = "main"
	// CourseDessert recipes may repeat after a first full pass.
	CourseDessert Course = "dessert"
	// CourseAccompaniment recipes repeat without restriction.
	CourseAccompaniment Course = "accompaniment"
)

// Meal-mode course slots. Products configured for breakfast/lunch/dinner
// planning supply these in the slot list instead of the course trio; dinner
// maps onto the main-course rotation rules.
const (
	CourseBreakfast Course = "breakfast"
	CourseLunch     Course = "lunch"
	CourseDinner    Course = "dinner"
)

// IsValid reports whether the course is one of the known slot types.
func (c Course) IsValid() bool {
	switch c {
	case CourseAppetizer, CourseMain, CourseDessert, CourseAccompaniment,
		CourseBreakfast, CourseLunch, CourseDinner:
		return true
	}
	return false
}

// Rotating reports whether the course drives the rotation cycle: strict
// uniqueness until the cycle exhausts.
func (c Course) Rotating() bool {
	return c == CourseMain || c == CourseDinner
}

// Complexity tiers a recipe by effort.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// ForPlanning is the snapshot of one favorited recipe as seen by the
// scheduling algorithm.
type ForPlanning struct {
	// ID is the recipe identifier in the owning recipe service.
	ID string
	// Name is the display name used in assignment rationales.
	Name string
	// Course is the slot type this recipe fills.
	Course Course
	// Complexity is the effort tier; complex recipes are subject to the
	// avoid-consecutive-complex constraint.
	Complexity Complexity
	// Cuisine tags the recipe for variety weighting.
	Cuisine string
	// DietaryTags carries the dietary exclusion tags already applied by the
	// favorites provider when building the snapshot.
	DietaryTags []string
	// AcceptsAccompaniment gates pairing: a false flag means the recipe is
	// never paired even when compatible accompaniments exist.
	AcceptsAccompaniment bool
	// CompatibleAccompanimentIDs lists accompaniment recipe ids this recipe
	// pairs with.
	CompatibleAccompanimentIDs []string
	// AdvancePrep is the advance preparation lead time; zero means none.
	AdvancePrep time.Duration
	// PrepTime is the day-of preparation time checked against day-type budgets.
	PrepTime time.Duration
}

// Pool is a favorites snapshot partitioned by course type.
type Pool map[Course][]ForPlanning

// Course returns the recipes for one course type.
func (p Pool) Course(c Course) []ForPlanning {
	return p[c]
}

// Count returns the number of favorites for one course type.
func (p Pool) Count(c Course) int {
	return len(p[c])
}

// Accompaniment looks up an accompaniment recipe by id.
func (p Pool) Accompaniment(id string) (ForPlanning, bool) {
	for _, r := range p[CourseAccompaniment] {
		if r.ID == id {
			return r, true
		}
	}
	return ForPlanning{}, false
}
