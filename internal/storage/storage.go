// Package storage defines the persistence interfaces and records for the
// planning engine: the event journal on the write side and the derived read
// models on the query side.
//
// Projections are caches rebuilt from the journal; they are never a source of
// truth for generation decisions.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/mealcycle/mealcycle/internal/domain/event"
	"github.com/mealcycle/mealcycle/internal/domain/recipe"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// EventStore persists the per-user plan event journal.
type EventStore interface {
	// AppendEvents atomically appends a batch of events for one user and
	// returns them with sequence numbers assigned. The batch commits as a
	// single transaction: either every event lands or none do.
	AppendEvents(ctx context.Context, events []event.Event) ([]event.Event, error)
	// ListEvents returns a user's journal in commit order.
	ListEvents(ctx context.Context, userID string) ([]event.Event, error)
	// GetEventBySeq returns one journal entry.
	GetEventBySeq(ctx context.Context, userID string, seq uint64) (event.Event, error)
}

// PlanRecord is the plan-header read model row.
type PlanRecord struct {
	ID        string
	UserID    string
	Status    string
	WeekCount int
	WeekStart time.Time // first week's Monday
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PlanStore writes plan-header read models.
type PlanStore interface {
	PutPlan(ctx context.Context, record PlanRecord) error
	GetPlan(ctx context.Context, id string) (PlanRecord, error)
	GetActivePlan(ctx context.Context, userID string) (PlanRecord, error)
}

// AssignmentRecord is one calendar read-model row.
type AssignmentRecord struct {
	UserID          string
	PlanID          string
	WeekStart       time.Time
	Date            time.Time
	Slot            string
	RecipeID        string
	AccompanimentID string
	AdvancePrep     bool
	Rationale       string
	Locked          bool
}

// CalendarStore writes the calendar read model consumed by the calendar UI.
type CalendarStore interface {
	// ReplaceWeek atomically rewrites one week's rows for a user.
	ReplaceWeek(ctx context.Context, userID string, weekStart time.Time, rows []AssignmentRecord) error
	// DeleteUserAssignments clears a user's calendar ahead of projecting a
	// superseding plan.
	DeleteUserAssignments(ctx context.Context, userID string) error
	// GetWeek lists one week's rows ordered by date then slot position.
	GetWeek(ctx context.Context, userID string, weekStart time.Time) ([]AssignmentRecord, error)
	// UpdateAssignment rewrites a single calendar row.
	UpdateAssignment(ctx context.Context, row AssignmentRecord) error
}

// RotationProgressRecord is the rotation-meter read model row.
type RotationProgressRecord struct {
	UserID         string
	CycleNumber    uint64
	CycleStartedAt time.Time
	UsedCount      int
	TotalCount     int
	UpdatedAt      time.Time
}

// RotationUsageRecord is one per-recipe usage row within a cycle.
type RotationUsageRecord struct {
	UserID      string
	CycleNumber uint64
	RecipeID    string
	UsedAt      time.Time
}

// RotationStore writes rotation-progress read models.
type RotationStore interface {
	PutProgress(ctx context.Context, record RotationProgressRecord) error
	GetProgress(ctx context.Context, userID string) (RotationProgressRecord, error)
	// PutUsage inserts a usage row; re-inserting the same row succeeds
	// without duplication.
	PutUsage(ctx context.Context, record RotationUsageRecord) error
	ListCycleUsage(ctx context.Context, userID string, cycleNumber uint64) ([]RotationUsageRecord, error)
	// DeleteCycleUsage removes the usage rows for exactly (user, cycle).
	// Deleting an already-absent cycle succeeds silently.
	DeleteCycleUsage(ctx context.Context, userID string, cycleNumber uint64) error
}

// ShoppingSourceRecord is one shopping-list source row: a recipe reference
// the downstream shopping-list generator expands into ingredients.
type ShoppingSourceRecord struct {
	UserID    string
	PlanID    string
	WeekStart time.Time
	Date      time.Time
	RecipeID  string
}

// ShoppingStore writes shopping-list source read models.
type ShoppingStore interface {
	ReplaceWeekSources(ctx context.Context, userID string, weekStart time.Time, rows []ShoppingSourceRecord) error
	DeleteUserSources(ctx context.Context, userID string) error
	ListWeekSources(ctx context.Context, userID string, weekStart time.Time) ([]ShoppingSourceRecord, error)
}

// PreferencesRecord holds a user's planning preferences.
type PreferencesRecord struct {
	UserID                  string
	Slots                   []string
	MaxPrepWeeknight        time.Duration
	MaxPrepWeekend          time.Duration
	AvoidConsecutiveComplex bool
	CuisineVarietyWeight    float64
	WeeksPerGeneration      int
	UpdatedAt               time.Time
}

// PreferencesStore persists planning preferences. Preferences feed generation
// constraints on the write path; they are not event-sourced.
type PreferencesStore interface {
	PutPreferences(ctx context.Context, record PreferencesRecord) error
	GetPreferences(ctx context.Context, userID string) (PreferencesRecord, error)
}

// FavoriteRecord is one favorited-recipe snapshot row.
type FavoriteRecord struct {
	UserID string
	Recipe recipe.ForPlanning
}

// FavoritesStore persists favorites snapshots. It backs the favorites
// provider boundary; recipe editing itself lives outside this service.
type FavoritesStore interface {
	PutFavorite(ctx context.Context, record FavoriteRecord) error
	DeleteFavorite(ctx context.Context, userID, recipeID string) error
	// SnapshotFavorites returns a user's favorites partitioned by course.
	SnapshotFavorites(ctx context.Context, userID string) (recipe.Pool, error)
}
