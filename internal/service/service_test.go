package service

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mealcycle/mealcycle/internal/domain/recipe"
	"github.com/mealcycle/mealcycle/internal/storage"
	"github.com/mealcycle/mealcycle/internal/storage/sqlite"
)

// testNow is a Wednesday; its week starts Monday 2026-03-02 and generation
// windows start Monday 2026-03-09.
var testNow = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

type testHarness struct {
	orch        *Orchestrator
	events      *sqlite.Store
	projections *sqlite.Store
	clock       *time.Time
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	dir := t.TempDir()

	events, err := sqlite.OpenEvents(filepath.Join(dir, "events.db"))
	if err != nil {
		t.Fatalf("open events store: %v", err)
	}
	t.Cleanup(func() {
		if err := events.Close(); err != nil {
			t.Fatalf("close events store: %v", err)
		}
	})
	projections, err := sqlite.OpenProjections(filepath.Join(dir, "projections.db"))
	if err != nil {
		t.Fatalf("open projections store: %v", err)
	}
	t.Cleanup(func() {
		if err := projections.Close(); err != nil {
			t.Fatalf("close projections store: %v", err)
		}
	})

	now := testNow
	h := &testHarness{events: events, projections: projections, clock: &now}
	h.orch = New(Stores{
		Events:      events,
		Calendar:    projections,
		Preferences: projections,
		Favorites:   projections,
	}, zap.NewNop(),
		WithClock(func() time.Time { return *h.clock }),
		WithSeedSource(func() (int64, error) { return 20260304, nil }),
	)
	return h
}

func (h *testHarness) advanceTo(t time.Time) {
	*h.clock = t
}

func seedDinners(t *testing.T, store *sqlite.Store, userID string, count int) {
	t.Helper()
	cuisines := []string{"italian", "mexican", "thai"}
	for i := 1; i <= count; i++ {
		err := store.PutFavorite(context.Background(), storage.FavoriteRecord{
			UserID: userID,
			Recipe: recipe.ForPlanning{
				ID:       fmt.Sprintf("r-%d", i),
				Name:     fmt.Sprintf("Recipe %d", i),
				Course:   recipe.CourseDinner,
				Cuisine:  cuisines[i%len(cuisines)],
				PrepTime: 30 * time.Minute,
			},
		})
		if err != nil {
			t.Fatalf("seed favorite: %v", err)
		}
	}
}
