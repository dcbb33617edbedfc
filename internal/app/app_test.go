package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mealcycle/mealcycle/internal/domain/recipe"
	"github.com/mealcycle/mealcycle/internal/storage"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	dir := t.TempDir()
	a, err := New(Config{
		HTTPAddr:          "127.0.0.1:0",
		EventsDBPath:      filepath.Join(dir, "events.db"),
		ProjectionsDBPath: filepath.Join(dir, "projections.db"),
		OutboxInterval:    10 * time.Millisecond,
		OutboxBatchSize:   16,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(func() {
		if err := a.Close(); err != nil {
			t.Fatalf("close app: %v", err)
		}
	})
	return a
}

func TestDrainOutboxProjectsGeneratedPlan(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	for i := 1; i <= 7; i++ {
		err := a.projections.PutFavorite(ctx, storage.FavoriteRecord{
			UserID: "user-1",
			Recipe: recipe.ForPlanning{
				ID:       fmt.Sprintf("r-%d", i),
				Name:     fmt.Sprintf("Recipe %d", i),
				Course:   recipe.CourseDinner,
				Cuisine:  "thai",
				PrepTime: 25 * time.Minute,
			},
		})
		if err != nil {
			t.Fatalf("seed favorite: %v", err)
		}
	}

	state, err := a.orch.Generate(ctx, "user-1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	processed, err := a.drainOutbox(ctx)
	if err != nil {
		t.Fatalf("drain outbox: %v", err)
	}
	if processed == 0 {
		t.Fatal("expected outbox rows to process")
	}

	rows, err := a.orch.GetWeek(ctx, "user-1", state.Weeks[0].StartDate)
	if err != nil {
		t.Fatalf("get projected week: %v", err)
	}
	if len(rows) != 7 {
		t.Fatalf("projected rows = %d, want 7", len(rows))
	}

	progress, err := a.projections.GetProgress(ctx, "user-1")
	if err != nil {
		t.Fatalf("get rotation progress: %v", err)
	}
	if progress.TotalCount != 7 {
		t.Fatalf("rotation total = %d, want 7", progress.TotalCount)
	}

	// A second pass has nothing left to do.
	processed, err = a.drainOutbox(ctx)
	if err != nil {
		t.Fatalf("second drain: %v", err)
	}
	if processed != 0 {
		t.Fatalf("second drain processed %d rows, want 0", processed)
	}
}

func TestOutboxOpsEndpoints(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	summary := getOutboxSummary(t, a)
	if summary.PendingCount != 0 || summary.DeadCount != 0 {
		t.Fatalf("fresh outbox summary = %+v, want empty", summary)
	}

	for i := 1; i <= 7; i++ {
		err := a.projections.PutFavorite(ctx, storage.FavoriteRecord{
			UserID: "user-1",
			Recipe: recipe.ForPlanning{
				ID:      fmt.Sprintf("r-%d", i),
				Course:  recipe.CourseDinner,
				Cuisine: "thai",
			},
		})
		if err != nil {
			t.Fatalf("seed favorite: %v", err)
		}
	}
	if _, err := a.orch.Generate(ctx, "user-1"); err != nil {
		t.Fatalf("generate: %v", err)
	}

	// The commit enqueued outbox rows and the summary endpoint sees them.
	summary = getOutboxSummary(t, a)
	if summary.PendingCount == 0 {
		t.Fatal("expected pending outbox rows after a generation")
	}

	// Requeue with no dead rows is a no-op.
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/internal/outbox/requeue", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("requeue status = %d, want %d", rec.Code, http.StatusOK)
	}
	var requeue struct {
		Requeued int `json:"requeued"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&requeue); err != nil {
		t.Fatalf("decode requeue response: %v", err)
	}
	if requeue.Requeued != 0 {
		t.Fatalf("requeued = %d, want 0", requeue.Requeued)
	}

	rec = httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/internal/outbox/requeue?limit=0", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func getOutboxSummary(t *testing.T, a *App) outboxSummaryResponse {
	t.Helper()
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/internal/outbox", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("summary status = %d, want %d", rec.Code, http.StatusOK)
	}
	var summary outboxSummaryResponse
	if err := json.NewDecoder(rec.Body).Decode(&summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	return summary
}

func TestRunStopsOnContextCancel(t *testing.T) {
	a := newTestApp(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- a.Run(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
}

func TestNewRejectsBadDatabasePath(t *testing.T) {
	dir := t.TempDir()
	_, err := New(Config{
		EventsDBPath:      filepath.Join(dir, "missing", "events.db"),
		ProjectionsDBPath: filepath.Join(dir, "projections.db"),
	}, zap.NewNop())
	if err == nil {
		t.Fatal("expected an error for an unreachable events path")
	}
}
