package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mealcycle/mealcycle/internal/domain/event"
	"github.com/mealcycle/mealcycle/internal/projection"
	"github.com/mealcycle/mealcycle/internal/storage/sqlite"
)

// runOutboxWorker moves committed events through the projection handlers on a
// fixed interval. A failing batch is logged and retried on the next tick; the
// outbox itself tracks per-row backoff and dead-lettering.
func (a *App) runOutboxWorker(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.OutboxInterval)
	defer ticker.Stop()
	summaryTicker := time.NewTicker(a.cfg.OutboxSummaryInterval)
	defer summaryTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := a.drainOutbox(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				a.logger.Error("projection outbox pass failed", zap.Error(err))
			}
		case <-summaryTicker.C:
			a.logOutboxSummary(ctx)
		}
	}
}

// logOutboxSummary reports queue depth on the summary interval. Dead-lettered
// rows escalate to a warning; they need an operator requeue to move again.
func (a *App) logOutboxSummary(ctx context.Context) {
	summary, err := a.events.GetOutboxSummary(ctx)
	if err != nil {
		if ctx.Err() == nil {
			a.logger.Error("outbox summary failed", zap.Error(err))
		}
		return
	}
	fields := []zap.Field{
		zap.Int("pending", summary.PendingCount),
		zap.Int("processing", summary.ProcessingCount),
		zap.Int("failed", summary.FailedCount),
		zap.Int("dead", summary.DeadCount),
	}
	if summary.DeadCount > 0 {
		a.logger.Warn("outbox has dead-lettered events", fields...)
		return
	}
	a.logger.Info("outbox summary", fields...)
}

// drainOutbox processes due outbox rows until none remain, applying each
// event exactly once against the projections database.
func (a *App) drainOutbox(ctx context.Context) (int, error) {
	total := 0
	for {
		processed, err := a.events.ProcessOutbox(ctx, time.Now().UTC(), a.cfg.OutboxBatchSize, a.applyProjection)
		total += processed
		if err != nil {
			return total, err
		}
		if processed == 0 {
			return total, nil
		}
	}
}

// applyProjection runs the projection handlers for one event inside a
// checkpointed projections-db transaction, so replays after partial failures
// are harmless.
func (a *App) applyProjection(ctx context.Context, evt event.Event) error {
	_, err := a.projections.ApplyEventOnce(ctx, evt, func(ctx context.Context, evt event.Event, tx *sqlite.Store) error {
		applier := projection.Applier{
			Plan:     tx,
			Calendar: tx,
			Rotation: tx,
			Shopping: tx,
		}
		return applier.Apply(ctx, evt)
	})
	return err
}
