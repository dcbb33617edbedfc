package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mealcycle/mealcycle/internal/storage"
)

// RotationStore methods (rotation-meter read model)

// PutProgress upserts the user's rotation-progress row.
func (s *Store) PutProgress(ctx context.Context, record storage.RotationProgressRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(record.UserID) == "" {
		return fmt.Errorf("user id is required")
	}

	if _, err := s.db().ExecContext(
		ctx,
		`INSERT INTO rotation_progress (user_id, cycle_number, cycle_started_at, used_count, total_count, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		     cycle_number = excluded.cycle_number,
		     cycle_started_at = excluded.cycle_started_at,
		     used_count = excluded.used_count,
		     total_count = excluded.total_count,
		     updated_at = excluded.updated_at`,
		record.UserID,
		int64(record.CycleNumber),
		toMillis(record.CycleStartedAt),
		record.UsedCount,
		record.TotalCount,
		toMillis(record.UpdatedAt),
	); err != nil {
		return fmt.Errorf("put rotation progress: %w", err)
	}
	return nil
}

// GetProgress returns the user's rotation-progress row.
func (s *Store) GetProgress(ctx context.Context, userID string) (storage.RotationProgressRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.RotationProgressRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.RotationProgressRecord{}, fmt.Errorf("storage is not configured")
	}

	var (
		record         storage.RotationProgressRecord
		cycleNumber    int64
		cycleStartedAt int64
		updatedAt      int64
	)
	err := s.db().QueryRowContext(
		ctx,
		`SELECT user_id, cycle_number, cycle_started_at, used_count, total_count, updated_at
		 FROM rotation_progress
		 WHERE user_id = ?`,
		userID,
	).Scan(
		&record.UserID,
		&cycleNumber,
		&cycleStartedAt,
		&record.UsedCount,
		&record.TotalCount,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.RotationProgressRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.RotationProgressRecord{}, fmt.Errorf("get rotation progress: %w", err)
	}
	record.CycleNumber = uint64(cycleNumber)
	record.CycleStartedAt = fromMillis(cycleStartedAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

// PutUsage inserts a usage row. Re-inserting the same (user, cycle, recipe)
// succeeds without duplication so replayed events stay idempotent.
func (s *Store) PutUsage(ctx context.Context, record storage.RotationUsageRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(record.RecipeID) == "" {
		return fmt.Errorf("recipe id is required")
	}

	if _, err := s.db().ExecContext(
		ctx,
		`INSERT OR IGNORE INTO rotation_usage (user_id, cycle_number, recipe_id, used_at)
		 VALUES (?, ?, ?, ?)`,
		record.UserID,
		int64(record.CycleNumber),
		record.RecipeID,
		toMillis(record.UsedAt),
	); err != nil {
		return fmt.Errorf("put rotation usage: %w", err)
	}
	return nil
}

// ListCycleUsage lists the usage rows for one (user, cycle) in recipe order.
func (s *Store) ListCycleUsage(ctx context.Context, userID string, cycleNumber uint64) ([]storage.RotationUsageRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.db().QueryContext(
		ctx,
		`SELECT user_id, cycle_number, recipe_id, used_at
		 FROM rotation_usage
		 WHERE user_id = ? AND cycle_number = ?
		 ORDER BY recipe_id`,
		userID,
		int64(cycleNumber),
	)
	if err != nil {
		return nil, fmt.Errorf("list cycle usage: %w", err)
	}
	defer rows.Close()

	var records []storage.RotationUsageRecord
	for rows.Next() {
		var (
			record storage.RotationUsageRecord
			cycle  int64
			usedAt int64
		)
		if err := rows.Scan(&record.UserID, &cycle, &record.RecipeID, &usedAt); err != nil {
			return nil, fmt.Errorf("scan cycle usage: %w", err)
		}
		record.CycleNumber = uint64(cycle)
		record.UsedAt = fromMillis(usedAt)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cycle usage: %w", err)
	}
	return records, nil
}

// DeleteCycleUsage removes the usage rows for exactly (user, cycle). Deleting
// an already-absent cycle succeeds silently.
func (s *Store) DeleteCycleUsage(ctx context.Context, userID string, cycleNumber uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	if _, err := s.db().ExecContext(
		ctx,
		`DELETE FROM rotation_usage WHERE user_id = ? AND cycle_number = ?`,
		userID,
		int64(cycleNumber),
	); err != nil {
		return fmt.Errorf("delete cycle usage: %w", err)
	}
	return nil
}

// ShoppingStore methods (shopping-list source read model)

// ReplaceWeekSources atomically rewrites one week's shopping sources.
func (s *Store) ReplaceWeekSources(ctx context.Context, userID string, weekStart time.Time, rows []storage.ShoppingSourceRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("user id is required")
	}

	if s.tx != nil {
		return s.replaceWeekSourceRows(ctx, userID, weekStart, rows)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace sources tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.withTx(tx).replaceWeekSourceRows(ctx, userID, weekStart, rows); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace sources tx: %w", err)
	}
	return nil
}

func (s *Store) replaceWeekSourceRows(ctx context.Context, userID string, weekStart time.Time, rows []storage.ShoppingSourceRecord) error {
	if _, err := s.db().ExecContext(
		ctx,
		`DELETE FROM shopping_sources WHERE user_id = ? AND week_start = ?`,
		userID,
		toMillis(weekStart),
	); err != nil {
		return fmt.Errorf("clear week sources: %w", err)
	}

	for _, row := range rows {
		if _, err := s.db().ExecContext(
			ctx,
			`INSERT OR IGNORE INTO shopping_sources (user_id, plan_id, week_start, date, recipe_id)
			 VALUES (?, ?, ?, ?, ?)`,
			row.UserID,
			row.PlanID,
			toMillis(row.WeekStart),
			toMillis(row.Date),
			row.RecipeID,
		); err != nil {
			return fmt.Errorf("insert shopping source %s: %w", row.RecipeID, err)
		}
	}
	return nil
}

// DeleteUserSources clears a user's shopping sources ahead of projecting a
// superseding plan.
func (s *Store) DeleteUserSources(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	if _, err := s.db().ExecContext(
		ctx,
		`DELETE FROM shopping_sources WHERE user_id = ?`,
		userID,
	); err != nil {
		return fmt.Errorf("delete user sources: %w", err)
	}
	return nil
}

// ListWeekSources lists one week's shopping sources ordered by date then recipe.
func (s *Store) ListWeekSources(ctx context.Context, userID string, weekStart time.Time) ([]storage.ShoppingSourceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.db().QueryContext(
		ctx,
		`SELECT user_id, plan_id, week_start, date, recipe_id
		 FROM shopping_sources
		 WHERE user_id = ? AND week_start = ?
		 ORDER BY date, recipe_id`,
		userID,
		toMillis(weekStart),
	)
	if err != nil {
		return nil, fmt.Errorf("list week sources: %w", err)
	}
	defer rows.Close()

	var records []storage.ShoppingSourceRecord
	for rows.Next() {
		var (
			record       storage.ShoppingSourceRecord
			weekStartRaw int64
			dateRaw      int64
		)
		if err := rows.Scan(&record.UserID, &record.PlanID, &weekStartRaw, &dateRaw, &record.RecipeID); err != nil {
			return nil, fmt.Errorf("scan shopping source: %w", err)
		}
		record.WeekStart = fromMillis(weekStartRaw)
		record.Date = fromMillis(dateRaw)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shopping sources: %w", err)
	}
	return records, nil
}
