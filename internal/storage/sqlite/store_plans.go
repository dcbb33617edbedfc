package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mealcycle/mealcycle/internal/storage"
)

// PlanStore methods (plan-header read model)

// PutPlan upserts a plan-header row.
func (s *Store) PutPlan(ctx context.Context, record storage.PlanRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("plan id is required")
	}
	if strings.TrimSpace(record.UserID) == "" {
		return fmt.Errorf("user id is required")
	}

	if _, err := s.db().ExecContext(
		ctx,
		`INSERT INTO plans (id, user_id, status, week_count, week_start, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		     status = excluded.status,
		     week_count = excluded.week_count,
		     week_start = excluded.week_start,
		     updated_at = excluded.updated_at`,
		record.ID,
		record.UserID,
		record.Status,
		record.WeekCount,
		toMillis(record.WeekStart),
		toMillis(record.CreatedAt),
		toMillis(record.UpdatedAt),
	); err != nil {
		return fmt.Errorf("put plan %s: %w", record.ID, err)
	}
	return nil
}

// GetPlan returns one plan-header row.
func (s *Store) GetPlan(ctx context.Context, id string) (storage.PlanRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.PlanRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.PlanRecord{}, fmt.Errorf("storage is not configured")
	}

	row := s.db().QueryRowContext(
		ctx,
		`SELECT id, user_id, status, week_count, week_start, created_at, updated_at
		 FROM plans
		 WHERE id = ?`,
		id,
	)
	return scanPlan(row)
}

// GetActivePlan returns the user's active plan header.
func (s *Store) GetActivePlan(ctx context.Context, userID string) (storage.PlanRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.PlanRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.PlanRecord{}, fmt.Errorf("storage is not configured")
	}

	row := s.db().QueryRowContext(
		ctx,
		`SELECT id, user_id, status, week_count, week_start, created_at, updated_at
		 FROM plans
		 WHERE user_id = ? AND status = 'active'
		 ORDER BY created_at DESC
		 LIMIT 1`,
		userID,
	)
	return scanPlan(row)
}

func scanPlan(row *sql.Row) (storage.PlanRecord, error) {
	var (
		record    storage.PlanRecord
		weekStart int64
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(
		&record.ID,
		&record.UserID,
		&record.Status,
		&record.WeekCount,
		&weekStart,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.PlanRecord{}, storage.ErrNotFound
		}
		return storage.PlanRecord{}, fmt.Errorf("scan plan: %w", err)
	}
	record.WeekStart = fromMillis(weekStart)
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}
