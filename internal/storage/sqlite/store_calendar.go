package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mealcycle/mealcycle/internal/storage"
)

// CalendarStore methods (calendar read model)

// ReplaceWeek atomically rewrites one week's calendar rows for a user.
// Inside a projection-apply transaction the delete and inserts share that
// transaction; standalone calls run in their own.
func (s *Store) ReplaceWeek(ctx context.Context, userID string, weekStart time.Time, rows []storage.AssignmentRecord) error {
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
		return s.replaceWeekRows(ctx, userID, weekStart, rows)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace week tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.withTx(tx).replaceWeekRows(ctx, userID, weekStart, rows); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace week tx: %w", err)
	}
	return nil
}

func (s *Store) replaceWeekRows(ctx context.Context, userID string, weekStart time.Time, rows []storage.AssignmentRecord) error {
	if _, err := s.db().ExecContext(
		ctx,
		`DELETE FROM calendar_assignments WHERE user_id = ? AND week_start = ?`,
		userID,
		toMillis(weekStart),
	); err != nil {
		return fmt.Errorf("clear week assignments: %w", err)
	}

	for _, row := range rows {
		if _, err := s.db().ExecContext(
			ctx,
			`INSERT INTO calendar_assignments (
			     user_id, plan_id, week_start, date, slot,
			     recipe_id, accompaniment_id, advance_prep, rationale, locked
			 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			row.UserID,
			row.PlanID,
			toMillis(row.WeekStart),
			toMillis(row.Date),
			row.Slot,
			row.RecipeID,
			row.AccompanimentID,
			boolToInt(row.AdvancePrep),
			row.Rationale,
			boolToInt(row.Locked),
		); err != nil {
			return fmt.Errorf("insert assignment %s/%s: %w", row.Date.Format("2006-01-02"), row.Slot, err)
		}
	}
	return nil
}

// DeleteUserAssignments clears a user's calendar ahead of projecting a
// superseding plan.
func (s *Store) DeleteUserAssignments(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	if _, err := s.db().ExecContext(
		ctx,
		`DELETE FROM calendar_assignments WHERE user_id = ?`,
		userID,
	); err != nil {
		return fmt.Errorf("delete user assignments: %w", err)
	}
	return nil
}

// GetWeek lists one week's rows ordered by date then slot.
func (s *Store) GetWeek(ctx context.Context, userID string, weekStart time.Time) ([]storage.AssignmentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.db().QueryContext(
		ctx,
		`SELECT user_id, plan_id, week_start, date, slot,
		        recipe_id, accompaniment_id, advance_prep, rationale, locked
		 FROM calendar_assignments
		 WHERE user_id = ? AND week_start = ?
		 ORDER BY date, slot`,
		userID,
		toMillis(weekStart),
	)
	if err != nil {
		return nil, fmt.Errorf("list week assignments: %w", err)
	}
	defer rows.Close()

	var records []storage.AssignmentRecord
	for rows.Next() {
		var (
			record       storage.AssignmentRecord
			weekStartRaw int64
			dateRaw      int64
			advancePrep  int
			locked       int
		)
		if err := rows.Scan(
			&record.UserID,
			&record.PlanID,
			&weekStartRaw,
			&dateRaw,
			&record.Slot,
			&record.RecipeID,
			&record.AccompanimentID,
			&advancePrep,
			&record.Rationale,
			&locked,
		); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		record.WeekStart = fromMillis(weekStartRaw)
		record.Date = fromMillis(dateRaw)
		record.AdvancePrep = advancePrep != 0
		record.Locked = locked != 0
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assignments: %w", err)
	}
	return records, nil
}

// UpdateAssignment rewrites a single calendar row.
func (s *Store) UpdateAssignment(ctx context.Context, row storage.AssignmentRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	result, err := s.db().ExecContext(
		ctx,
		`UPDATE calendar_assignments
		 SET plan_id = ?,
		     recipe_id = ?,
		     accompaniment_id = ?,
		     advance_prep = ?,
		     rationale = ?,
		     locked = ?
		 WHERE user_id = ? AND date = ? AND slot = ?`,
		row.PlanID,
		row.RecipeID,
		row.AccompanimentID,
		boolToInt(row.AdvancePrep),
		row.Rationale,
		boolToInt(row.Locked),
		row.UserID,
		toMillis(row.Date),
		row.Slot,
	)
	if err != nil {
		return fmt.Errorf("update assignment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update assignment rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
