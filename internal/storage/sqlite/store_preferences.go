package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mealcycle/mealcycle/internal/storage"
)

// PreferencesStore methods

// PutPreferences upserts a user's planning preferences.
func (s *Store) PutPreferences(ctx context.Context, record storage.PreferencesRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(record.UserID) == "" {
		return fmt.Errorf("user id is required")
	}

	slots := record.Slots
	if slots == nil {
		slots = []string{}
	}
	slotsJSON, err := json.Marshal(slots)
	if err != nil {
		return fmt.Errorf("marshal preference slots: %w", err)
	}

	if _, err := s.db().ExecContext(
		ctx,
		`INSERT INTO planning_preferences (
		     user_id, slots_json, max_prep_weeknight_min, max_prep_weekend_min,
		     avoid_consecutive_complex, cuisine_variety_weight, weeks_per_generation, updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		     slots_json = excluded.slots_json,
		     max_prep_weeknight_min = excluded.max_prep_weeknight_min,
		     max_prep_weekend_min = excluded.max_prep_weekend_min,
		     avoid_consecutive_complex = excluded.avoid_consecutive_complex,
		     cuisine_variety_weight = excluded.cuisine_variety_weight,
		     weeks_per_generation = excluded.weeks_per_generation,
		     updated_at = excluded.updated_at`,
		record.UserID,
		string(slotsJSON),
		int64(record.MaxPrepWeeknight/time.Minute),
		int64(record.MaxPrepWeekend/time.Minute),
		boolToInt(record.AvoidConsecutiveComplex),
		record.CuisineVarietyWeight,
		record.WeeksPerGeneration,
		toMillis(record.UpdatedAt),
	); err != nil {
		return fmt.Errorf("put preferences: %w", err)
	}
	return nil
}

// GetPreferences returns a user's planning preferences.
func (s *Store) GetPreferences(ctx context.Context, userID string) (storage.PreferencesRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.PreferencesRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.PreferencesRecord{}, fmt.Errorf("storage is not configured")
	}

	var (
		record       storage.PreferencesRecord
		slotsJSON    string
		weeknightMin int64
		weekendMin   int64
		avoidComplex int
		updatedAt    int64
	)
	err := s.db().QueryRowContext(
		ctx,
		`SELECT user_id, slots_json, max_prep_weeknight_min, max_prep_weekend_min,
		        avoid_consecutive_complex, cuisine_variety_weight, weeks_per_generation, updated_at
		 FROM planning_preferences
		 WHERE user_id = ?`,
		userID,
	).Scan(
		&record.UserID,
		&slotsJSON,
		&weeknightMin,
		&weekendMin,
		&avoidComplex,
		&record.CuisineVarietyWeight,
		&record.WeeksPerGeneration,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.PreferencesRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.PreferencesRecord{}, fmt.Errorf("get preferences: %w", err)
	}

	if err := json.Unmarshal([]byte(slotsJSON), &record.Slots); err != nil {
		return storage.PreferencesRecord{}, fmt.Errorf("unmarshal preference slots: %w", err)
	}
	record.MaxPrepWeeknight = time.Duration(weeknightMin) * time.Minute
	record.MaxPrepWeekend = time.Duration(weekendMin) * time.Minute
	record.AvoidConsecutiveComplex = avoidComplex != 0
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}
