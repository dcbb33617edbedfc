package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mealcycle/mealcycle/internal/domain/plan"
	"github.com/mealcycle/mealcycle/internal/domain/recipe"
	apperrors "github.com/mealcycle/mealcycle/internal/errors"
	"github.com/mealcycle/mealcycle/internal/storage"
)

// UpdatePreferences validates and stores a user's planning preferences.
// Preferences apply from the next generation; existing plans are untouched.
func (o *Orchestrator) UpdatePreferences(ctx context.Context, record storage.PreferencesRecord) error {
	ctx, span := o.tracer.Start(ctx, "service.UpdatePreferences")
	defer span.End()

	if record.UserID == "" {
		return apperrors.New(apperrors.CodeEmptyUserID, "user id is required")
	}
	if err := validatePreferences(record); err != nil {
		return err
	}

	record.UpdatedAt = o.now()
	if err := o.stores.Preferences.PutPreferences(ctx, record); err != nil {
		return fmt.Errorf("put preferences: %w", err)
	}
	o.logger.Info("preferences updated",
		zap.String("user_id", record.UserID),
		zap.Strings("slots", record.Slots),
		zap.Int("weeks_per_generation", record.WeeksPerGeneration),
	)
	return nil
}

func validatePreferences(record storage.PreferencesRecord) error {
	if len(record.Slots) == 0 {
		return apperrors.New(apperrors.CodeInvalidPreferences, "at least one course slot is required")
	}
	seen := map[string]bool{}
	rotating := false
	for _, slot := range record.Slots {
		if !recipe.Course(slot).IsValid() {
			return apperrors.New(apperrors.CodeInvalidPreferences,
				fmt.Sprintf("unknown course slot %q", slot))
		}
		if seen[slot] {
			return apperrors.New(apperrors.CodeInvalidPreferences,
				fmt.Sprintf("duplicate course slot %q", slot))
		}
		seen[slot] = true
		if recipe.Course(slot).Rotating() {
			rotating = true
		}
	}
	if !rotating {
		return apperrors.New(apperrors.CodeInvalidPreferences,
			"slots must include a main or dinner course")
	}
	if w := record.CuisineVarietyWeight; w < 0 || w > 1 {
		return apperrors.New(apperrors.CodeInvalidPreferences, "cuisine variety weight must be within [0,1]")
	}
	if record.MaxPrepWeeknight < 0 || record.MaxPrepWeekend < 0 {
		return apperrors.New(apperrors.CodeInvalidPreferences, "prep time budgets cannot be negative")
	}
	if record.WeeksPerGeneration < 1 {
		return apperrors.New(apperrors.CodeInvalidPreferences, "weeks per generation must be at least 1")
	}
	return nil
}

// GetWeek reads one week of the calendar projection. The projection can lag
// the journal briefly after a write; callers wanting write-path consistency
// replay the aggregate instead.
func (o *Orchestrator) GetWeek(ctx context.Context, userID string, weekStart time.Time) ([]storage.AssignmentRecord, error) {
	ctx, span := o.tracer.Start(ctx, "service.GetWeek")
	defer span.End()

	if userID == "" {
		return nil, apperrors.New(apperrors.CodeEmptyUserID, "user id is required")
	}
	weekStart = weekStart.UTC()
	if !weekStart.Equal(plan.MondayOf(weekStart)) {
		return nil, apperrors.New(apperrors.CodeInvalidWeekStart,
			fmt.Sprintf("week start %s is not a Monday", plan.FormatDate(weekStart)))
	}

	rows, err := o.stores.Calendar.GetWeek(ctx, userID, weekStart)
	if err != nil {
		return nil, fmt.Errorf("get week: %w", err)
	}
	if len(rows) == 0 {
		return nil, apperrors.New(apperrors.CodeNotFound,
			fmt.Sprintf("no calendar entries for week %s", plan.FormatDate(weekStart)))
	}
	return rows, nil
}
