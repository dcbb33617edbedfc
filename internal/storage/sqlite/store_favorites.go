package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mealcycle/mealcycle/internal/domain/recipe"
	"github.com/mealcycle/mealcycle/internal/storage"
)

// FavoritesStore methods (favorites snapshot backing the recipe provider)

// PutFavorite upserts one favorited-recipe snapshot row.
func (s *Store) PutFavorite(ctx context.Context, record storage.FavoriteRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(record.UserID) == "" {
		return fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(record.Recipe.ID) == "" {
		return fmt.Errorf("recipe id is required")
	}
	if !record.Recipe.Course.IsValid() {
		return fmt.Errorf("invalid recipe course %q", record.Recipe.Course)
	}

	tags := record.Recipe.DietaryTags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("marshal dietary tags: %w", err)
	}
	compatible := record.Recipe.CompatibleAccompanimentIDs
	if compatible == nil {
		compatible = []string{}
	}
	compatibleJSON, err := json.Marshal(compatible)
	if err != nil {
		return fmt.Errorf("marshal compatible accompaniments: %w", err)
	}

	if _, err := s.db().ExecContext(
		ctx,
		`INSERT INTO favorites (
		     user_id, recipe_id, name, course, complexity, cuisine,
		     dietary_tags_json, accepts_accompaniment, compatible_json,
		     advance_prep_min, prep_time_min
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, recipe_id) DO UPDATE SET
		     name = excluded.name,
		     course = excluded.course,
		     complexity = excluded.complexity,
		     cuisine = excluded.cuisine,
		     dietary_tags_json = excluded.dietary_tags_json,
		     accepts_accompaniment = excluded.accepts_accompaniment,
		     compatible_json = excluded.compatible_json,
		     advance_prep_min = excluded.advance_prep_min,
		     prep_time_min = excluded.prep_time_min`,
		record.UserID,
		record.Recipe.ID,
		record.Recipe.Name,
		string(record.Recipe.Course),
		string(record.Recipe.Complexity),
		record.Recipe.Cuisine,
		string(tagsJSON),
		boolToInt(record.Recipe.AcceptsAccompaniment),
		string(compatibleJSON),
		int64(record.Recipe.AdvancePrep/time.Minute),
		int64(record.Recipe.PrepTime/time.Minute),
	); err != nil {
		return fmt.Errorf("put favorite %s: %w", record.Recipe.ID, err)
	}
	return nil
}

// DeleteFavorite removes one favorite. Deleting an absent row succeeds.
func (s *Store) DeleteFavorite(ctx context.Context, userID, recipeID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	if _, err := s.db().ExecContext(
		ctx,
		`DELETE FROM favorites WHERE user_id = ? AND recipe_id = ?`,
		userID,
		recipeID,
	); err != nil {
		return fmt.Errorf("delete favorite %s: %w", recipeID, err)
	}
	return nil
}

// SnapshotFavorites returns a user's favorites partitioned by course. The
// snapshot is taken in one query so a generation run sees a consistent pool.
func (s *Store) SnapshotFavorites(ctx context.Context, userID string) (recipe.Pool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.db().QueryContext(
		ctx,
		`SELECT recipe_id, name, course, complexity, cuisine,
		        dietary_tags_json, accepts_accompaniment, compatible_json,
		        advance_prep_min, prep_time_min
		 FROM favorites
		 WHERE user_id = ?
		 ORDER BY recipe_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	defer rows.Close()

	pool := recipe.Pool{}
	for rows.Next() {
		var (
			item           recipe.ForPlanning
			course         string
			complexity     string
			tagsJSON       string
			accepts        int
			compatibleJSON string
			advancePrepMin int64
			prepTimeMin    int64
		)
		if err := rows.Scan(
			&item.ID,
			&item.Name,
			&course,
			&complexity,
			&item.Cuisine,
			&tagsJSON,
			&accepts,
			&compatibleJSON,
			&advancePrepMin,
			&prepTimeMin,
		); err != nil {
			return nil, fmt.Errorf("scan favorite: %w", err)
		}
		if err := json.Unmarshal([]byte(tagsJSON), &item.DietaryTags); err != nil {
			return nil, fmt.Errorf("unmarshal dietary tags for %s: %w", item.ID, err)
		}
		if err := json.Unmarshal([]byte(compatibleJSON), &item.CompatibleAccompanimentIDs); err != nil {
			return nil, fmt.Errorf("unmarshal compatible accompaniments for %s: %w", item.ID, err)
		}
		item.Course = recipe.Course(course)
		item.Complexity = recipe.Complexity(complexity)
		item.AcceptsAccompaniment = accepts != 0
		item.AdvancePrep = time.Duration(advancePrepMin) * time.Minute
		item.PrepTime = time.Duration(prepTimeMin) * time.Minute
		pool[item.Course] = append(pool[item.Course], item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate favorites: %w", err)
	}
	return pool, nil
}
