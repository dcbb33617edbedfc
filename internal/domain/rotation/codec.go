package rotation

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/mealcycle/mealcycle/internal/errors"
)

// serialized is the wire form of State carried inside plan events. The shape
// must stay stable: it is the durability boundary for event replay.
type serialized struct {
	CycleNumber        uint64   `json:"cycle_number"`
	CycleStartedAt     string   `json:"cycle_started_at"`
	UsedRecipeIDs      []string `json:"used_recipe_ids"`
	TotalFavoriteCount int      `json:"total_favorite_count"`
}

// Marshal encodes the state for embedding in event payloads. Used ids are
// sorted so the encoding is deterministic.
func (s State) Marshal() ([]byte, error) {
	used := make([]string, 0, len(s.UsedRecipeIDs))
	for id := range s.UsedRecipeIDs {
		used = append(used, id)
	}
	sort.Strings(used)

	raw, err := json.Marshal(serialized{
		CycleNumber:        s.CycleNumber,
		CycleStartedAt:     s.CycleStartedAt.UTC().Format(time.RFC3339Nano),
		UsedRecipeIDs:      used,
		TotalFavoriteCount: s.TotalFavoriteCount,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal rotation state: %w", err)
	}
	return raw, nil
}

// Parse decodes a serialized rotation state. Every failure surfaces as an
// INVALID_ROTATION_STATE error: silently defaulting to an empty state on a
// parse error would corrupt the user's rotation history on replay.
func Parse(raw []byte) (State, error) {
	if len(raw) == 0 {
		return State{}, errors.New(errors.CodeInvalidRotationState, "rotation state payload is empty")
	}

	var decoded serialized
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return State{}, errors.Wrap(errors.CodeInvalidRotationState, "unmarshal rotation state", err)
	}
	if decoded.CycleNumber == 0 {
		return State{}, errors.New(errors.CodeInvalidRotationState, "rotation cycle number must be at least 1")
	}
	if decoded.TotalFavoriteCount <= 0 {
		return State{}, errors.New(errors.CodeInvalidRotationState, "rotation state requires at least one favorite")
	}
	if len(decoded.UsedRecipeIDs) > decoded.TotalFavoriteCount {
		return State{}, errors.New(errors.CodeInvalidRotationState, "rotation used set exceeds favorite count")
	}

	startedAt, err := time.Parse(time.RFC3339Nano, decoded.CycleStartedAt)
	if err != nil {
		return State{}, errors.Wrap(errors.CodeInvalidRotationState, "parse rotation cycle start timestamp", err)
	}

	used := make(map[string]struct{}, len(decoded.UsedRecipeIDs))
	for _, id := range decoded.UsedRecipeIDs {
		if id == "" {
			return State{}, errors.New(errors.CodeInvalidRotationState, "rotation used set contains an empty recipe id")
		}
		used[id] = struct{}{}
	}

	return State{
		CycleNumber:        decoded.CycleNumber,
		CycleStartedAt:     startedAt.UTC(),
		UsedRecipeIDs:      used,
		TotalFavoriteCount: decoded.TotalFavoriteCount,
	}, nil
}
