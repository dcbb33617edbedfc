package aggregate

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/mealcycle/mealcycle/internal/domain/event"
	"github.com/mealcycle/mealcycle/internal/domain/plan"
	"github.com/mealcycle/mealcycle/internal/domain/rotation"
)

func journalEvent(t *testing.T, seq uint64, typ event.Type, payload any) event.Event {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return event.Event{
		UserID:      "user-1",
		Seq:         seq,
		Timestamp:   time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
		Type:        typ,
		PayloadJSON: raw,
	}
}

func rotationRaw(t *testing.T, cycle uint64, total int, used ...string) json.RawMessage {
	t.Helper()
	state, err := rotation.New(total, time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("new rotation: %v", err)
	}
	state.CycleNumber = cycle
	for _, id := range used {
		state.UsedRecipeIDs[id] = struct{}{}
	}
	raw, err := state.Marshal()
	if err != nil {
		t.Fatalf("marshal rotation: %v", err)
	}
	return raw
}

func TestReplayEmptyJournal(t *testing.T) {
	state, err := Replay(nil)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if state.Status != plan.StatusNone {
		t.Fatalf("expected no plan, got %q", state.Status)
	}
}

func TestReplayFoldsInOrder(t *testing.T) {
	week := plan.WeekPayload{
		StartDate: "2026-03-02",
		EndDate:   "2026-03-08",
		Assignments: []plan.AssignmentPayload{
			{Date: "2026-03-02", Slot: "main", RecipeID: "r1"},
		},
	}
	events := []event.Event{
		journalEvent(t, 1, event.TypePlanGenerated, plan.GeneratedPayload{
			PlanID:        "plan-1",
			Weeks:         []plan.WeekPayload{week},
			RotationState: rotationRaw(t, 1, 3, "r1"),
		}),
		journalEvent(t, 2, event.TypeCycleReset, plan.CycleResetPayload{
			PlanID:              "plan-1",
			PreviousCycleNumber: 1,
			RotationState:       rotationRaw(t, 2, 3),
		}),
	}

	state, err := Replay(events)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if state.PlanID != "plan-1" || state.Status != plan.StatusActive {
		t.Fatalf("unexpected state: %+v", state)
	}
	if state.Rotation.CycleNumber != 2 {
		t.Fatalf("expected cycle 2 after reset, got %d", state.Rotation.CycleNumber)
	}
}

func TestReplayAbortsOnBadEvent(t *testing.T) {
	events := []event.Event{
		journalEvent(t, 1, event.TypePlanGenerated, plan.GeneratedPayload{
			PlanID:        "plan-1",
			RotationState: json.RawMessage(`{"cycle_number":0}`),
		}),
	}
	_, err := Replay(events)
	if err == nil {
		t.Fatal("expected replay to abort on malformed rotation state")
	}
}
