package state

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/guido-cesarano/fieldtrack/pkg/model"
)

func setupTestStore(t *testing.T) (*miniredis.Miniredis, *Store) {
	t.Helper()
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(s.Close)
	return s, NewStore(s.Addr())
}

func sampleTask(id int) model.Task {
	return model.Task{
		ID:        id,
		Name:      "Deliver parcels downtown",
		Operation: model.Operation{ID: 1, Name: "Delivery"},
		State:     model.TaskState{ID: model.StateInProgress, Name: "IN_PROGRESS"},
		Client: model.ClientContact{
			Name:      "Corner Pharmacy",
			Latitude:  -0.1807,
			Longitude: -78.4678,
		},
		DueAt: "2024-01-01T10:00:00Z",
	}
}

func TestStartTaskRecordsNow(t *testing.T) {
	_, store := setupTestStore(t)
	ctx := context.Background()

	t0 := time.UnixMilli(1700000000000)
	store.now = func() time.Time { return t0 }

	if err := store.StartTask(ctx, sampleTask(1), 0); err != nil {
		t.Fatalf("StartTask failed: %v", err)
	}
	if got := store.StartTime(ctx); got != t0.UnixMilli() {
		t.Errorf("Expected start time %d, got %d", t0.UnixMilli(), got)
	}
}

func TestStartTaskIdempotentResume(t *testing.T) {
	_, store := setupTestStore(t)
	ctx := context.Background()

	t0 := time.UnixMilli(1700000000000)
	store.now = func() time.Time { return t0 }
	if err := store.StartTask(ctx, sampleTask(1), 0); err != nil {
		t.Fatalf("StartTask failed: %v", err)
	}

	// A later re-start without an intervening Clear must not reset the timer.
	store.now = func() time.Time { return t0.Add(5 * time.Minute) }
	if err := store.StartTask(ctx, sampleTask(1), 0); err != nil {
		t.Fatalf("Second StartTask failed: %v", err)
	}

	if got := store.StartTime(ctx); got != t0.UnixMilli() {
		t.Errorf("Expected first start time %d to win, got %d", t0.UnixMilli(), got)
	}
}

func TestStartTaskExplicitOverride(t *testing.T) {
	_, store := setupTestStore(t)
	ctx := context.Background()

	if err := store.StartTask(ctx, sampleTask(1), 0); err != nil {
		t.Fatalf("StartTask failed: %v", err)
	}

	explicit := int64(1690000000000)
	if err := store.StartTask(ctx, sampleTask(1), explicit); err != nil {
		t.Fatalf("StartTask with explicit time failed: %v", err)
	}
	if got := store.StartTime(ctx); got != explicit {
		t.Errorf("Expected explicit start time %d, got %d", explicit, got)
	}
}

func TestUpdateTaskDataPreservesTimer(t *testing.T) {
	_, store := setupTestStore(t)
	ctx := context.Background()

	if err := store.StartTask(ctx, sampleTask(1), 0); err != nil {
		t.Fatalf("StartTask failed: %v", err)
	}
	t0 := store.StartTime(ctx)

	refreshed := sampleTask(1)
	refreshed.Attachments = []model.Attachment{{ID: 9, OriginalName: "waybill.pdf"}}
	if err := store.UpdateTaskData(ctx, refreshed); err != nil {
		t.Fatalf("UpdateTaskData failed: %v", err)
	}

	if got := store.StartTime(ctx); got != t0 {
		t.Errorf("Expected start time %d unchanged, got %d", t0, got)
	}
	task := store.ActiveTask(ctx)
	if task == nil || len(task.Attachments) != 1 {
		t.Errorf("Expected refreshed snapshot with attachment, got %+v", task)
	}
}

func TestClearRemovesBoth(t *testing.T) {
	_, store := setupTestStore(t)
	ctx := context.Background()

	if err := store.StartTask(ctx, sampleTask(1), 0); err != nil {
		t.Fatalf("StartTask failed: %v", err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	if store.ActiveTask(ctx) != nil {
		t.Error("Expected no active task after Clear")
	}
	if got := store.StartTime(ctx); got != 0 {
		t.Errorf("Expected start time 0 after Clear, got %d", got)
	}
	if store.HasActiveTask(ctx) {
		t.Error("Expected HasActiveTask false after Clear")
	}
}

func TestElapsedMonotonic(t *testing.T) {
	_, store := setupTestStore(t)
	ctx := context.Background()

	t0 := time.UnixMilli(1700000000000)
	store.now = func() time.Time { return t0 }
	if err := store.StartTask(ctx, sampleTask(1), 0); err != nil {
		t.Fatalf("StartTask failed: %v", err)
	}

	store.now = func() time.Time { return t0.Add(10 * time.Second) }
	e1 := store.Elapsed(ctx)
	store.now = func() time.Time { return t0.Add(30 * time.Second) }
	e2 := store.Elapsed(ctx)

	if e1 > e2 {
		t.Errorf("Elapsed not monotonic: %v then %v", e1, e2)
	}
	if e1 != 10*time.Second || e2 != 30*time.Second {
		t.Errorf("Expected 10s then 30s, got %v then %v", e1, e2)
	}
}

func TestElapsedZeroWhenUnset(t *testing.T) {
	_, store := setupTestStore(t)
	if got := store.Elapsed(context.Background()); got != 0 {
		t.Errorf("Expected 0 elapsed with no start time, got %v", got)
	}
}

func TestElapsedNeverNegative(t *testing.T) {
	_, store := setupTestStore(t)
	ctx := context.Background()

	// Start time in the future relative to the local clock (clock skew).
	future := time.Now().Add(time.Hour).UnixMilli()
	if err := store.StartTask(ctx, sampleTask(1), future); err != nil {
		t.Fatalf("StartTask failed: %v", err)
	}
	if got := store.Elapsed(ctx); got != 0 {
		t.Errorf("Expected clamped 0 elapsed, got %v", got)
	}
}

func TestCorruptSlotTreatedAsEmpty(t *testing.T) {
	s, store := setupTestStore(t)
	ctx := context.Background()

	s.Set(keyActiveTask, "{definitely not json")

	if store.ActiveTask(ctx) != nil {
		t.Error("Expected corrupt slot to read as no active task")
	}
	if store.HasActiveTask(ctx) {
		t.Error("Expected HasActiveTask false for corrupt slot")
	}
}
