package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/guido-cesarano/fieldtrack/pkg/model"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func completedTask(id int, finishedAt string) model.Task {
	return model.Task{
		ID:         id,
		Name:       "Deliver parcels",
		State:      model.TaskState{ID: model.StateCompleted, Name: "COMPLETED"},
		FinishedAt: finishedAt,
	}
}

func TestRecordAndList(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.Record(ctx, completedTask(1, "2024-01-02T10:00:00Z")); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := store.Record(ctx, completedTask(2, "2024-01-05T10:00:00Z")); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC)
	tasks, err := store.List(ctx, from, to)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("Expected 2 tasks, got %d", len(tasks))
	}
	// Newest first.
	if tasks[0].ID != 2 || tasks[1].ID != 1 {
		t.Errorf("Expected order [2,1], got [%d,%d]", tasks[0].ID, tasks[1].ID)
	}
}

func TestListRangeExcludes(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.Record(ctx, completedTask(1, "2024-01-02T10:00:00Z")); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	from := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 2, 7, 0, 0, 0, 0, time.UTC)
	tasks, err := store.List(ctx, from, to)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("Expected no tasks outside range, got %d", len(tasks))
	}
}

func TestRecordUpserts(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	task := completedTask(1, "2024-01-02T10:00:00Z")
	if err := store.Record(ctx, task); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	task.Observation = "left at reception"
	if err := store.Record(ctx, task); err != nil {
		t.Fatalf("Second Record failed: %v", err)
	}

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC)
	tasks, err := store.List(ctx, from, to)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("Expected upsert to keep one row, got %d", len(tasks))
	}
	if tasks[0].Observation != "left at reception" {
		t.Errorf("Expected updated payload, got %+v", tasks[0])
	}
}
