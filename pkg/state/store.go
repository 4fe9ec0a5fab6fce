// Package state implements the agent's durable local state: the single-slot
// active-task record and the session record. Both live in a device-local
// Redis instance so that the foreground CLI, the reconciler and the
// background location reporter all observe the same state, and so the state
// survives agent restarts.
//
// The store is the single source of truth for "which task is this courier
// executing right now"; no caller may cache it across operations.
package state

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/guido-cesarano/fieldtrack/pkg/logger"
	"github.com/guido-cesarano/fieldtrack/pkg/model"
	"github.com/redis/go-redis/v9"
)

// Redis keys for the active-task slot. The two keys are always written and
// deleted together in one pipeline so no reader observes a half-cleared slot.
const (
	keyActiveTask      = "fieldtrack:active_task"
	keyActiveTaskStart = "fieldtrack:active_task:start"
)

// Store is the single-slot record of the task currently being executed.
// At most one task may be active at a time; that invariant is the business
// rule "a courier executes exactly one task at a time".
//
// All mutating operations take a process-wide lock around their
// read-modify-write so a reconciliation clearing the slot cannot race a
// finalization writing it.
type Store struct {
	rdb *redis.Client

	mu  sync.Mutex
	now func() time.Time
}

// NewStore creates a store connected to the local Redis instance at addr
// (e.g. "127.0.0.1:6379").
func NewStore(addr string) *Store {
	return &Store{
		rdb: redis.NewClient(&redis.Options{Addr: addr}),
		now: time.Now,
	}
}

// StartTask records task as the active task.
//
// When explicitStartMillis > 0 it is stored verbatim; this is used when
// resuming a task whose real start time is known from the server. Otherwise
// an already-stored start time is preserved, so re-starting the same task
// never resets a running timer. Only when no start time exists is "now"
// recorded.
func (s *Store) StartTask(ctx context.Context, task model.Task, explicitStartMillis int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(task)
	if err != nil {
		return err
	}

	start := explicitStartMillis
	if start <= 0 {
		if existing := s.startTime(ctx); existing > 0 {
			start = existing
		} else {
			start = s.now().UnixMilli()
		}
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, keyActiveTask, data, 0)
	pipe.Set(ctx, keyActiveTaskStart, start, 0)
	_, err = pipe.Exec(ctx)
	return err
}

// UpdateTaskData replaces the stored task snapshot without touching the
// start time. Used when a list refresh returns fresher metadata (a new
// attachment, an edited comment) for the task that is already active; any
// running timer is unaffected.
func (s *Store) UpdateTaskData(ctx context.Context, task model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, keyActiveTask, data, 0).Err()
}

// ActiveTask returns the stored task snapshot, or nil when no task is
// active. A corrupt or unreadable slot degrades to "no active task" rather
// than failing the caller.
func (s *Store) ActiveTask(ctx context.Context) *model.Task {
	raw, err := s.rdb.Get(ctx, keyActiveTask).Bytes()
	if err != nil {
		if err != redis.Nil {
			log := logger.For("state")
			log.Error().Err(err).Msg("Active task slot unreadable, treating as empty")
		}
		return nil
	}

	var task model.Task
	if err := json.Unmarshal(raw, &task); err != nil {
		log := logger.For("state")
		log.Warn().Err(err).Msg("Active task slot corrupt, treating as empty")
		return nil
	}
	return &task
}

// StartTime returns the active task's start time in epoch milliseconds,
// or 0 when unset.
func (s *Store) StartTime(ctx context.Context) int64 {
	return s.startTime(ctx)
}

func (s *Store) startTime(ctx context.Context) int64 {
	v, err := s.rdb.Get(ctx, keyActiveTaskStart).Int64()
	if err != nil {
		return 0
	}
	return v
}

// Elapsed returns how long the active task has been running. It is 0 when
// no start time is recorded and never negative, even if the stored start
// time is in the future relative to the local clock.
func (s *Store) Elapsed(ctx context.Context) time.Duration {
	start := s.startTime(ctx)
	if start == 0 {
		return 0
	}
	elapsed := time.Duration(s.now().UnixMilli()-start) * time.Millisecond
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// Clear removes the task snapshot and the start time atomically; a
// concurrent reader sees either both present or both gone.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rdb.Del(ctx, keyActiveTask, keyActiveTaskStart).Err()
}

// HasActiveTask reports whether a task is currently active.
func (s *Store) HasActiveTask(ctx context.Context) bool {
	return s.ActiveTask(ctx) != nil
}
