// Package history caches finalized tasks in a local sqlite database so the
// completed-tasks view works offline. It is fed on every successful
// finalization and refreshed opportunistically from CompletedTasks fetches;
// the server remains the source of truth.
package history

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/guido-cesarano/fieldtrack/pkg/model"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaFS embed.FS

// Store is the local completed-task cache.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the cache database at path and applies
// the schema.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("history db path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("read schema: %w", err)
	}
	if _, err := db.ExecContext(context.Background(), string(schemaSQL)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record upserts one finalized task. The full snapshot is kept as JSON so
// the cache survives entity growth without migrations.
func (s *Store) Record(ctx context.Context, task model.Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}

	var finishedUnix int64
	if ts, err := model.ParseServerTime(task.FinishedAt); err == nil {
		finishedUnix = ts.Unix()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO completed_tasks (id, name, state, finished_unix, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			state = excluded.state,
			finished_unix = excluded.finished_unix,
			payload = excluded.payload`,
		task.ID, task.Name, task.State.Normalized(), finishedUnix, string(payload))
	return err
}

// RecordAll upserts a batch, typically a CompletedTasks fetch result.
func (s *Store) RecordAll(ctx context.Context, tasks []model.Task) error {
	for _, t := range tasks {
		if err := s.Record(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// List returns cached tasks finalized within [from, to], newest first.
// Tasks whose finish timestamp could not be parsed (finished_unix = 0) are
// excluded from ranged queries.
func (s *Store) List(ctx context.Context, from, to time.Time) ([]model.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM completed_tasks
		WHERE finished_unix >= ? AND finished_unix <= ?
		ORDER BY finished_unix DESC`,
		from.Unix(), to.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var task model.Task
		if err := json.Unmarshal([]byte(payload), &task); err != nil {
			// A corrupt row is skipped, not fatal to the whole listing.
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}
