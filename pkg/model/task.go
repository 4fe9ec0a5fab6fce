// Package model defines the wire-level entities exchanged with the FieldTrack
// backend. Tasks are owned by the server; the client only ever holds read-only
// snapshots refreshed on each list fetch.
package model

import (
	"strings"
	"time"
)

// Task state identifiers as assigned by the backend.
const (
	StateCreated    = 1
	StateInProgress = 2
	StateCompleted  = 3
	StateCancelled  = 4
)

// TaskState carries both the numeric state id and its display name.
// The name is not canonical ("In Progress", "IN_PROGRESS" and "in progress"
// all occur in the wild) so comparisons must go through Normalized.
type TaskState struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Normalized returns the state name uppercased with spaces collapsed to
// underscores, suitable for comparison and display filtering.
func (s TaskState) Normalized() string {
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s.Name)), " ", "_")
}

// InProgress reports whether the state means the task is being executed.
// The id is authoritative; the name is accepted as a fallback for older
// backend builds that omit it.
func (s TaskState) InProgress() bool {
	if s.ID != 0 {
		return s.ID == StateInProgress
	}
	return s.Normalized() == "IN_PROGRESS"
}

// Finalized reports whether the task has reached a terminal state.
func (s TaskState) Finalized() bool {
	return s.ID == StateCompleted || s.ID == StateCancelled
}

// Operation is the kind of field work a task represents. Deliveries require
// a customer verification code to finalize; pickups do not.
type Operation struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Category groups tasks for dispatcher filtering.
type Category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// ClientContact is the customer a task is executed for.
type ClientContact struct {
	ID        int     `json:"id"`
	Name      string  `json:"name"`
	Phone     string  `json:"phone"`
	Address   string  `json:"address"`
	City      string  `json:"city"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Attachment is metadata for a file attached to a task (photos, waybills).
// Contents are fetched separately and are not part of this client.
type Attachment struct {
	ID           int    `json:"id"`
	OriginalName string `json:"original_name"`
	ContentType  string `json:"content_type"`
	Size         int64  `json:"size"`
}

// Task is a unit of delivery or pickup work assigned to a courier.
//
// All timestamp fields are server-formatted strings; use ParseServerTime to
// interpret them. StartedAt is only set once the server has transitioned the
// task to IN_PROGRESS.
type Task struct {
	ID          int           `json:"id"`
	Name        string        `json:"name"`
	Operation   Operation     `json:"operation"`
	Category    Category      `json:"category"`
	Client      ClientContact `json:"client"`
	State       TaskState     `json:"state"`
	DueAt       string        `json:"due_at"`
	CreatedAt   string        `json:"created_at,omitempty"`
	StartedAt   string        `json:"started_at,omitempty"`
	FinishedAt  string        `json:"finished_at,omitempty"`
	Comment     string        `json:"comment,omitempty"`
	Observation string        `json:"observation,omitempty"`
	Attachments []Attachment  `json:"attachments,omitempty"`
}

// RequiresCode reports whether finalizing this task needs a customer
// verification code (delivery operations).
func (t Task) RequiresCode() bool {
	return strings.EqualFold(strings.TrimSpace(t.Operation.Name), "delivery")
}

// StartMillis returns the server-side start timestamp as epoch milliseconds,
// or 0 when StartedAt is absent or unparseable.
func (t Task) StartMillis() int64 {
	ts, err := ParseServerTime(t.StartedAt)
	if err != nil {
		return 0
	}
	return ts.UnixMilli()
}

// serverTimeLayouts are the timestamp formats the backend has been observed
// to emit, newest first.
var serverTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseServerTime parses a backend timestamp string. Naive timestamps
// (no zone) are interpreted as local time, matching the backend's behavior.
func ParseServerTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrNoTimestamp
	}
	var lastErr error
	for _, layout := range serverTimeLayouts {
		var (
			ts  time.Time
			err error
		)
		if layout == time.RFC3339 {
			ts, err = time.Parse(layout, s)
		} else {
			ts, err = time.ParseInLocation(layout, s, time.Local)
		}
		if err == nil {
			return ts, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
