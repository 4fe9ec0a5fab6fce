// Package api talks to the FieldTrack backend REST API. The TaskService
// interface is what the rest of the agent programs against; Client is the
// HTTP implementation. All failures are converted to error values at this
// boundary so nothing transport-level leaks past it.
package api

import (
	"context"
	"errors"
	"time"

	"github.com/guido-cesarano/fieldtrack/pkg/model"
)

// Sentinel errors callers branch on.
var (
	// ErrUnauthorized means the token was missing, invalid or expired.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCode means a finalize-with-code was rejected because the
	// verification code did not match. Distinguishable from generic failure
	// so the finalize flow can show a field-level error instead of a toast.
	ErrInvalidCode = errors.New("incorrect verification code")
	// ErrNotFound means the referenced task no longer exists server-side.
	ErrNotFound = errors.New("not found")
)

// TaskService is the backend contract the agent depends on.
type TaskService interface {
	// Login exchanges credentials for a session token and identity.
	Login(ctx context.Context, creds model.Credentials) (model.Session, error)

	// MyTasks returns the full task list assigned to the logged-in courier.
	MyTasks(ctx context.Context) ([]model.Task, error)

	// StartTask transitions the task to IN_PROGRESS server-side and returns
	// the updated snapshot. Fails if the task is already in progress or gone.
	StartTask(ctx context.Context, taskID int) (model.Task, error)

	// FinalizeWithoutCode completes a pickup task with a free-text
	// observation.
	FinalizeWithoutCode(ctx context.Context, taskID int, observation string) (model.Task, error)

	// FinalizeWithCode completes a delivery task; a wrong verification code
	// yields ErrInvalidCode.
	FinalizeWithCode(ctx context.Context, taskID int, code, observation string) (model.Task, error)

	// CompletedTasks returns tasks finalized within [from, to].
	CompletedTasks(ctx context.Context, from, to time.Time) ([]model.Task, error)

	// ReportPosition submits one position sample. taskID is nil when no
	// task is active; absence is transmitted as absence, never a sentinel.
	ReportPosition(ctx context.Context, userID int, taskID *int, lat, lon float64) error

	// ActiveMessengers returns last known courier positions for the
	// dispatcher's map.
	ActiveMessengers(ctx context.Context) ([]model.Messenger, error)

	// UpdateNotificationToken registers this device's push token for the
	// given user.
	UpdateNotificationToken(ctx context.Context, userID int, token string) error
}
