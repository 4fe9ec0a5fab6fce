package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/guido-cesarano/fieldtrack/pkg/model"
)

// TokenSource yields the current auth token, or "" when logged out. It is
// consulted per request so token rotation and logout apply immediately.
type TokenSource func(ctx context.Context) string

// Client is the HTTP implementation of TaskService.
type Client struct {
	baseURL string
	httpc   *http.Client
	token   TokenSource
}

var _ TaskService = (*Client)(nil)

// NewClient creates a backend client. baseURL must not end with a slash
// (e.g. "https://fieldtrack.example.com"). token may be nil for
// unauthenticated use, though only Login works without one.
func NewClient(baseURL string, token TokenSource) *Client {
	return &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: 30 * time.Second},
		token:   token,
	}
}

// do performs one JSON round-trip. body and out may be nil. Non-2xx
// statuses are mapped to the package's sentinel errors where they have a
// defined meaning and to a generic wrapped error otherwise.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		if t := c.token(ctx); t != "" {
			req.Header.Set("Authorization", "Bearer "+t)
		}
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("backend %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("backend %s %s: decode response: %w", method, path, err)
		}
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("backend %s %s: %w", method, path, ErrUnauthorized)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("backend %s %s: %w", method, path, ErrNotFound)
	default:
		return &statusError{method: method, path: path, code: resp.StatusCode}
	}
}

// statusError carries an HTTP status that has no sentinel mapping.
type statusError struct {
	method string
	path   string
	code   int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("backend %s %s: status %d", e.method, e.path, e.code)
}

func isStatus(err error, code int) bool {
	var se *statusError
	return errors.As(err, &se) && se.code == code
}

// Login authenticates and returns the session payload. The caller is
// responsible for persisting it.
func (c *Client) Login(ctx context.Context, creds model.Credentials) (model.Session, error) {
	var sess model.Session
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", creds, &sess); err != nil {
		return model.Session{}, err
	}
	return sess, nil
}

// MyTasks fetches the courier's assigned task list.
func (c *Client) MyTasks(ctx context.Context) ([]model.Task, error) {
	var tasks []model.Task
	if err := c.do(ctx, http.MethodGet, "/api/tasks/mine", nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// StartTask asks the server to transition the task to IN_PROGRESS.
func (c *Client) StartTask(ctx context.Context, taskID int) (model.Task, error) {
	var task model.Task
	path := fmt.Sprintf("/api/tasks/%d/start", taskID)
	if err := c.do(ctx, http.MethodPost, path, nil, &task); err != nil {
		return model.Task{}, err
	}
	return task, nil
}

type finalizeRequest struct {
	StateID     int    `json:"state_id"`
	Code        string `json:"code,omitempty"`
	Observation string `json:"observation"`
}

// FinalizeWithoutCode completes a task that needs no verification code.
func (c *Client) FinalizeWithoutCode(ctx context.Context, taskID int, observation string) (model.Task, error) {
	var task model.Task
	path := fmt.Sprintf("/api/tasks/%d/finalize", taskID)
	req := finalizeRequest{StateID: model.StateCompleted, Observation: observation}
	if err := c.do(ctx, http.MethodPut, path, req, &task); err != nil {
		return model.Task{}, err
	}
	return task, nil
}

// FinalizeWithCode completes a delivery task. The backend answers 400 when
// the verification code does not match; that becomes ErrInvalidCode.
func (c *Client) FinalizeWithCode(ctx context.Context, taskID int, code, observation string) (model.Task, error) {
	var task model.Task
	path := fmt.Sprintf("/api/tasks/%d/finalize", taskID)
	req := finalizeRequest{StateID: model.StateCompleted, Code: code, Observation: observation}
	err := c.doFinalize(ctx, path, req, &task)
	if err != nil {
		return model.Task{}, err
	}
	return task, nil
}

// doFinalize is do with the finalize-specific 400 mapping.
func (c *Client) doFinalize(ctx context.Context, path string, body, out interface{}) error {
	err := c.do(ctx, http.MethodPut, path, body, out)
	if err != nil && isStatus(err, http.StatusBadRequest) {
		return ErrInvalidCode
	}
	return err
}

// CompletedTasks fetches tasks finalized within [from, to].
func (c *Client) CompletedTasks(ctx context.Context, from, to time.Time) ([]model.Task, error) {
	var tasks []model.Task
	q := url.Values{}
	q.Set("from", from.Format(time.RFC3339))
	q.Set("to", to.Format(time.RFC3339))
	if err := c.do(ctx, http.MethodGet, "/api/tasks/completed?"+q.Encode(), nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

type positionRequest struct {
	UserID    int     `json:"user_id"`
	TaskID    *int    `json:"task_id,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ReportPosition submits one position sample. A nil taskID is omitted from
// the payload entirely.
func (c *Client) ReportPosition(ctx context.Context, userID int, taskID *int, lat, lon float64) error {
	req := positionRequest{UserID: userID, TaskID: taskID, Latitude: lat, Longitude: lon}
	return c.do(ctx, http.MethodPost, "/api/tracking/position", req, nil)
}

// ActiveMessengers fetches last known courier positions.
func (c *Client) ActiveMessengers(ctx context.Context) ([]model.Messenger, error) {
	var messengers []model.Messenger
	if err := c.do(ctx, http.MethodGet, "/api/tracking/messengers", nil, &messengers); err != nil {
		return nil, err
	}
	return messengers, nil
}

type notificationTokenRequest struct {
	Token string `json:"token"`
}

// UpdateNotificationToken registers the device push token for userID.
func (c *Client) UpdateNotificationToken(ctx context.Context, userID int, token string) error {
	path := fmt.Sprintf("/api/users/%d/notification-token", userID)
	return c.do(ctx, http.MethodPut, path, notificationTokenRequest{Token: token}, nil)
}
