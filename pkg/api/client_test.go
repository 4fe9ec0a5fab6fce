package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/guido-cesarano/fieldtrack/pkg/model"
)

func timeMustParse(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return ts
}

func staticToken(token string) TokenSource {
	return func(ctx context.Context) string { return token }
}

func TestLoginSendsCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/auth/login" {
			t.Errorf("Unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var creds model.Credentials
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			t.Fatalf("Decode credentials: %v", err)
		}
		if creds.Username != "mrojas" || creds.Password != "secret" {
			t.Errorf("Unexpected credentials: %+v", creds)
		}
		json.NewEncoder(w).Encode(model.Session{Token: "tok-1", UserID: 8, TokenLifetimeMillis: 3600000})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	sess, err := client.Login(context.Background(), model.Credentials{Username: "mrojas", Password: "secret"})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if sess.Token != "tok-1" || sess.UserID != 8 {
		t.Errorf("Unexpected session: %+v", sess)
	}
}

func TestBearerTokenInjection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-9" {
			t.Errorf("Expected bearer header, got %q", got)
		}
		json.NewEncoder(w).Encode([]model.Task{})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, staticToken("tok-9"))
	if _, err := client.MyTasks(context.Background()); err != nil {
		t.Fatalf("MyTasks failed: %v", err)
	}
}

func TestUnauthorizedMapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, staticToken("expired"))
	_, err := client.MyTasks(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized, got %v", err)
	}
}

func TestFinalizeWithCodeWrongCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/api/tasks/5/finalize" {
			t.Errorf("Unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req struct {
			StateID     int    `json:"state_id"`
			Code        string `json:"code"`
			Observation string `json:"observation"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("Decode finalize request: %v", err)
		}
		if req.Code != "0000" {
			t.Errorf("Unexpected code %q", req.Code)
		}
		http.Error(w, "wrong code", http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, staticToken("tok"))
	_, err := client.FinalizeWithCode(context.Background(), 5, "0000", "left at reception")
	if !errors.Is(err, ErrInvalidCode) {
		t.Errorf("Expected ErrInvalidCode, got %v", err)
	}
}

func TestFinalizeWithoutCodeBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("Decode finalize request: %v", err)
		}
		if _, has := req["code"]; has {
			t.Error("Expected code field omitted for codeless finalize")
		}
		if req["state_id"].(float64) != float64(model.StateCompleted) {
			t.Errorf("Expected state_id %d, got %v", model.StateCompleted, req["state_id"])
		}
		json.NewEncoder(w).Encode(model.Task{ID: 5, State: model.TaskState{ID: model.StateCompleted, Name: "COMPLETED"}})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, staticToken("tok"))
	task, err := client.FinalizeWithoutCode(context.Background(), 5, "picked up")
	if err != nil {
		t.Fatalf("FinalizeWithoutCode failed: %v", err)
	}
	if !task.State.Finalized() {
		t.Errorf("Expected finalized task, got %+v", task.State)
	}
}

func TestReportPositionOmitsAbsentTask(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("Decode position request: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, staticToken("tok"))
	if err := client.ReportPosition(context.Background(), 8, nil, -0.18, -78.47); err != nil {
		t.Fatalf("ReportPosition failed: %v", err)
	}

	if _, has := body["task_id"]; has {
		t.Error("Expected task_id omitted when no task is active")
	}
	if body["user_id"].(float64) != 8 {
		t.Errorf("Expected user_id 8, got %v", body["user_id"])
	}
}

func TestReportPositionIncludesActiveTask(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("Decode position request: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, staticToken("tok"))
	taskID := 42
	if err := client.ReportPosition(context.Background(), 8, &taskID, -0.18, -78.47); err != nil {
		t.Fatalf("ReportPosition failed: %v", err)
	}
	if body["task_id"].(float64) != 42 {
		t.Errorf("Expected task_id 42, got %v", body["task_id"])
	}
}

func TestCompletedTasksRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("from") == "" || q.Get("to") == "" {
			t.Error("Expected from/to query parameters")
		}
		json.NewEncoder(w).Encode([]model.Task{{ID: 1}, {ID: 2}})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, staticToken("tok"))
	tasks, err := client.CompletedTasks(context.Background(), timeMustParse(t, "2024-01-01T00:00:00Z"), timeMustParse(t, "2024-01-08T00:00:00Z"))
	if err != nil {
		t.Fatalf("CompletedTasks failed: %v", err)
	}
	if len(tasks) != 2 {
		t.Errorf("Expected 2 tasks, got %d", len(tasks))
	}
}
