package model

import (
	"testing"
	"time"
)

func TestStateNormalization(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"IN_PROGRESS", "IN_PROGRESS"},
		{"In Progress", "IN_PROGRESS"},
		{"in progress", "IN_PROGRESS"},
		{"  Completed ", "COMPLETED"},
		{"", ""},
	}
	for _, c := range cases {
		if got := (TaskState{Name: c.name}).Normalized(); got != c.want {
			t.Errorf("Normalized(%q) = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestStateInProgress(t *testing.T) {
	if !(TaskState{ID: StateInProgress, Name: "whatever"}).InProgress() {
		t.Error("Expected id 2 to mean in progress regardless of name")
	}
	if (TaskState{ID: StateCreated, Name: "IN PROGRESS"}).InProgress() {
		t.Error("Expected the id to win over a conflicting name")
	}
	// Name fallback for payloads that omit the id.
	if !(TaskState{Name: "In Progress"}).InProgress() {
		t.Error("Expected name fallback to work")
	}
}

func TestStateFinalized(t *testing.T) {
	if !(TaskState{ID: StateCompleted}).Finalized() || !(TaskState{ID: StateCancelled}).Finalized() {
		t.Error("Expected COMPLETED and CANCELLED to be terminal")
	}
	if (TaskState{ID: StateInProgress}).Finalized() {
		t.Error("Expected IN_PROGRESS to be non-terminal")
	}
}

func TestRequiresCode(t *testing.T) {
	if !(Task{Operation: Operation{Name: "Delivery"}}).RequiresCode() {
		t.Error("Expected deliveries to require a code")
	}
	if (Task{Operation: Operation{Name: "Pickup"}}).RequiresCode() {
		t.Error("Expected pickups not to require a code")
	}
}

func TestParseServerTimeLayouts(t *testing.T) {
	for _, s := range []string{
		"2024-01-01T10:00:00Z",
		"2024-01-01T10:00:00",
		"2024-01-01 10:00:00",
	} {
		ts, err := ParseServerTime(s)
		if err != nil {
			t.Errorf("ParseServerTime(%q) failed: %v", s, err)
			continue
		}
		if ts.Year() != 2024 || ts.Hour() != 10 {
			t.Errorf("ParseServerTime(%q) = %v", s, ts)
		}
	}

	if _, err := ParseServerTime(""); err == nil {
		t.Error("Expected error for empty timestamp")
	}
	if _, err := ParseServerTime("not a date"); err == nil {
		t.Error("Expected error for garbage timestamp")
	}
}

func TestStartMillis(t *testing.T) {
	task := Task{StartedAt: "2024-01-01T09:30:00Z"}
	want := time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC).UnixMilli()
	if got := task.StartMillis(); got != want {
		t.Errorf("StartMillis = %d, want %d", got, want)
	}

	if got := (Task{}).StartMillis(); got != 0 {
		t.Errorf("Expected 0 for missing StartedAt, got %d", got)
	}
	if got := (Task{StartedAt: "garbage"}).StartMillis(); got != 0 {
		t.Errorf("Expected 0 for unparseable StartedAt, got %d", got)
	}
}

func TestMarkerVariants(t *testing.T) {
	task := Task{ID: 1, Name: "Deliver parcels", Client: ClientContact{Latitude: 1, Longitude: 2}}
	m := TaskMarker(task)
	if m.Kind != MarkerTask || m.Latitude != 1 || m.Longitude != 2 {
		t.Errorf("Unexpected task marker: %+v", m)
	}
	if m.Label() != "Deliver parcels" {
		t.Errorf("Unexpected label %q", m.Label())
	}

	courier := Messenger{UserID: 8, FullName: "Maria Rojas", Latitude: 3, Longitude: 4}
	c := CourierMarker(courier)
	if c.Kind != MarkerCourier || c.Latitude != 3 || c.Longitude != 4 {
		t.Errorf("Unexpected courier marker: %+v", c)
	}
	if c.Label() != "Maria Rojas" {
		t.Errorf("Unexpected label %q", c.Label())
	}
}
