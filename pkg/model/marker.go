package model

// MarkerKind discriminates what a map marker points at.
type MarkerKind int

const (
	// MarkerTask marks a task's client location.
	MarkerTask MarkerKind = iota
	// MarkerCourier marks a courier's last reported position.
	MarkerCourier
)

// Marker is a tagged variant for the dispatcher's map feed: exactly one of
// Task or Courier is set, according to Kind. This replaces branching on the
// dynamic type of an opaque marker payload.
type Marker struct {
	Kind      MarkerKind
	Latitude  float64
	Longitude float64
	Task      *Task
	Courier   *Messenger
}

// TaskMarker builds a marker at the task's client coordinates.
func TaskMarker(t Task) Marker {
	return Marker{
		Kind:      MarkerTask,
		Latitude:  t.Client.Latitude,
		Longitude: t.Client.Longitude,
		Task:      &t,
	}
}

// CourierMarker builds a marker at the courier's last reported position.
func CourierMarker(m Messenger) Marker {
	return Marker{
		Kind:      MarkerCourier,
		Latitude:  m.Latitude,
		Longitude: m.Longitude,
		Courier:   &m,
	}
}

// Label returns the display text for the marker's info window.
func (m Marker) Label() string {
	switch m.Kind {
	case MarkerTask:
		if m.Task != nil {
			return m.Task.Name
		}
	case MarkerCourier:
		if m.Courier != nil {
			return m.Courier.FullName
		}
	}
	return ""
}
