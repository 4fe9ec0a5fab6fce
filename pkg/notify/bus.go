// Package notify is a small in-process event bus. It replaces polling for
// cross-component signals: a finalized task tells every list view to refresh,
// and a reconciliation that drops the active task tells the UI to surface a
// notice.
package notify

import "sync"

// Topic identifies an event stream.
type Topic string

const (
	// TaskCompleted fires after a task was successfully finalized.
	TaskCompleted Topic = "task_completed"
	// ActiveTaskRemoved fires when reconciliation discovers the active task
	// vanished or was finalized server-side.
	ActiveTaskRemoved Topic = "active_task_removed"
)

// Event is a published notification.
type Event struct {
	Topic   Topic
	TaskID  int
	Message string
}

// Bus fans events out to subscribers. Delivery is best-effort: a subscriber
// that has fallen behind loses events instead of blocking the publisher.
type Bus struct {
	mu   sync.Mutex
	subs map[Topic][]chan Event
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Topic][]chan Event)}
}

// Subscribe returns a channel receiving every future event on topic.
func (b *Bus) Subscribe(topic Topic) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 8)
	b.subs[topic] = append(b.subs[topic], ch)
	return ch
}

// Publish delivers an event to all current subscribers of its topic.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs[e.Topic] {
		select {
		case ch <- e:
		default:
			// Subscriber is not draining; drop rather than stall.
		}
	}
}
