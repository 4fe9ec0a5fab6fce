// Package elapsed renders the active task's running time as an HH:MM:SS
// string on a one-second tick, the way the in-progress screen shows it.
package elapsed

import (
	"context"
	"fmt"
	"time"

	"github.com/guido-cesarano/fieldtrack/pkg/state"
)

// Tick is one presenter update. Active is false exactly once, as the final
// tick, when the active task disappears mid-run; observers must stop
// showing the timer rather than keep a stale value on screen.
type Tick struct {
	Display string
	Active  bool
}

// Presenter derives the live timer string from the active-task store.
type Presenter struct {
	store    *state.Store
	interval time.Duration
}

// NewPresenter creates a presenter ticking once per second.
func NewPresenter(store *state.Store) *Presenter {
	return &Presenter{store: store, interval: time.Second}
}

// Run emits a Tick to observe every interval until the active task goes
// away or ctx is cancelled. An immediate first tick is emitted before the
// first interval elapses so the display never starts blank.
func (p *Presenter) Run(ctx context.Context, observe func(Tick)) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	if !p.tick(ctx, observe) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !p.tick(ctx, observe) {
				return
			}
		}
	}
}

// tick emits one update and reports whether ticking should continue.
func (p *Presenter) tick(ctx context.Context, observe func(Tick)) bool {
	if !p.store.HasActiveTask(ctx) {
		observe(Tick{Active: false})
		return false
	}
	observe(Tick{Display: Format(p.store.Elapsed(ctx)), Active: true})
	return true
}

// Format renders a duration as HH:MM:SS. Hours do not wrap at 24; a task
// left running for two days reads 48:00:00.
func Format(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}
