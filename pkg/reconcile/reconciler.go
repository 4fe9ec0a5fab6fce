// Package reconcile repairs divergence between the server's authoritative
// task list and the locally persisted active-task slot. It runs after every
// list refresh: the courier may have been reassigned, the task may have been
// finalized from the dispatcher console, or the app may have been killed
// while a task was in progress on another install.
package reconcile

import (
	"context"

	"github.com/guido-cesarano/fieldtrack/pkg/api"
	"github.com/guido-cesarano/fieldtrack/pkg/logger"
	"github.com/guido-cesarano/fieldtrack/pkg/model"
	"github.com/guido-cesarano/fieldtrack/pkg/notify"
	"github.com/guido-cesarano/fieldtrack/pkg/state"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	// reconcileRuns counts reconciliation attempts by outcome ("ok", "error").
	reconcileRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldtrack_reconcile_runs_total",
		Help: "The total number of reconciliation runs",
	}, []string{"result"})

	// divergences counts repaired divergences by kind
	// ("orphan", "finalized", "adopted", "anomaly").
	divergences = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldtrack_reconcile_divergences_total",
		Help: "Divergences between local active-task state and server truth",
	}, []string{"kind"})
)

// Reconciler resolves the local active-task slot against server truth.
type Reconciler struct {
	svc   api.TaskService
	store *state.Store
	bus   *notify.Bus
	log   zerolog.Logger
}

// New creates a reconciler. bus may be nil when no one listens for
// active-task notices (e.g. one-shot CLI commands).
func New(svc api.TaskService, store *state.Store, bus *notify.Bus) *Reconciler {
	return &Reconciler{
		svc:   svc,
		store: store,
		bus:   bus,
		log:   logger.For("reconcile"),
	}
}

// Reconcile fetches the courier's task list and repairs the active-task
// slot, returning the fetched list for presentation.
//
// A fetch failure mutates nothing: the last known good local state is kept
// and the error is returned for the caller to surface. When a server-side
// IN_PROGRESS task is adopted, its start time is taken from the task's own
// StartedAt field; only when that is absent or unparseable does the timer
// start from "now", which under-counts for an already-running task.
func (r *Reconciler) Reconcile(ctx context.Context) ([]model.Task, error) {
	list, err := r.svc.MyTasks(ctx)
	if err != nil {
		reconcileRuns.WithLabelValues("error").Inc()
		return nil, err
	}

	if active := r.store.ActiveTask(ctx); active != nil {
		r.checkActive(ctx, *active, list)
	}
	r.adoptInProgress(ctx, list)

	reconcileRuns.WithLabelValues("ok").Inc()
	return list, nil
}

// checkActive validates the stored active task against the fetched list.
func (r *Reconciler) checkActive(ctx context.Context, active model.Task, list []model.Task) {
	current := findTask(list, active.ID)
	if current == nil {
		// Deleted or reassigned server-side. Recoverable: the agent keeps
		// running, just without an active task.
		r.log.Warn().Int("task_id", active.ID).Msg("Active task no longer exists server-side, clearing")
		if err := r.store.Clear(ctx); err != nil {
			r.log.Error().Err(err).Msg("Failed to clear orphaned active task")
			return
		}
		divergences.WithLabelValues("orphan").Inc()
		r.publish(notify.Event{
			Topic:   notify.ActiveTaskRemoved,
			TaskID:  active.ID,
			Message: "The task you were executing was removed or reassigned",
		})
		return
	}

	if !current.State.InProgress() {
		// Finalized elsewhere (dispatcher console, another device).
		r.log.Info().
			Int("task_id", active.ID).
			Str("state", current.State.Normalized()).
			Msg("Active task finalized server-side, clearing")
		if err := r.store.Clear(ctx); err != nil {
			r.log.Error().Err(err).Msg("Failed to clear finalized active task")
			return
		}
		divergences.WithLabelValues("finalized").Inc()
		r.publish(notify.Event{
			Topic:   notify.ActiveTaskRemoved,
			TaskID:  active.ID,
			Message: "The task you were executing was finalized",
		})
		return
	}

	// Still in progress: refresh the snapshot without touching the timer.
	if err := r.store.UpdateTaskData(ctx, *current); err != nil {
		r.log.Error().Err(err).Int("task_id", active.ID).Msg("Failed to refresh active task data")
	}
}

// adoptInProgress picks up a task the server already has IN_PROGRESS when
// the local slot is empty (fresh install, cleared storage, reassignment).
//
// The server guarantees at most one IN_PROGRESS task per courier. If it
// ever returns more, the one already referenced locally wins (it was kept
// by checkActive, so the slot is non-empty and nothing is adopted here);
// otherwise the first in list order is taken and the rest are logged as a
// data anomaly, not failed on.
func (r *Reconciler) adoptInProgress(ctx context.Context, list []model.Task) {
	var inProgress []model.Task
	for _, t := range list {
		if t.State.InProgress() {
			inProgress = append(inProgress, t)
		}
	}

	if len(inProgress) > 1 {
		r.log.Warn().Int("count", len(inProgress)).Msg("Server returned more than one IN_PROGRESS task")
		divergences.WithLabelValues("anomaly").Inc()
	}
	if len(inProgress) == 0 || r.store.HasActiveTask(ctx) {
		return
	}

	task := inProgress[0]
	start := task.StartMillis()
	if err := r.store.StartTask(ctx, task, start); err != nil {
		r.log.Error().Err(err).Int("task_id", task.ID).Msg("Failed to adopt in-progress task")
		return
	}
	divergences.WithLabelValues("adopted").Inc()
	r.log.Info().
		Int("task_id", task.ID).
		Int64("start_millis", start).
		Msg("Adopted server-side in-progress task")
}

func (r *Reconciler) publish(e notify.Event) {
	if r.bus != nil {
		r.bus.Publish(e)
	}
}

func findTask(list []model.Task, id int) *model.Task {
	for i := range list {
		if list[i].ID == id {
			return &list[i]
		}
	}
	return nil
}
