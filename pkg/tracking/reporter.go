package tracking

import (
	"context"
	"errors"
	"time"

	"github.com/guido-cesarano/fieldtrack/pkg/api"
	"github.com/guido-cesarano/fieldtrack/pkg/logger"
	"github.com/guido-cesarano/fieldtrack/pkg/state"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	// positionsReported counts submission attempts by outcome
	// ("sent", "dropped", "filtered").
	positionsReported = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldtrack_positions_reported_total",
		Help: "The total number of position samples by submission outcome",
	}, []string{"outcome"})

	// reportDuration tracks position submission latency in seconds.
	reportDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fieldtrack_position_report_duration_seconds",
		Help:    "Duration of position submissions",
		Buckets: prometheus.DefBuckets,
	})

	// reporterRestarts counts supervised restarts after abnormal exits.
	reporterRestarts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fieldtrack_reporter_restarts_total",
		Help: "The total number of location reporter restarts",
	})
)

// restartDelay is how long Supervise waits before relaunching a failed
// reporter, mirroring the one-shot wakeup the mobile build schedules when
// the OS kills its tracking service.
const restartDelay = time.Second

// Reporter submits position samples tagged with the current active task.
//
// Delivery is explicitly at-most-once: a failed submission is logged and
// dropped, with no retry queue or backoff; the next periodic sample
// supersedes it and the cadence itself provides eventual consistency.
type Reporter struct {
	svc     api.TaskService
	session *state.SessionStore
	store   *state.Store
	src     Source
	opts    Options
	log     zerolog.Logger
}

// NewReporter creates a reporter. opts.Interval must be positive.
func NewReporter(svc api.TaskService, session *state.SessionStore, store *state.Store, src Source, opts Options) *Reporter {
	return &Reporter{
		svc:     svc,
		session: session,
		store:   store,
		src:     src,
		opts:    opts,
		log:     logger.For("tracking"),
	}
}

// Run consumes position samples until ctx is cancelled or the source is
// exhausted. A permission denial stops sampling quietly; any other source
// error is returned so Supervise can schedule a restart.
func (r *Reporter) Run(ctx context.Context) error {
	updates, err := r.src.Updates(ctx, r.opts)
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			r.log.Warn().Msg("Location permission denied, position updates disabled")
			return nil
		}
		return err
	}

	r.log.Info().
		Dur("interval", r.opts.Interval).
		Float64("min_displacement_m", r.opts.MinDisplacementMeters).
		Msg("Location reporter started")

	var lastSent *Position
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case pos, ok := <-updates:
			if !ok {
				return nil
			}
			if lastSent != nil && r.opts.MinDisplacementMeters > 0 {
				moved := distanceMeters(lastSent.Latitude, lastSent.Longitude, pos.Latitude, pos.Longitude)
				if moved < r.opts.MinDisplacementMeters {
					positionsReported.WithLabelValues("filtered").Inc()
					continue
				}
			}
			if r.report(ctx, pos) {
				lastSent = &pos
			}
		}
	}
}

// report submits one sample and reports whether it was accepted.
func (r *Reporter) report(ctx context.Context, pos Position) bool {
	userID := r.session.UserID(ctx)
	if userID == 0 {
		r.log.Error().Msg("No user logged in, cannot send location")
		positionsReported.WithLabelValues("dropped").Inc()
		return false
	}

	// The task field is absent when no task is active, never a sentinel id.
	var taskID *int
	if task := r.store.ActiveTask(ctx); task != nil {
		taskID = &task.ID
	}

	start := time.Now()
	err := r.svc.ReportPosition(ctx, userID, taskID, pos.Latitude, pos.Longitude)
	reportDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		// At-most-once: log and drop, the next sample supersedes this one.
		r.log.Error().Err(err).
			Float64("lat", pos.Latitude).
			Float64("lon", pos.Longitude).
			Msg("Failed to send location")
		positionsReported.WithLabelValues("dropped").Inc()
		return false
	}

	r.log.Debug().
		Float64("lat", pos.Latitude).
		Float64("lon", pos.Longitude).
		Msg("Location sent")
	positionsReported.WithLabelValues("sent").Inc()
	return true
}

// Supervise runs the reporter and relaunches it after restartDelay whenever
// it exits abnormally. It returns only when ctx is cancelled (explicit
// logout or process shutdown); screen-level lifecycles never cancel it.
func (r *Reporter) Supervise(ctx context.Context) {
	for {
		err := r.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			r.log.Error().Err(err).Msg("Location reporter stopped, scheduling restart")
		} else {
			r.log.Warn().Msg("Location source exhausted, scheduling restart")
		}
		reporterRestarts.Inc()

		select {
		case <-ctx.Done():
			return
		case <-time.After(restartDelay):
		}
	}
}
