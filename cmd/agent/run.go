package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/guido-cesarano/fieldtrack/pkg/elapsed"
	"github.com/guido-cesarano/fieldtrack/pkg/logger"
	"github.com/guido-cesarano/fieldtrack/pkg/notify"
	"github.com/guido-cesarano/fieldtrack/pkg/reconcile"
	"github.com/guido-cesarano/fieldtrack/pkg/tracking"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

// activeTaskGauge is 1 while a task is being executed, 0 otherwise.
var activeTaskGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "fieldtrack_active_task",
	Help: "Whether a task is currently being executed",
})

// newRunCmd starts the long-running agent: periodic task-list reconciliation,
// the background location reporter, the metrics endpoint and the notice
// listener. It runs until SIGINT/SIGTERM.
func newRunCmd(configPath *string) *cobra.Command {
	var showTimer bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the agent daemon (reconciliation + location reporting)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			if err := a.requireLogin(ctx); err != nil {
				return err
			}

			// Graceful shutdown on SIGINT/SIGTERM
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigChan
				logger.Log.Info().Msg("Shutting down agent...")
				cancel()
			}()

			// Prometheus metrics server
			go func() {
				http.Handle("/metrics", promhttp.Handler())
				logger.Log.Info().Str("addr", a.cfg.MetricsAddr).Msg("Metrics server listening")
				if err := http.ListenAndServe(a.cfg.MetricsAddr, nil); err != nil {
					logger.Log.Error().Err(err).Msg("Metrics server stopped")
				}
			}()

			// Surface reconciliation notices and completion events.
			go watchNotices(ctx, a.bus)

			// Periodic task-list refresh, plus one run right away so the
			// agent starts from reconciled state.
			rec := reconcile.New(a.svc, a.store, a.bus)
			if _, err := rec.Reconcile(ctx); err != nil {
				logger.Log.Warn().Err(err).Msg("Initial reconciliation failed, keeping local state")
			}
			c := cron.New()
			if _, err := c.AddFunc(a.cfg.RefreshSchedule, func() {
				if _, err := rec.Reconcile(context.Background()); err != nil {
					logger.Log.Warn().Err(err).Msg("Reconciliation failed, keeping local state")
				}
			}); err != nil {
				return fmt.Errorf("invalid refresh schedule %q: %w", a.cfg.RefreshSchedule, err)
			}
			c.Start()
			defer c.Stop()

			// Track the active-task gauge alongside the refresh loop.
			go trackActiveGauge(ctx, a)

			// Background location reporter. Its lifetime is the whole run:
			// screen-level concerns never cancel it.
			reporter := tracking.NewReporter(a.svc, a.session, a.store, locationSource(a), tracking.Options{
				Interval:              time.Duration(a.cfg.ReportIntervalSeconds) * time.Second,
				MinDisplacementMeters: a.cfg.MinDisplacementMeters,
			})
			go reporter.Supervise(ctx)

			if showTimer {
				go showElapsed(ctx, a)
			}

			logger.Log.Info().Int("user_id", a.session.UserID(ctx)).Msg("Agent started")
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().BoolVar(&showTimer, "show-timer", false, "print the active task timer every second")
	return cmd
}

// locationSource picks the configured position source.
func locationSource(a *app) tracking.Source {
	if a.cfg.ReplayFile != "" {
		return tracking.ReplaySource{Path: a.cfg.ReplayFile}
	}
	return tracking.FixedSource{Latitude: a.cfg.FixedLatitude, Longitude: a.cfg.FixedLongitude}
}

// watchNotices logs user-visible notices from the event bus. These are the
// CLI's stand-in for toasts: short-lived, never blocking.
func watchNotices(ctx context.Context, bus *notify.Bus) {
	removed := bus.Subscribe(notify.ActiveTaskRemoved)
	completed := bus.Subscribe(notify.TaskCompleted)
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-removed:
			logger.Log.Warn().Int("task_id", e.TaskID).Msg(e.Message)
		case e := <-completed:
			logger.Log.Info().Int("task_id", e.TaskID).Msg("Task completed")
		}
	}
}

// trackActiveGauge mirrors the store into the active-task gauge.
func trackActiveGauge(ctx context.Context, a *app) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if a.store.HasActiveTask(ctx) {
				activeTaskGauge.Set(1)
			} else {
				activeTaskGauge.Set(0)
			}
		}
	}
}

// showElapsed keeps a live timer on stdout. The presenter stops itself when
// the active task goes away; this loop waits for the next one and resumes.
func showElapsed(ctx context.Context, a *app) {
	presenter := elapsed.NewPresenter(a.store)
	for {
		if ctx.Err() != nil {
			return
		}
		if a.store.HasActiveTask(ctx) {
			presenter.Run(ctx, func(t elapsed.Tick) {
				if t.Active {
					fmt.Printf("\rElapsed: %s", t.Display)
				} else {
					fmt.Println("\rNo active task          ")
				}
			})
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}
