// Package main implements the FieldTrack supervisor console.
//
// Supervisors and advisors use it to watch courier positions and task
// locations: it polls the tracking feed every 30 seconds (configurable),
// merges couriers and assigned tasks into one marker feed, and prints a
// position table. Metrics are exposed for dashboarding.
//
// Usage:
//
//	fieldsupervisor [-config path]
//
// Requires a logged-in session in the local state db (run `fieldagent login`
// with a supervisor account first).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/guido-cesarano/fieldtrack/pkg/api"
	"github.com/guido-cesarano/fieldtrack/pkg/config"
	"github.com/guido-cesarano/fieldtrack/pkg/logger"
	"github.com/guido-cesarano/fieldtrack/pkg/model"
	"github.com/guido-cesarano/fieldtrack/pkg/state"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// activeMessengers is the number of couriers in the last feed poll.
	activeMessengers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fieldtrack_active_messengers",
		Help: "Number of couriers in the last tracking feed poll",
	})

	// feedPolls counts tracking feed polls by outcome ("ok", "error").
	feedPolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldtrack_feed_polls_total",
		Help: "The total number of tracking feed polls",
	}, []string{"result"})
)

func main() {
	configPath := flag.String("config", "", "config file path (default: user config dir)")
	flag.Parse()

	path := *configPath
	if path == "" {
		p, err := config.DefaultConfigPath()
		if err != nil {
			logger.Log.Fatal().Err(err).Msg("Cannot locate config directory")
		}
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to load config")
	}

	session := state.NewSessionStore(cfg.RedisAddr)
	svc := api.NewClient(cfg.ServerURL, func(ctx context.Context) string {
		return session.Token(ctx)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if !session.IsLoggedIn(ctx) {
		fmt.Fprintln(os.Stderr, "Not logged in or session expired, run `fieldagent login` first")
		os.Exit(1)
	}

	// Setup graceful shutdown handlers
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Log.Info().Msg("Shutting down supervisor...")
		cancel()
	}()

	// Prometheus metrics server
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		logger.Log.Info().Str("addr", cfg.MetricsAddr).Msg("Metrics server listening")
		if err := http.ListenAndServe(cfg.MetricsAddr, nil); err != nil {
			logger.Log.Error().Err(err).Msg("Metrics server stopped")
		}
	}()

	logger.Log.Info().Msg("Supervisor console started")
	pollFeed(ctx, svc, time.Duration(cfg.MessengerPollSeconds)*time.Second)
}

// pollFeed refreshes the marker feed on a fixed cadence until ctx is
// cancelled. A failed poll keeps the previous view; the next tick
// supersedes it.
func pollFeed(ctx context.Context, svc api.TaskService, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	refresh(ctx, svc)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh(ctx, svc)
		}
	}
}

// refresh polls couriers and tasks and renders the merged marker feed.
func refresh(ctx context.Context, svc api.TaskService) {
	messengers, err := svc.ActiveMessengers(ctx)
	if err != nil {
		feedPolls.WithLabelValues("error").Inc()
		if errors.Is(err, api.ErrUnauthorized) {
			logger.Log.Error().Msg("Session rejected by backend, log in again")
			return
		}
		logger.Log.Warn().Err(err).Msg("Tracking feed poll failed, keeping previous view")
		return
	}
	feedPolls.WithLabelValues("ok").Inc()
	activeMessengers.Set(float64(len(messengers)))

	// Task markers are best-effort: some supervisor roles have no assigned
	// task list of their own.
	var tasks []model.Task
	if list, err := svc.MyTasks(ctx); err == nil {
		tasks = list
	}

	markers := buildMarkers(tasks, messengers)
	render(markers)
}

// buildMarkers merges tasks and couriers into one tagged marker feed.
func buildMarkers(tasks []model.Task, messengers []model.Messenger) []model.Marker {
	markers := make([]model.Marker, 0, len(tasks)+len(messengers))
	for _, t := range tasks {
		if t.State.Finalized() {
			continue
		}
		markers = append(markers, model.TaskMarker(t))
	}
	for _, m := range messengers {
		markers = append(markers, model.CourierMarker(m))
	}
	return markers
}

// render prints the marker feed as a table, one row per marker.
func render(markers []model.Marker) {
	if len(markers) == 0 {
		logger.Log.Info().Msg("No markers in feed")
		return
	}
	for _, m := range markers {
		switch m.Kind {
		case model.MarkerCourier:
			c := m.Courier
			taskNote := "idle"
			if c.CurrentTaskID != 0 {
				taskNote = fmt.Sprintf("task %d", c.CurrentTaskID)
			}
			fmt.Printf("courier  %-24s %9.5f,%10.5f  %s  (seen %s)\n",
				c.FullName, m.Latitude, m.Longitude, taskNote, c.UpdatedAt)
		case model.MarkerTask:
			t := m.Task
			fmt.Printf("task     %-24s %9.5f,%10.5f  %s\n",
				t.Name, m.Latitude, m.Longitude, t.State.Normalized())
		}
	}
}
