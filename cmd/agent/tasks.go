package main

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/guido-cesarano/fieldtrack/pkg/api"
	"github.com/guido-cesarano/fieldtrack/pkg/config"
	"github.com/guido-cesarano/fieldtrack/pkg/elapsed"
	"github.com/guido-cesarano/fieldtrack/pkg/history"
	"github.com/guido-cesarano/fieldtrack/pkg/logger"
	"github.com/guido-cesarano/fieldtrack/pkg/model"
	"github.com/guido-cesarano/fieldtrack/pkg/notify"
	"github.com/guido-cesarano/fieldtrack/pkg/reconcile"
	"github.com/spf13/cobra"
)

// newTasksCmd lists assigned tasks, reconciling local active-task state
// against the fetched list first.
func newTasksCmd(configPath *string) *cobra.Command {
	var stateFilter string

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List assigned tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := a.requireLogin(ctx); err != nil {
				return err
			}

			rec := reconcile.New(a.svc, a.store, a.bus)
			list, err := rec.Reconcile(ctx)
			if err != nil {
				return fmt.Errorf("fetch tasks: %w", err)
			}

			list = filterByState(list, stateFilter)
			sortByDue(list)

			if len(list) == 0 {
				fmt.Println("No tasks")
				return nil
			}
			active := a.store.ActiveTask(ctx)
			for _, t := range list {
				marker := " "
				if active != nil && active.ID == t.ID {
					marker = "*"
				}
				fmt.Printf("%s %4d  %-12s  %-20s  due %s  %s\n",
					marker, t.ID, t.State.Normalized(), truncate(t.Name, 20), t.DueAt, t.Client.Address)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&stateFilter, "state", "", "filter by state name (e.g. CREATED, IN_PROGRESS)")
	return cmd
}

// newStartCmd starts executing a task: server first, then the local slot.
func newStartCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start <task-id>",
		Short: "Start executing a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := a.requireLogin(ctx); err != nil {
				return err
			}

			taskID, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid task id %q", args[0])
			}

			// One task at a time: the server enforces this too, but failing
			// locally gives a clearer message.
			if active := a.store.ActiveTask(ctx); active != nil {
				return fmt.Errorf("task %d (%s) is already in progress, finalize it first", active.ID, active.Name)
			}

			task, err := a.svc.StartTask(ctx, taskID)
			if err != nil {
				return fmt.Errorf("start task %d: %w", taskID, err)
			}
			// The server stamps StartedAt on transition; store it so the
			// timer agrees with server truth even after a restart.
			if err := a.store.StartTask(ctx, task, task.StartMillis()); err != nil {
				return fmt.Errorf("persist active task: %w", err)
			}

			fmt.Printf("Started task %d: %s\n", task.ID, task.Name)
			return nil
		},
	}
}

// newFinalizeCmd completes the active task. Deliveries require the customer
// verification code; a wrong code is a field-level error, not a generic one.
func newFinalizeCmd(configPath *string) *cobra.Command {
	var code, observation string

	cmd := &cobra.Command{
		Use:   "finalize <task-id>",
		Short: "Finalize a task, with a verification code for deliveries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := a.requireLogin(ctx); err != nil {
				return err
			}

			taskID, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid task id %q", args[0])
			}

			active := a.store.ActiveTask(ctx)
			if active == nil || active.ID != taskID {
				return fmt.Errorf("task %d is not the active task", taskID)
			}

			var task model.Task
			if active.RequiresCode() {
				if code == "" {
					return errors.New("this delivery requires the customer verification code (--code)")
				}
				task, err = a.svc.FinalizeWithCode(ctx, taskID, code, observation)
				if errors.Is(err, api.ErrInvalidCode) {
					return errors.New("verification code is incorrect")
				}
			} else {
				task, err = a.svc.FinalizeWithoutCode(ctx, taskID, observation)
			}
			if err != nil {
				return fmt.Errorf("finalize task %d: %w", taskID, err)
			}

			if err := a.store.Clear(ctx); err != nil {
				return fmt.Errorf("clear active task: %w", err)
			}
			a.bus.Publish(notify.Event{Topic: notify.TaskCompleted, TaskID: task.ID})
			recordHistory(cmd, a, task)

			fmt.Printf("Task %d finalized\n", task.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "customer verification code (deliveries)")
	cmd.Flags().StringVar(&observation, "observation", "", "free-text observation")
	return cmd
}

// recordHistory caches the finalized task locally; failure is logged, never
// surfaced, since the server already has the truth.
func recordHistory(cmd *cobra.Command, a *app, task model.Task) {
	path, err := a.historyPath()
	if err != nil {
		return
	}
	if err := config.EnsureDir(path); err != nil {
		return
	}
	store, err := history.Open(path)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("History cache unavailable")
		return
	}
	defer store.Close()
	if err := store.Record(cmd.Context(), task); err != nil {
		logger.Log.Warn().Err(err).Msg("Failed to record finalized task")
	}
}

// newStatusCmd prints the active task and its elapsed time, one-shot.
func newStatusCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the active task and elapsed time",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := a.requireLogin(ctx); err != nil {
				return err
			}

			task := a.store.ActiveTask(ctx)
			if task == nil {
				fmt.Println("No active task")
				return nil
			}
			fmt.Printf("Task %d: %s\n", task.ID, task.Name)
			fmt.Printf("Client: %s, %s (%s)\n", task.Client.Name, task.Client.Address, task.Client.Phone)
			fmt.Printf("Elapsed: %s\n", elapsed.Format(a.store.Elapsed(ctx)))
			return nil
		},
	}
}

// newHistoryCmd shows completed tasks, preferring fresh server data and
// falling back to the local cache when offline.
func newHistoryCmd(configPath *string) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show completed tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := a.requireLogin(ctx); err != nil {
				return err
			}

			to := time.Now()
			from := to.AddDate(0, 0, -days)

			path, err := a.historyPath()
			if err != nil {
				return err
			}
			if err := config.EnsureDir(path); err != nil {
				return err
			}
			cache, err := history.Open(path)
			if err != nil {
				return err
			}
			defer cache.Close()

			tasks, err := a.svc.CompletedTasks(ctx, from, to)
			if err != nil {
				logger.Log.Warn().Err(err).Msg("Backend unreachable, using cached history")
				tasks, err = cache.List(ctx, from, to)
				if err != nil {
					return err
				}
			} else if err := cache.RecordAll(ctx, tasks); err != nil {
				logger.Log.Warn().Err(err).Msg("Failed to refresh history cache")
			}

			if len(tasks) == 0 {
				fmt.Println("No completed tasks in range")
				return nil
			}
			for _, t := range tasks {
				fmt.Printf("%4d  %-12s  %-20s  finished %s\n",
					t.ID, t.State.Normalized(), truncate(t.Name, 20), t.FinishedAt)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "how many days back to list")
	return cmd
}

func filterByState(list []model.Task, stateName string) []model.Task {
	if stateName == "" {
		return list
	}
	want := model.TaskState{Name: stateName}.Normalized()
	var out []model.Task
	for _, t := range list {
		if t.State.Normalized() == want {
			out = append(out, t)
		}
	}
	return out
}

// sortByDue orders tasks by due timestamp, unparseable ones last.
func sortByDue(list []model.Task) {
	sort.SliceStable(list, func(i, j int) bool {
		ti, erri := model.ParseServerTime(list[i].DueAt)
		tj, errj := model.ParseServerTime(list[j].DueAt)
		if erri != nil {
			return false
		}
		if errj != nil {
			return true
		}
		return ti.Before(tj)
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
