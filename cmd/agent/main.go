// Package main implements the FieldTrack courier agent.
//
// The agent is the field side of the system: it shows the courier their
// assigned tasks, tracks the single task being executed (with a persistent
// timer that survives restarts), reports positions in the background and
// keeps local state reconciled with the backend.
//
// Commands:
//
//	fieldagent login -u <user> -p <password>
//	fieldagent tasks
//	fieldagent start <task-id>
//	fieldagent finalize <task-id> [--code 1234] --observation "..."
//	fieldagent status
//	fieldagent history [--days 7]
//	fieldagent run [--show-timer]
//	fieldagent logout
//
// State lives in a device-local Redis instance (see cmd/statedev for a
// development server) so the foreground commands and the background
// reporter inside `run` always agree on the active task.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/guido-cesarano/fieldtrack/pkg/api"
	"github.com/guido-cesarano/fieldtrack/pkg/config"
	"github.com/guido-cesarano/fieldtrack/pkg/logger"
	"github.com/guido-cesarano/fieldtrack/pkg/model"
	"github.com/guido-cesarano/fieldtrack/pkg/notify"
	"github.com/guido-cesarano/fieldtrack/pkg/state"
	"github.com/spf13/cobra"
)

// app bundles the wired-up services every command needs. It is constructed
// once per invocation; there is no ambient global lookup.
type app struct {
	cfg     config.Config
	session *state.SessionStore
	store   *state.Store
	svc     api.TaskService
	bus     *notify.Bus
}

// newApp loads configuration and wires the stores and the backend client.
func newApp(configPath string) (*app, error) {
	if configPath == "" {
		p, err := config.DefaultConfigPath()
		if err != nil {
			return nil, err
		}
		configPath = p
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	session := state.NewSessionStore(cfg.RedisAddr)
	svc := api.NewClient(cfg.ServerURL, func(ctx context.Context) string {
		return session.Token(ctx)
	})

	return &app{
		cfg:     cfg,
		session: session,
		store:   state.NewStore(cfg.RedisAddr),
		svc:     svc,
		bus:     notify.NewBus(),
	}, nil
}

// historyPath resolves the completed-task cache location, preferring the
// configured path over the per-user default.
func (a *app) historyPath() (string, error) {
	if a.cfg.HistoryDBPath != "" {
		return a.cfg.HistoryDBPath, nil
	}
	return config.DefaultHistoryPath()
}

// requireLogin is the entry-point gate: every command except login checks
// it and redirects to authentication instead of failing with a raw 401.
func (a *app) requireLogin(ctx context.Context) error {
	if !a.session.IsLoggedIn(ctx) {
		return fmt.Errorf("not logged in or session expired, run `fieldagent login` first")
	}
	return nil
}

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "fieldagent",
		Short:         "FieldTrack courier agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default: user config dir)")

	root.AddCommand(
		newLoginCmd(&configPath),
		newLogoutCmd(&configPath),
		newStatusCmd(&configPath),
		newTasksCmd(&configPath),
		newStartCmd(&configPath),
		newFinalizeCmd(&configPath),
		newHistoryCmd(&configPath),
		newRunCmd(&configPath),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newLoginCmd authenticates, persists the session and registers this
// device's notification token for the user.
func newLoginCmd(configPath *string) *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate against the FieldTrack backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			sess, err := a.svc.Login(ctx, model.Credentials{Username: username, Password: password})
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
			if err := a.session.Save(ctx, sess); err != nil {
				return fmt.Errorf("save session: %w", err)
			}

			// Notification token registration is best-effort: a failure
			// here must not block a valid login.
			if deviceID, err := a.session.DeviceID(ctx); err == nil {
				if err := a.svc.UpdateNotificationToken(ctx, sess.UserID, deviceID); err != nil {
					logger.Log.Warn().Err(err).Msg("Failed to register notification token")
				}
			}

			fmt.Printf("Logged in as %s %s (%s)\n", sess.FirstName, sess.LastName, sess.Role)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "account username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newLogoutCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			if err := a.session.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Logged out")
			return nil
		},
	}
}
