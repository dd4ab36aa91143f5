package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"remindly/internal/agenda"
	"remindly/internal/config"
	"remindly/internal/ics"
	appLog "remindly/internal/log"
	"remindly/internal/notify"
	"remindly/internal/scheduler"
	"remindly/internal/store"
	"remindly/internal/web"
)

const version = "0.1.0"

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "remindly",
		Short:         "Natural-language task reminders",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "/etc/remindly/config.yaml", "path to config file")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(execCmd())
	rootCmd.AddCommand(tickCmd())
	rootCmd.AddCommand(exportCmd())

	if err := rootCmd.Execute(); err != nil {
		appLog.Error("remindly failed", err)
		os.Exit(1)
	}
}

// app bundles everything a subcommand needs.
type app struct {
	cfg   *config.Config
	store *store.Store
	svc   *agenda.Service
	sched *scheduler.Scheduler
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		appLog.Error("failed to close store", err)
	}
}

func loadApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}
	appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	st, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	loc := cfg.Location()
	policy, err := cfg.Policy(loc)
	if err != nil {
		st.Close()
		return nil, err
	}
	svc := agenda.New(st, agenda.Config{
		Location:      loc,
		HorizonMonths: cfg.HorizonMonths,
		Policy:        policy,
	})

	var n notify.Notifier = notify.Log{}
	if cfg.Webhook != nil {
		n = notify.NewWebhook(cfg.Webhook.URL, time.Duration(cfg.Webhook.TimeoutSeconds)*time.Second)
	}
	sched := scheduler.New(svc, n, scheduler.Config{
		ExpandSpec:   config.JobSpec(cfg.ExpandCron),
		DispatchSpec: config.JobSpec(cfg.DispatchCron),
		CleanupSpec:  config.JobSpec(cfg.CleanupCron),
		Retention:    cfg.Retention(),
	})

	return &app{cfg: cfg, store: st, svc: svc, sched: sched}, nil
}

func serveCmd() *cobra.Command {
	var (
		listen string
		noCron bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the reminder scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			// --listen overrides config file listen if provided.
			if listen != "" {
				a.cfg.Listen = listen
			}

			appLog.Info("remindly starting",
				"version", version,
				"listen", a.cfg.Listen,
				"timezone", a.cfg.Timezone,
				"db", a.cfg.DBPath,
				"horizon_months", a.cfg.HorizonMonths,
				"webhook", a.cfg.Webhook != nil,
				"cron", !noCron,
			)

			// Root context with cancellation on SIGINT/SIGTERM.
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			go func() {
				select {
				case sig := <-sigCh:
					appLog.Info("signal received, shutting down", "signal", sig.String())
					cancel()
				case <-ctx.Done():
				}
			}()

			if !noCron {
				if err := a.sched.Start(ctx); err != nil {
					return err
				}
				defer func() {
					stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
					defer stopCancel()
					a.sched.Stop(stopCtx)
				}()
			}

			err = web.NewServer(a.cfg, a.svc, a.sched).Serve(ctx)
			appLog.Info("remindly exiting")
			return err
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	cmd.Flags().BoolVar(&noCron, "no-cron", false, "do not run scheduled passes; use /api/tick instead")
	return cmd
}

func execCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exec [command text]",
		Short: "Run one command, e.g. remindly exec add Gym tomorrow 7am",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.svc.HandleCommand(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				if agenda.IsUserError(err) {
					return fmt.Errorf("%s: %w", agenda.Code(err), err)
				}
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}

func tickCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "tick [expand|dispatch|cleanup|all]",
		Short:     "Run scheduler passes once and exit",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"expand", "dispatch", "cleanup", "all"},
		RunE: func(cmd *cobra.Command, args []string) error {
			pass := "all"
			if len(args) == 1 {
				pass = args[0]
			}

			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			out := map[string]any{}
			if pass == "expand" || pass == "all" {
				out["expand"] = a.sched.Expand(ctx)
			}
			if pass == "dispatch" || pass == "all" {
				out["dispatch"] = a.sched.Dispatch(ctx)
			}
			if pass == "cleanup" || pass == "all" {
				out["cleanup"] = a.sched.Cleanup(ctx)
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

func exportCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write all active tasks as an iCalendar file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			tasks, err := a.store.ListActiveTasks(cmd.Context(), store.TaskFilter{})
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			err = ics.Write(w, tasks, ics.ExportConfig{
				Location: a.svc.Location(),
				Name:     "remindly",
				Now:      a.svc.Now(),
			})
			if err != nil {
				return err
			}
			if f, ok := w.(*os.File); ok && output != "" && output != "-" {
				if err := f.Sync(); err != nil {
					return fmt.Errorf("sync %s: %w", output, err)
				}
				appLog.Info("calendar exported", "path", output, "tasks", len(tasks))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
