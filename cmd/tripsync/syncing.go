package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/five82/tripsync/internal/app"
	"github.com/five82/tripsync/internal/config"
	"github.com/five82/tripsync/internal/credentials"
	"github.com/five82/tripsync/internal/itinerary"
	"github.com/five82/tripsync/internal/prefs"
	"github.com/five82/tripsync/internal/ui"
)

const (
	probeTimeout    = 5 * time.Second
	defaultWatchLog = "~/.local/state/tripsync/watch.log"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Copy the legacy saved-itineraries list into the local store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.openApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Mirror.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrated %d, skipped %d\n", res.Migrated, res.Skipped)
			return nil
		},
	}
}

func newSyncCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay queued changes to the remote service now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.openApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Drain(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "attempted %d, applied %d, failed %d, abandoned %d, remaining %d\n",
				res.Attempted, res.Applied, res.Failed, res.Abandoned, res.Remaining)
			return nil
		},
	}
}

func newQueueCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "List changes waiting to sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.openApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			ops, err := a.Queue.Pending(cmd.Context())
			if err != nil {
				return err
			}
			printOps(cmd.OutOrStdout(), ops, "Nothing waiting to sync.")
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "abandoned",
		Short: "List changes that hit the retry limit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.openApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			ops, err := a.Queue.Abandoned(cmd.Context())
			if err != nil {
				return err
			}
			printOps(cmd.OutOrStdout(), ops, "No abandoned changes.")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "requeue <operation-id>",
		Short: "Move an abandoned change back to the sync queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Requeue(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "requeued %s\n", args[0])
			return nil
		},
	})
	return cmd
}

func printOps(w io.Writer, ops []itinerary.Operation, empty string) {
	if len(ops) == 0 {
		fmt.Fprintln(w, empty)
		return
	}
	rows := make([][]string, 0, len(ops))
	for i, op := range ops {
		target := string(op.Resource)
		if op.ResourceID != "" {
			target += "/" + op.ResourceID
		}
		rows = append(rows, []string{
			fmt.Sprint(i + 1),
			op.ID,
			string(op.Kind),
			target,
			fmt.Sprint(op.Attempts),
			op.EnqueuedAt.Local().Format("2006-01-02 15:04"),
			op.LastError,
		})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("#", "OPERATION", "KIND", "TARGET", "TRIES", "QUEUED", "LAST ERROR").
		Rows(rows...)
	fmt.Fprintln(w, t.Render())
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show connectivity, queue and sign-in status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.openApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			probeCtx, cancel := context.WithTimeout(cmd.Context(), probeTimeout)
			a.Monitor.Probe(probeCtx)
			cancel()
			a.RefreshQueue(cmd.Context())

			writeStatus(cmd.OutOrStdout(), a, time.Now())
			return nil
		},
	}
}

func writeStatus(w io.Writer, a *app.App, now time.Time) {
	snap := a.State.Snapshot()

	remote := "online"
	if snap.IsOffline() {
		remote = "offline"
		if snap.LastError != nil {
			remote += " (" + snap.LastError.Error() + ")"
		}
	}
	fmt.Fprintf(w, "Remote:    %s %s\n", a.Remote.BaseURL(), remote)
	fmt.Fprintf(w, "Breaker:   %s\n", a.Remote.BreakerState())
	fmt.Fprintf(w, "Queue:     %d pending (%d failing), %d abandoned\n",
		snap.Stats.Pending, snap.Stats.Failing, snap.Stats.Abandoned)
	fmt.Fprintf(w, "Database:  %s\n", a.Config.Storage.Path)

	creds := a.Credentials.Current()
	exp, hasExpiry := credentials.Expiry(creds.AuthToken)
	switch {
	case creds.AuthToken == "":
		fmt.Fprintln(w, "Signed in: no")
	case hasExpiry && !creds.Authenticated(now):
		fmt.Fprintln(w, "Signed in: token expired, run `tripsync login`")
	default:
		line := "yes"
		if creds.Email != "" {
			line += " as " + creds.Email
		}
		if hasExpiry {
			line += ", token expires " + exp.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "Signed in: %s\n", line)
	}
}

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var (
		theme       string
		metricsAddr string
		headless    bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run background sync with a live monitor",
		Long: `Probe the remote service, replay queued changes whenever it becomes
reachable and show the queue in a terminal monitor. With --headless only the
background sync runs and logs go to the configured destination.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig(true)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.Metrics.Addr = strings.TrimSpace(metricsAddr)
			}
			if !headless && cfg.Log.File == "" {
				// Log lines on stderr would tear the monitor.
				if cfg.Log.File, err = config.ExpandPath(defaultWatchLog); err != nil {
					return err
				}
			}

			a, err := app.Open(cmd.Context(), cfg, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			if headless {
				return a.Watch(cmd.Context())
			}

			if theme == "" {
				p, err := prefs.Load("")
				if err != nil {
					a.Logger.Warn("monitor prefs unreadable, using defaults", zap.Error(err))
				}
				theme = p.Theme
			}
			saveTheme := func(name string) {
				if err := prefs.Save("", prefs.Prefs{Theme: name}); err != nil {
					a.Logger.Warn("save monitor theme failed", zap.Error(err))
				}
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return a.Watch(gctx) })
			g.Go(func() error {
				defer cancel()
				return ui.Run(ui.Options{
					Context:   gctx,
					Store:     a.State,
					Syncer:    a,
					ThemeName: theme,
					LogPath:   cfg.Log.File,

					OnThemeChange: saveTheme,
				})
			})
			return g.Wait()
		},
	}
	f := cmd.Flags()
	f.StringVar(&theme, "theme", "", "monitor theme: "+strings.Join(ui.ThemeNames(), ", ")+" (default: last used)")
	f.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	f.BoolVar(&headless, "headless", false, "run without the monitor")
	return cmd
}
