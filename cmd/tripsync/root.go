package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/five82/tripsync/internal/app"
	"github.com/five82/tripsync/internal/config"
	"github.com/five82/tripsync/internal/logging"
)

type rootOptions struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "tripsync",
		Short: "Offline-first itinerary store with deferred sync",
		Long: `tripsync keeps saved trip itineraries on this device and mirrors them to
the remote itinerary service. Changes made while the service is unreachable
are queued and replayed when it comes back.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ~/.config/tripsync/config.toml)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(
		newListCmd(opts),
		newShowCmd(opts),
		newSaveCmd(opts),
		newDeleteCmd(opts),
		newSearchCmd(opts),
		newMigrateCmd(opts),
		newSyncCmd(opts),
		newQueueCmd(opts),
		newStatusCmd(opts),
		newWatchCmd(opts),
		newShareCmd(opts),
		newPDFCmd(opts),
		newLoginCmd(opts),
		newProfileCmd(opts),
		newSettingsCmd(opts),
		newServeFakeCmd(opts),
	)
	return root
}

// loadConfig resolves the config. One-shot commands log warnings only unless
// --verbose is set; long-running ones keep the configured level.
func (o *rootOptions) loadConfig(longRunning bool) (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, err
	}
	switch {
	case o.verbose:
		cfg.Log.Level = "debug"
	case !longRunning && cfg.Log.Level != "error":
		cfg.Log.Level = "warn"
	}
	return cfg, nil
}

func (o *rootOptions) openApp(cmd *cobra.Command, longRunning bool) (*app.App, error) {
	cfg, err := o.loadConfig(longRunning)
	if err != nil {
		return nil, err
	}
	return app.Open(cmd.Context(), cfg, app.Options{})
}

func (o *rootOptions) logger(longRunning bool) (*zap.Logger, error) {
	cfg, err := o.loadConfig(longRunning)
	if err != nil {
		return nil, err
	}
	return logging.New(cfg.Log)
}
