package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/five82/tripsync/internal/fakeremote"
	"github.com/five82/tripsync/internal/itinerary"
)

const shutdownTimeout = 5 * time.Second

func newServeFakeCmd(opts *rootOptions) *cobra.Command {
	var (
		addr  string
		token string
		seed  bool
	)
	cmd := &cobra.Command{
		Use:   "serve-fake",
		Short: "Run an in-memory itinerary service for local testing",
		Long: `Serve the remote itinerary API from memory. Point remote.base_url at
http://<addr>/api to try tripsync without a real backend.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := opts.logger(true)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			srv := fakeremote.New(fakeremote.Options{Token: token, Logger: logger})
			if seed {
				srv.Seed(itinerary.DefaultSeed()...)
			}

			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", addr, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "serving fake itinerary API on http://%s/api\n", ln.Addr())
			return serveUntilDone(cmd.Context(), ln, srv.Handler(), logger)
		},
	}
	f := cmd.Flags()
	f.StringVar(&addr, "addr", "127.0.0.1:8787", "listen address")
	f.StringVar(&token, "token", "", "require this bearer token")
	f.BoolVar(&seed, "seed", false, "start with the sample itineraries")
	return cmd
}

func serveUntilDone(ctx context.Context, ln net.Listener, h http.Handler, logger *zap.Logger) error {
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("shutting down fake remote")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown failed", zap.Error(err))
		}
		<-errCh
		return nil
	}
}
