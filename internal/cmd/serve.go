package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	charmlog "github.com/charmbracelet/log/v2"
	"github.com/spf13/cobra"

	"github.com/devpilot-ai/devpilot/internal/server"
)

var serverHost string

func init() {
	serveCmd.Flags().StringVarP(&serverHost, "host", "H", server.DefaultHost, "Server host (TCP or Unix socket)")
}

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Start the devpilot HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		hostURL, err := server.ParseHostURL(serverHost)
		if err != nil {
			return fmt.Errorf("invalid server host: %v", err)
		}

		a, err := setupApp(cmd)
		if err != nil {
			return err
		}
		defer a.Shutdown()

		logger := charmlog.New(os.Stderr)
		logger.SetReportTimestamp(true)
		if a.Config().Options.Debug {
			logger.SetLevel(charmlog.DebugLevel)
		}
		console := slog.New(logger)

		srv := server.NewServer(a, hostURL.Scheme, hostURL.Host)
		srv.SetLogger(console)
		console.Info("Starting devpilot server...", "addr", serverHost, "engines", len(a.Factory.Engines()))

		errch := make(chan error, 1)
		sigch := make(chan os.Signal, 1)
		signal.Notify(sigch, addSignals([]os.Signal{os.Interrupt})...)
		defer signal.Stop(sigch)

		go func() {
			errch <- srv.ListenAndServe()
		}()

		select {
		case <-sigch:
			console.Info("Received interrupt signal...")
		case <-cmd.Context().Done():
			console.Info("Context cancelled...")
		case err = <-errch:
			if err != nil && !errors.Is(err, server.ErrServerClosed) {
				_ = srv.Close()
				console.Error("Server error", "error", err)
				return fmt.Errorf("server error: %v", err)
			}
		}

		if errors.Is(err, server.ErrServerClosed) {
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		console.Info("Shutting down...")

		// Running turns end first so open event streams see their completion.
		a.Shutdown()
		if err := srv.Shutdown(ctx); err != nil {
			console.Error("Failed to shutdown server", "error", err)
			return fmt.Errorf("failed to shutdown server: %v", err)
		}

		return nil
	},
}
