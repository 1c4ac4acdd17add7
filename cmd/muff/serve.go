package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/calvinmclean/muff/controller"
	"github.com/calvinmclean/muff/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  `Serves the positioner commands over HTTP with Prometheus metrics on /metrics.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		addr, _ := cmd.Flags().GetString("addr")

		return withController(func(ctx context.Context, c *controller.Controller, logger *slog.Logger, _ []string) error {
			return serve(ctx, addr, server.New(c, logger).Handler(), logger)
		})(cmd, nil)
	},
}

// serve runs the HTTP server until ctx is done and then shuts it down gracefully
func serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", addr)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		if err != nil {
			logger.Error("graceful shutdown did not complete", "error", err)
			return srv.Close()
		}

		err = <-serverErrors
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "address to listen on")
	rootCmd.AddCommand(serveCmd)
}
