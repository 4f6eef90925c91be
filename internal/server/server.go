// Package server runs the HTTP service until its context is cancelled.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/anime-shed/palm-oracle-go/internal/config"
	"github.com/anime-shed/palm-oracle-go/internal/container"
	"github.com/anime-shed/palm-oracle-go/internal/logger"

	"github.com/sirupsen/logrus"
)

// ShutdownTimeout bounds graceful shutdown
const ShutdownTimeout = 30 * time.Second

// Run builds the container, serves HTTP and shuts down gracefully when ctx is
// done. Readings still in flight are allowed to finish.
func Run(ctx context.Context, cfg *config.Config, opts ...container.Option) error {
	c, err := container.NewContainer(ctx, cfg, opts...)
	if err != nil {
		return fmt.Errorf("failed to initialize container: %w", err)
	}

	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()
	c.Start(bgCtx)

	server := &http.Server{
		Addr:              cfg.ServerAddress(),
		Handler:           c.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.RequestTimeout,
		WriteTimeout:      cfg.RequestTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"address":  cfg.ServerAddress(),
			"timeout":  cfg.RequestTimeout,
			"provider": cfg.Provider,
			"model":    cfg.Model,
		}).Info("Starting HTTP server")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			c.Close()
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	c.Close()

	logger.WithField("readings", c.Metrics().TotalReadings).Info("Server exited")
	return nil
}
