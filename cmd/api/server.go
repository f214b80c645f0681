// cmd/api/server.go
// This file runs the HTTP server alongside the document store manager and
// shuts both down when an OS signal is received.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// shutdownTimeout is how long in-flight requests get once a signal arrives.
const shutdownTimeout = 20 * time.Second

// serve starts the store manager and the HTTP server, then blocks until
// SIGINT or SIGTERM. Routes answer 503 until the manager first connects.
// The server drains before the manager is stopped, so requests finishing
// during shutdown still reach the store.
func (app *applicationDependencies) serve() error {
	stopStore := app.startStore()
	defer stopStore()

	apiServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", app.config.port),
		Handler:      app.routes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		ErrorLog:     slog.NewLogLogger(app.logger.Handler(), slog.LevelError),
	}

	shutdownErr := make(chan error, 1)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		s := <-quit
		app.logger.Info("shutting down server", "signal", s.String(), "store", app.store.State().String())

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		shutdownErr <- apiServer.Shutdown(ctx)
	}()

	app.logger.Info("starting server", "address", apiServer.Addr, "environment", app.config.environment)

	err := apiServer.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	if err := <-shutdownErr; err != nil {
		return err
	}

	app.logger.Info("server stopped", "address", apiServer.Addr)
	return nil
}

// startStore runs the manager's connect and health check loop in the
// background. The returned function cancels the loop and waits for it to
// close the store.
func (app *applicationDependencies) startStore() (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		if err := app.store.Run(ctx); err != nil {
			app.logger.Error("document store manager stopped", "error", err)
		}
	}()

	return func() {
		cancel()
		<-done
		app.logger.Info("document store closed")
	}
}
