// Package app implements application lifecycle management and component
// orchestration for the ChatDesk service.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/chatdesk/chatdesk/internal/webhook"
)

// App represents the running service and manages its components' lifecycle.
type App struct {
	logger    *slog.Logger
	scheduler *Scheduler
	webhook   *webhook.Server
}

// NewApp creates the application orchestrator. webhookServer may be nil
// when the callback listener is disabled.
func NewApp(logger *slog.Logger, scheduler *Scheduler, webhookServer *webhook.Server) *App {
	return &App{
		logger:    logger.With("component", "app_orchestrator"),
		scheduler: scheduler,
		webhook:   webhookServer,
	}
}

// Run starts all components and blocks until the context is cancelled or
// a component fails. Shutdown waits for in-flight scheduled runs.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("Starting application orchestrator...")

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("Starting scheduler...")
		if err := a.scheduler.Start(); err != nil {
			a.logger.Error("Failed to start scheduler", "error", err)
			return fmt.Errorf("failed to start scheduler: %w", err)
		}

		<-gCtx.Done()
		a.logger.Info("Shutdown signal received, stopping scheduler...")

		if err := a.scheduler.Stop(); err != nil {
			a.logger.Error("Error stopping scheduler", "error", err)
		}
		return nil
	})

	if a.webhook != nil {
		g.Go(func() error {
			if err := a.webhook.Run(gCtx); err != nil {
				a.logger.Error("Webhook server stopped with error", "error", err)
				return fmt.Errorf("webhook server failed: %w", err)
			}
			return nil
		})
	}

	a.logger.Info("Application orchestrator running. Waiting for shutdown signal or error...")
	err := g.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("Application orchestrator stopped due to error", "error", err)
		return err
	}

	a.logger.Info("Application orchestrator stopped gracefully.")
	return nil
}
