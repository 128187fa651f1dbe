// Package app wires the configured sensors, storage and notifiers into the
// background session manager and serves it over the REST API.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/chrissnell/altiguard/internal/aggregator"
	"github.com/chrissnell/altiguard/internal/background"
	"github.com/chrissnell/altiguard/internal/controllers/restserver"
	"github.com/chrissnell/altiguard/internal/managers"
	"github.com/chrissnell/altiguard/internal/session"
	"github.com/chrissnell/altiguard/pkg/config"
)

const stopTimeout = 30 * time.Second

// Options change how the application behaves at startup.
type Options struct {
	// Autostart begins a session as soon as the API is up.
	Autostart bool
}

// App represents the main application
type App struct {
	configProvider config.ConfigProvider
	logger         *zap.SugaredLogger
	opts           Options
}

// New creates a new application instance
func New(configProvider config.ConfigProvider, logger *zap.SugaredLogger, opts Options) *App {
	return &App{
		configProvider: configProvider,
		logger:         logger,
		opts:           opts,
	}
}

// Run starts the application and blocks until shutdown
func (a *App) Run(ctx context.Context) (err error) {
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg, err := a.configProvider.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}

	// Initialize the storage manager
	storageManager, err := managers.NewStorageManager(ctx, cfg.Storage, a.logger.Named("storage"))
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, storageManager.Close())
	}()

	sensorManager, err := managers.NewSensorManager(cfg.Sensors, a.logger.Named("sensors"))
	if err != nil {
		return err
	}

	notifier, err := managers.NewNotifier(cfg.Notifiers, a.logger.Named("notify"))
	if err != nil {
		return err
	}

	factory := func() *session.Tracker {
		return session.NewTracker(session.Dependencies{
			Acceleration: sensorManager.Acceleration,
			Altitude:     sensorManager.Altitude,
			Location:     sensorManager.Location,
			Points:       storageManager.Store,
			Sessions:     storageManager.Store,
			Notifier:     notifier,
			Logger:       a.logger.Named("session"),
		}, session.Options{
			Aggregator: aggregator.Config{
				Interval:        cfg.Session.TickInterval,
				BufferSize:      cfg.Session.BufferSize,
				AllStaleTimeout: cfg.Session.AllStaleTimeout,
			},
			Danger:        cfg.Danger.Settings(),
			NotifyTimeout: cfg.Session.NotifyTimeout,
		})
	}
	guarantee := background.NewLoggingGuarantee(a.logger.Named("background"))
	manager := background.New(guarantee, factory, cfg.Session.MaxDuration, a.logger.Named("background"))

	rest, err := restserver.NewController(ctx, &wg, cfg.API, manager, storageManager.Store, storageManager.Health, a.logger.Named("restserver"))
	if err != nil {
		return err
	}
	if err := rest.StartController(); err != nil {
		return err
	}

	if a.opts.Autostart {
		id, err := manager.StartBackgroundSession(ctx)
		if err != nil {
			return fmt.Errorf("could not start session: %w", err)
		}
		a.logger.Infow("session started at launch", "session_id", id)
	}

	a.logger.Infow("application started successfully", "storage", storageManager.Backend, "api", rest.Server.Addr)

	// Set up signal handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	// Wait for shutdown signal
	select {
	case <-sigs:
		a.logger.Info("shutdown signal received, initiating graceful shutdown...")
	case <-ctx.Done():
		a.logger.Info("context cancelled, shutting down...")
	}

	// A running session is stopped so its summary is written before the store closes.
	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
	defer stopCancel()
	if serr := manager.StopBackgroundSession(stopCtx); serr != nil && !errors.Is(serr, background.ErrNoSession) {
		err = multierr.Append(err, fmt.Errorf("stopping session: %w", serr))
	}

	// Cancel context to signal all goroutines to stop
	cancel()

	a.logger.Info("waiting for all workers to terminate...")
	wg.Wait()
	a.logger.Info("shutdown complete")

	return err
}
