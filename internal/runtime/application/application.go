// Package application runs a process built from components: it starts them,
// runs the caller's main function, keeps the process alive while components
// are active and shuts everything down on a signal.
package application

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/drblury/nether/internal/runtime/component"
	"github.com/drblury/nether/internal/runtime/config"
	errspkg "github.com/drblury/nether/internal/runtime/errors"
	loggingpkg "github.com/drblury/nether/internal/runtime/logging"
	"github.com/drblury/nether/internal/runtime/mediator"
)

// MainFunc is the application body. It typically opens a context on the
// mediator and sends the commands that bring the service up.
type MainFunc func(ctx context.Context, app *Application) error

// Application ties a configuration, a logger and a mediator together.
type Application struct {
	conf     *config.Config
	logger   loggingpkg.ServiceLogger
	mediator *mediator.Mediator

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates an Application.
func New(conf *config.Config, logger loggingpkg.ServiceLogger, m *mediator.Mediator) (*Application, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if logger == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if m == nil {
		return nil, errspkg.ErrMediatorRequired
	}
	return &Application{
		conf:     conf,
		logger:   logger,
		mediator: m,
		stopCh:   make(chan struct{}),
	}, nil
}

func (a *Application) Config() *config.Config            { return a.conf }
func (a *Application) Logger() loggingpkg.ServiceLogger  { return a.logger }
func (a *Application) Mediator() *mediator.Mediator      { return a.mediator }
func (a *Application) Components() []component.Component { return a.mediator.Components() }

// Register adds components to the mediator.
func (a *Application) Register(components ...component.Component) error {
	for _, c := range components {
		if err := a.mediator.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Unregister removes components from the mediator.
func (a *Application) Unregister(components ...component.Component) error {
	for _, c := range components {
		if err := a.mediator.Unregister(c); err != nil {
			return err
		}
	}
	return nil
}

// Stop asks Run to shut down. Safe to call more than once and from any goroutine.
func (a *Application) Stop() {
	a.stopOnce.Do(func() {
		close(a.stopCh)
		a.logger.Info("Shutdown requested", nil)
	})
}

// Run starts every registered component, runs main and then waits until
// SIGINT or SIGTERM arrives, Stop is called, ctx ends or no component is
// active any more. It always shuts down before returning main's error.
func (a *Application) Run(ctx context.Context, main MainFunc) error {
	ctx, stopSignals := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	started := a.startComponents(ctx)

	var mainErr error
	if main != nil {
		if mainErr = main(ctx, a); mainErr != nil {
			a.logger.Error("Application error", mainErr, nil)
		}
	}
	if mainErr == nil {
		a.wait(ctx)
	}

	a.shutdown(context.WithoutCancel(ctx), started)
	a.logger.Info("Application finished", nil)
	return mainErr
}

func (a *Application) startComponents(ctx context.Context) []component.Component {
	components := a.mediator.Components()
	for _, c := range components {
		if err := c.OnStart(ctx); err != nil {
			a.logger.Error("Error starting component", err, loggingpkg.LogFields{"component": c.Name()})
			continue
		}
		a.logger.Info("Component started", loggingpkg.LogFields{"component": c.Name()})
	}
	return components
}

func (a *Application) wait(ctx context.Context) {
	interval := a.conf.PollInterval
	if interval <= 0 {
		interval = config.DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if !a.anyActive() {
			a.logger.Info("No active components left", nil)
			return
		}
		select {
		case <-ctx.Done():
			a.logger.Info("Shutdown signal received", loggingpkg.LogFields{"reason": context.Cause(ctx).Error()})
			return
		case <-a.stopCh:
			return
		case <-ticker.C:
		}
	}
}

func (a *Application) anyActive() bool {
	for _, c := range a.mediator.Components() {
		if c.State().Active() {
			return true
		}
	}
	return false
}

// shutdown stops the mediator, then any component that was started but is
// no longer registered and is still active.
func (a *Application) shutdown(ctx context.Context, started []component.Component) {
	a.mediator.Stop(ctx)
	for _, c := range started {
		if !c.State().Active() {
			continue
		}
		if err := c.OnStop(ctx); err != nil {
			a.logger.Error("Error stopping component", err, loggingpkg.LogFields{"component": c.Name()})
		}
	}
}
