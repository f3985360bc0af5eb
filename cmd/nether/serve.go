package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/drblury/nether/internal/runtime/application"
	"github.com/drblury/nether/internal/runtime/audit"
	"github.com/drblury/nether/internal/runtime/component"
	"github.com/drblury/nether/internal/runtime/config"
	"github.com/drblury/nether/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/nether/internal/runtime/logging"
	"github.com/drblury/nether/internal/runtime/mediator"
	"github.com/drblury/nether/internal/runtime/message"
	metricspkg "github.com/drblury/nether/internal/runtime/metrics"
	"github.com/drblury/nether/internal/runtime/router"
	"github.com/drblury/nether/internal/runtime/server"
	"github.com/drblury/nether/internal/runtime/transaction"
)

func serveCmd() *cobra.Command {
	var (
		flags     configFlags
		staticDir string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP front end",
		Long: `Start the HTTP front end component and register the demo views through
the mediator. Views registered after startup are served by the dynamic router.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := flags.load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), conf, staticDir)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&staticDir, "static", "", "Directory served under /static/")

	return cmd
}

func serve(ctx context.Context, conf *config.Config, staticDir string) error {
	base, err := loggingpkg.New(conf.LogLevel, conf.LogFormat, os.Stderr)
	if err != nil {
		return err
	}
	logger := loggingpkg.NewSlogServiceLogger(base)
	if conf.ServiceName != "" {
		logger = logger.With(loggingpkg.LogFields{"service": conf.ServiceName})
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := metricspkg.New(registry, "nether")
	if err != nil {
		return fmt.Errorf("create metrics: %w", err)
	}

	middlewares := []mediator.MiddlewareRegistration{
		mediator.MetricsMiddleware(),
		mediator.LogTasksMiddleware(nil),
		mediator.RecovererMiddleware(),
	}
	if conf.TracingEnabled {
		tp := newTracerProvider(logger)
		defer func() {
			if err := tp.Shutdown(context.WithoutCancel(ctx)); err != nil {
				logger.Error("Failed to shut down tracer provider", err, nil)
			}
		}()
		middlewares = append([]mediator.MiddlewareRegistration{mediator.TracerMiddleware(tp)}, middlewares...)
	}

	opts := []mediator.Option{
		mediator.WithMiddlewares(middlewares...),
		mediator.WithMetrics(metrics),
		mediator.WithStreamCapacity(conf.StreamCapacity),
	}
	if conf.AuditEnabled {
		auditLog, err := audit.New(conf.AuditTopic, logger)
		if err != nil {
			return fmt.Errorf("create audit log: %w", err)
		}
		defer auditLog.Close()
		if err := followAudit(ctx, auditLog, logger); err != nil {
			return err
		}
		opts = append(opts, mediator.WithObserver(auditLog))
	}

	m, err := mediator.New(logger, opts...)
	if err != nil {
		return err
	}

	srv, err := server.New(conf, logger, server.WithMetrics(metrics, registry))
	if err != nil {
		return err
	}

	var pool *transaction.Manager
	if conf.DatabaseURL != "" {
		pool, err = transaction.NewManager(conf, logger)
		if err != nil {
			return err
		}
		if err := pool.Initialize(ctx); err != nil {
			return err
		}
		defer pool.Close()
	}

	app, err := application.New(conf, logger, m)
	if err != nil {
		return err
	}
	if err := app.Register(srv, newGreeter(logger)); err != nil {
		return err
	}

	return app.Run(ctx, func(ctx context.Context, app *application.Application) error {
		return bootstrap(ctx, app, pool, staticDir)
	})
}

// bootstrap starts the HTTP front end and registers the demo views, all
// through messages processed in one context.
func bootstrap(ctx context.Context, app *application.Application, pool *transaction.Manager, staticDir string) error {
	conf := app.Config()
	start, err := server.NewStartServer(conf.Host, conf.Port)
	if err != nil {
		return err
	}

	commands := []message.Message{
		start,
		server.NewRegisterView("/api/greet/{name}", greetView(app.Mediator()), http.MethodGet),
	}
	if pool != nil {
		commands = append(commands, server.NewAddView(http.MethodGet, "/api/db/now", dbNowView(pool)))
	}
	if staticDir != "" {
		commands = append(commands, server.NewAddStatic("/static", staticDir, router.StaticOptions{}))
	}

	return app.Mediator().Scope(ctx, func(c *mediator.Context) error {
		for _, cmd := range commands {
			if err := c.Process(ctx, cmd); err != nil {
				return err
			}
			res, err := c.ReceiveResult(ctx)
			if err != nil {
				return err
			}
			if err := message.ErrorOf(res); err != nil {
				return fmt.Errorf("%s: %w", cmd.Type(), err)
			}
			if started, ok := res.(server.ServerStarted); ok {
				app.Logger().Info("Serving", loggingpkg.LogFields{"addr": started.Addr})
			}
		}
		return nil
	})
}

// followAudit logs every audit record at debug level until ctx ends.
func followAudit(ctx context.Context, auditLog *audit.Log, logger loggingpkg.ServiceLogger) error {
	records, err := auditLog.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe to audit log: %w", err)
	}
	go func() {
		for rec := range records {
			logger.Debug("Audit", loggingpkg.LogFields{
				"context_id":   rec.ContextID,
				"message_type": rec.Type,
				"handlers":     rec.Handlers,
			})
		}
	}()
	return nil
}

const (
	greetType        message.Type = "demo.Greet"
	greetedType      message.Type = "demo.Greeted"
	greetFailureType message.Type = "demo.GreetFailure"
)

type greet struct {
	message.Command
	Name string
}

func (greet) Type() message.Type { return greetType }

type greeted struct {
	message.SuccessEvent
	Text string
}

func (greeted) Type() message.Type { return greetedType }

type greetFailure struct{ message.FailureEvent }

func (greetFailure) Type() message.Type { return greetFailureType }

func newGreeter(logger loggingpkg.ServiceLogger) component.Component {
	return component.New("greeter", component.Accepts(greetType),
		func(ctx context.Context, msg message.Message, dispatch component.Dispatch, _ component.JoinStream) error {
			g := msg.(greet)
			if g.Name == "" {
				return dispatch(ctx, greetFailure{message.NewFailure(errors.New("name is required"), message.WithCreator("greeter"))})
			}
			return dispatch(ctx, greeted{
				SuccessEvent: message.NewSuccess(message.WithCreator("greeter")),
				Text:         "Hello, " + g.Name,
			})
		}, logger)
}

// greetView turns a request into a greet command and answers with the reply event.
func greetView(m *mediator.Mediator) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var reply message.Message
		err := m.Scope(r.Context(), func(c *mediator.Context) error {
			if err := c.Process(r.Context(), greet{Command: message.NewCommand(), Name: chi.URLParam(r, "name")}); err != nil {
				return err
			}
			res, err := c.ReceiveResult(r.Context())
			reply = res
			return err
		})
		if err == nil {
			err = message.ErrorOf(reply)
		}
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"greeting": reply.(greeted).Text})
	})
}

func dbNowView(pool *transaction.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var now string
		err := pool.Run(r.Context(), func(ctx context.Context, tx *sqlx.Tx) error {
			return tx.GetContext(ctx, &now, "SELECT CURRENT_TIMESTAMP")
		})
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"now": now})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = jsoncodec.Encode(w, v)
}
