package mediator

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/nether/internal/runtime/component"
	errspkg "github.com/drblury/nether/internal/runtime/errors"
	loggingpkg "github.com/drblury/nether/internal/runtime/logging"
	"github.com/drblury/nether/internal/runtime/message"
)

// Task is one component handling one message inside a context.
type Task struct {
	ContextID string
	Component component.Component
	Message   message.Message
	Dispatch  component.Dispatch
	Join      component.JoinStream
}

// HandlerFunc runs a task.
type HandlerFunc func(ctx context.Context, task Task) error

// HandlerMiddleware wraps a HandlerFunc.
type HandlerMiddleware func(HandlerFunc) HandlerFunc

// MiddlewareBuilder constructs a handler middleware for the given mediator.
// Returning a nil middleware and nil error skips the registration.
type MiddlewareBuilder func(*Mediator) (HandlerMiddleware, error)

// MiddlewareRegistration captures how a middleware is added to the dispatch chain.
type MiddlewareRegistration struct {
	Name       string
	Middleware HandlerMiddleware
	Builder    MiddlewareBuilder
}

// DefaultMiddlewares returns the chain used when New gets no WithMiddlewares option.
func DefaultMiddlewares() []MiddlewareRegistration {
	return []MiddlewareRegistration{
		TracerMiddleware(nil),
		MetricsMiddleware(),
		LogTasksMiddleware(nil),
		RecovererMiddleware(),
	}
}

func (m *Mediator) buildMiddleware(cfg MiddlewareRegistration) (HandlerMiddleware, error) {
	switch {
	case cfg.Middleware != nil:
		return cfg.Middleware, nil
	case cfg.Builder != nil:
		return cfg.Builder(m)
	default:
		return nil, errors.New("middleware registration requires Middleware or Builder")
	}
}

// RecovererMiddleware turns panics into *errors.PanicError so outer
// middlewares see them as ordinary failures.
func RecovererMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name:       "recoverer",
		Middleware: recoverer,
	}
}

func recoverer(h HandlerFunc) HandlerFunc {
	return func(ctx context.Context, task Task) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = &errspkg.PanicError{Value: r, Stack: debug.Stack()}
			}
		}()
		return h(ctx, task)
	}
}

// TracerMiddleware wraps each task in an OpenTelemetry span. A nil provider
// uses the global one.
func TracerMiddleware(tp trace.TracerProvider) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "tracer",
		Builder: func(*Mediator) (HandlerMiddleware, error) {
			provider := tp
			if provider == nil {
				provider = otel.GetTracerProvider()
			}
			return tracerMiddleware(provider.Tracer("github.com/drblury/nether/mediator")), nil
		},
	}
}

func tracerMiddleware(tracer trace.Tracer) HandlerMiddleware {
	return func(h HandlerFunc) HandlerFunc {
		return func(ctx context.Context, task Task) error {
			ctx, span := tracer.Start(ctx, "HandleMessage")
			defer span.End()

			span.SetAttributes(
				attribute.String("nether.context_id", task.ContextID),
				attribute.String("nether.component", task.Component.Name()),
				attribute.String("nether.message.kind", task.Message.Kind().String()),
				attribute.String("nether.message.type", string(task.Message.Type())),
			)
			err := h(ctx, task)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			return err
		}
	}
}

// MetricsMiddleware records handler runs, failures and durations. It is
// skipped when the mediator has no metrics.
func MetricsMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "metrics",
		Builder: func(m *Mediator) (HandlerMiddleware, error) {
			if m.metrics == nil {
				return nil, nil
			}
			metrics := m.metrics
			return func(h HandlerFunc) HandlerFunc {
				return func(ctx context.Context, task Task) error {
					start := time.Now()
					err := h(ctx, task)
					metrics.HandlerFinished(task.Component.Name(), string(task.Message.Type()), time.Since(start), err)
					return err
				}
			}, nil
		},
	}
}

// LogTasksMiddleware logs the start and end of every task at TRACE level.
// A nil logger uses the mediator's.
func LogTasksMiddleware(logger loggingpkg.ServiceLogger) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "log_tasks",
		Builder: func(m *Mediator) (HandlerMiddleware, error) {
			l := logger
			if l == nil {
				l = m.logger
			}
			if l == nil {
				return nil, errspkg.ErrLoggerRequired
			}
			return func(h HandlerFunc) HandlerFunc {
				return func(ctx context.Context, task Task) error {
					if !l.Enabled(loggingpkg.LevelTrace) {
						return h(ctx, task)
					}
					fields := loggingpkg.LogFields{
						"context_id":   task.ContextID,
						"component":    task.Component.Name(),
						"message_type": string(task.Message.Type()),
					}
					start := time.Now()
					l.Trace("Task started", fields)
					err := h(ctx, task)
					fields["duration"] = time.Since(start).String()
					fields["failed"] = err != nil
					l.Trace("Task finished", fields)
					return err
				}
			}, nil
		},
	}
}
