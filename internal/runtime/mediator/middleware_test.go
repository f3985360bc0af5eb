package mediator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/drblury/nether/internal/runtime/component"
	loggingpkg "github.com/drblury/nether/internal/runtime/logging"
	"github.com/drblury/nether/internal/runtime/message"
	metricspkg "github.com/drblury/nether/internal/runtime/metrics"
)

func failing(name string) *component.Func {
	return component.New(name, component.Accepts("test.Ping"),
		func(context.Context, message.Message, component.Dispatch, component.JoinStream) error {
			return errors.New("nope")
		}, nil)
}

func TestMiddlewareOrder(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	record := func(name string) MiddlewareRegistration {
		return MiddlewareRegistration{
			Name: name,
			Middleware: func(h HandlerFunc) HandlerFunc {
				return func(ctx context.Context, task Task) error {
					mu.Lock()
					order = append(order, name)
					mu.Unlock()
					return h(ctx, task)
				}
			},
		}
	}
	m, _ := newTestMediator(t, WithMiddlewares(record("outer"), record("inner")))
	require.NoError(t, m.Register(replier("a")))

	require.NoError(t, m.Send(context.Background(), ping{Command: message.NewCommand()}))
	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestTracerMiddlewareRecordsSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	m, _ := newTestMediator(t, WithMiddlewares(TracerMiddleware(tp), RecovererMiddleware()))
	require.NoError(t, m.Register(replier("ok")))
	require.NoError(t, m.Register(failing("bad")))

	require.NoError(t, m.Send(context.Background(), ping{Command: message.NewCommand()}))

	spans := sr.Ended()
	require.Len(t, spans, 2)
	byComponent := map[string]sdktrace.ReadOnlySpan{}
	for _, s := range spans {
		assert.Equal(t, "HandleMessage", s.Name())
		for _, attr := range s.Attributes() {
			if attr.Key == attribute.Key("nether.component") {
				byComponent[attr.Value.AsString()] = s
			}
		}
	}
	require.Contains(t, byComponent, "ok")
	require.Contains(t, byComponent, "bad")
	assert.Equal(t, codes.Unset, byComponent["ok"].Status().Code)
	assert.Equal(t, codes.Error, byComponent["bad"].Status().Code)
}

func TestMetricsMiddleware(t *testing.T) {
	metrics, err := metricspkg.New(prometheus.NewRegistry(), "test")
	require.NoError(t, err)
	m, _ := newTestMediator(t, WithMetrics(metrics))
	require.NoError(t, m.Register(replier("ok")))
	require.NoError(t, m.Register(failing("bad")))

	require.NoError(t, m.Send(context.Background(), ping{Command: message.NewCommand()}))
	require.NoError(t, m.Send(context.Background(), lookup{message.NewQuery()}))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.HandlerRuns.WithLabelValues("ok", "test.Ping")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.HandlerFailures.WithLabelValues("bad", "test.Ping")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.HandlerFailures.WithLabelValues("ok", "test.Ping")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.MessagesUnrouted.WithLabelValues("test.Lookup")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.ContextsOpen))
}

func TestMetricsMiddlewareSkippedWithoutMetrics(t *testing.T) {
	m, _ := newTestMediator(t, WithMiddlewares(MetricsMiddleware()))
	require.NoError(t, m.Register(replier("ok")))
	require.NoError(t, m.Send(context.Background(), ping{Command: message.NewCommand()}))
}

func TestTaskHooks(t *testing.T) {
	var (
		mu      sync.Mutex
		started []string
		done    []string
		failed  []string
	)
	hooks := TaskHooks{
		OnTaskStart: func(info TaskInfo) {
			mu.Lock()
			started = append(started, info.Component)
			mu.Unlock()
		},
		OnTaskDone: func(info TaskInfo) {
			mu.Lock()
			done = append(done, info.Component)
			mu.Unlock()
		},
	}.Merge(TaskHooks{
		OnTaskError: func(info TaskInfo, err error) {
			mu.Lock()
			failed = append(failed, info.Component+": "+err.Error())
			mu.Unlock()
		},
	})

	m, _ := newTestMediator(t, WithMiddlewares(TaskHooksMiddleware(hooks)))
	require.NoError(t, m.Register(replier("ok")))
	require.NoError(t, m.Register(failing("bad")))
	require.NoError(t, m.Send(context.Background(), ping{Command: message.NewCommand()}))

	assert.ElementsMatch(t, []string{"ok", "bad"}, started)
	assert.Equal(t, []string{"ok"}, done)
	assert.Equal(t, []string{"bad: nope"}, failed)
}

func TestTaskHooksMergeKeepsBoth(t *testing.T) {
	var calls []string
	merged := TaskHooks{OnTaskStart: func(TaskInfo) { calls = append(calls, "a") }}.
		Merge(TaskHooks{OnTaskStart: func(TaskInfo) { calls = append(calls, "b") }})
	merged.OnTaskStart(TaskInfo{})
	assert.Equal(t, []string{"a", "b"}, calls)
	assert.Nil(t, TaskHooks{}.Merge(TaskHooks{}).OnTaskDone)
}

func TestLogTasksMiddleware(t *testing.T) {
	m, rec := newTestMediator(t, WithMiddlewares(LogTasksMiddleware(nil)))
	require.NoError(t, m.Register(replier("ok")))
	require.NoError(t, m.Send(context.Background(), ping{Command: message.NewCommand()}))

	assert.Len(t, rec.Find(loggingpkg.LevelTrace, "Task started"), 1)
	finished := rec.Find(loggingpkg.LevelTrace, "Task finished")
	require.Len(t, finished, 1)
	assert.Equal(t, false, finished[0].Fields["failed"])
}

func TestObserverSeesEveryProcessedMessage(t *testing.T) {
	var (
		mu  sync.Mutex
		obs []Observation
	)
	m, _ := newTestMediator(t, WithObserver(ObserverFunc(func(_ context.Context, o Observation) {
		mu.Lock()
		obs = append(obs, o)
		mu.Unlock()
	})))
	require.NoError(t, m.Register(replier("a")))

	require.NoError(t, m.Send(context.Background(), ping{Command: message.NewCommand()}))
	require.NoError(t, m.Send(context.Background(), lookup{message.NewQuery()}))

	require.Len(t, obs, 3)
	kinds := map[message.Type]Observation{}
	for _, o := range obs {
		kinds[o.Message.Type()] = o
	}
	assert.Equal(t, 1, kinds["test.Ping"].Handlers)
	assert.False(t, kinds["test.Ping"].Unrouted())
	assert.Equal(t, 0, kinds["test.Pong"].Handlers)
	assert.False(t, kinds["test.Pong"].Unrouted())
	assert.True(t, kinds["test.Lookup"].Unrouted())
}
