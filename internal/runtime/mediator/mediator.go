// Package mediator routes messages between components that never reference
// each other. Callers open a Context, submit messages to it and read back the
// events their components emit.
package mediator

import (
	"context"
	"reflect"
	"sync"

	"github.com/drblury/nether/internal/runtime/component"
	errspkg "github.com/drblury/nether/internal/runtime/errors"
	loggingpkg "github.com/drblury/nether/internal/runtime/logging"
	"github.com/drblury/nether/internal/runtime/message"
	metricspkg "github.com/drblury/nether/internal/runtime/metrics"
	"github.com/drblury/nether/internal/runtime/stream"
)

// Mediator owns the registered components and the table of live contexts.
// Construct one per process and share it; there is no package-level instance.
type Mediator struct {
	logger  loggingpkg.ServiceLogger
	metrics *metricspkg.Metrics

	observers      []Observer
	streamCapacity int

	registrations []MiddlewareRegistration
	handler       HandlerFunc

	compMu     sync.RWMutex
	components []component.Component

	ctxMu    sync.Mutex
	contexts map[string]*Context
	idLocks  sync.Map
}

// Option customises a Mediator at construction time.
type Option func(*Mediator)

// WithMiddlewares replaces the default middleware chain. The first entry
// wraps all the others.
func WithMiddlewares(regs ...MiddlewareRegistration) Option {
	return func(m *Mediator) { m.registrations = regs }
}

// WithMetrics records dispatch metrics on the given collectors.
func WithMetrics(metrics *metricspkg.Metrics) Option {
	return func(m *Mediator) { m.metrics = metrics }
}

// WithObserver adds an observer notified of every processed message.
func WithObserver(o Observer) Option {
	return func(m *Mediator) {
		if o != nil {
			m.observers = append(m.observers, o)
		}
	}
}

// WithStreamCapacity bounds the shared stream queue of every context.
func WithStreamCapacity(capacity int) Option {
	return func(m *Mediator) { m.streamCapacity = capacity }
}

// New builds a Mediator. Without WithMiddlewares the DefaultMiddlewares chain is used.
func New(logger loggingpkg.ServiceLogger, opts ...Option) (*Mediator, error) {
	if logger == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	m := &Mediator{
		logger:         logger,
		contexts:       make(map[string]*Context),
		streamCapacity: stream.DefaultCapacity,
		registrations:  DefaultMiddlewares(),
	}
	for _, opt := range opts {
		opt(m)
	}

	handler := invokeComponent
	for i := len(m.registrations) - 1; i >= 0; i-- {
		mw, err := m.buildMiddleware(m.registrations[i])
		if err != nil {
			return nil, err
		}
		if mw != nil {
			handler = mw(handler)
		}
	}
	m.handler = handler
	return m, nil
}

func invokeComponent(ctx context.Context, task Task) error {
	return task.Component.Handle(ctx, task.Message, task.Dispatch, task.Join)
}

// Logger returns the logger handed to New.
func (m *Mediator) Logger() loggingpkg.ServiceLogger { return m.logger }

// Metrics returns the configured collectors, nil when metrics are off.
func (m *Mediator) Metrics() *metricspkg.Metrics { return m.metrics }

// Register adds c to the component set. Registering the same component twice
// is a no-op. Components are told apart by identity, so a component whose
// value cannot be compared with == is rejected with ErrComponentNotComparable.
func (m *Mediator) Register(c component.Component) error {
	if c == nil {
		return errspkg.ErrComponentRequired
	}
	if !isComparable(c) {
		return errspkg.ErrComponentNotComparable
	}
	m.compMu.Lock()
	defer m.compMu.Unlock()
	for _, existing := range m.components {
		if existing == c {
			return nil
		}
	}
	m.components = append(m.components, c)
	m.logger.Debug("Component registered", loggingpkg.LogFields{
		"component": c.Name(),
		"accepts":   c.Supports().Types(),
	})
	return nil
}

// Unregister removes c. Removing a component that was never registered
// returns ErrComponentNotRegistered.
func (m *Mediator) Unregister(c component.Component) error {
	if c == nil {
		return errspkg.ErrComponentRequired
	}
	if !isComparable(c) {
		return errspkg.ErrComponentNotRegistered
	}
	m.compMu.Lock()
	defer m.compMu.Unlock()
	for i, existing := range m.components {
		if existing == c {
			m.components = append(m.components[:i:i], m.components[i+1:]...)
			m.logger.Debug("Component unregistered", loggingpkg.LogFields{"component": c.Name()})
			return nil
		}
	}
	return errspkg.ErrComponentNotRegistered
}

// isComparable reports whether c can be compared with == without panicking.
func isComparable(c component.Component) bool {
	return reflect.ValueOf(c).Comparable()
}

// Components returns the registered components in registration order.
func (m *Mediator) Components() []component.Component {
	m.compMu.RLock()
	defer m.compMu.RUnlock()
	out := make([]component.Component, len(m.components))
	copy(out, m.components)
	return out
}

func (m *Mediator) matching(msg message.Message) []component.Component {
	m.compMu.RLock()
	defer m.compMu.RUnlock()
	var out []component.Component
	for _, c := range m.components {
		if c.Supports().Matches(msg) {
			out = append(out, c)
		}
	}
	return out
}

// Open creates a Context and registers it. The caller must Close it; Scope
// does that automatically.
func (m *Mediator) Open(_ context.Context) *Context {
	c := newContext(m)
	m.register(c)
	m.logger.Trace("Context opened", loggingpkg.LogFields{"context_id": c.id})
	return c
}

// Scope opens a Context, runs fn with it and closes it on every exit path.
// fn's error is returned unchanged; a panic in fn is re-raised after the
// context has been closed.
func (m *Mediator) Scope(ctx context.Context, fn func(*Context) error) (err error) {
	c := m.Open(ctx)
	defer func() {
		if r := recover(); r != nil {
			_ = c.Close(ctx)
			panic(r)
		}
		closeErr := c.Close(ctx)
		if err == nil {
			err = closeErr
		}
	}()
	return fn(c)
}

// Send processes msg in a throwaway context and waits for the tasks it
// spawned before returning. Emitted events are discarded.
func (m *Mediator) Send(ctx context.Context, msg message.Message) error {
	return m.Scope(ctx, func(c *Context) error {
		return c.Process(ctx, msg)
	})
}

// Stop stops every component, then forgets all components and contexts.
// Component stop errors are logged, not returned.
func (m *Mediator) Stop(ctx context.Context) {
	m.compMu.Lock()
	components := m.components
	m.components = nil
	m.compMu.Unlock()

	for _, c := range components {
		if err := c.OnStop(ctx); err != nil {
			m.logger.Error("Failed to stop component", err, loggingpkg.LogFields{"component": c.Name()})
		}
	}

	m.ctxMu.Lock()
	dropped := len(m.contexts)
	m.contexts = make(map[string]*Context)
	m.ctxMu.Unlock()

	m.logger.Info("Mediator stopped", loggingpkg.LogFields{
		"components": len(components),
		"contexts":   dropped,
	})
}

// Context returns the live context registered under id.
func (m *Mediator) Context(id string) (*Context, bool) {
	m.ctxMu.Lock()
	defer m.ctxMu.Unlock()
	c, ok := m.contexts[id]
	return c, ok
}

func (m *Mediator) idLock(id string) *sync.Mutex {
	v, _ := m.idLocks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (m *Mediator) register(c *Context) {
	lock := m.idLock(c.id)
	lock.Lock()
	defer lock.Unlock()

	m.ctxMu.Lock()
	m.contexts[c.id] = c
	m.ctxMu.Unlock()
	m.metrics.ContextOpened()
}

func (m *Mediator) unregister(c *Context) {
	lock := m.idLock(c.id)
	lock.Lock()
	defer func() {
		lock.Unlock()
		m.idLocks.Delete(c.id)
	}()

	m.ctxMu.Lock()
	if current, ok := m.contexts[c.id]; ok && current == c {
		delete(m.contexts, c.id)
	}
	m.ctxMu.Unlock()
	m.metrics.ContextClosed()
}

func (m *Mediator) observe(ctx context.Context, obs Observation) {
	for _, o := range m.observers {
		o.Observe(ctx, obs)
	}
}
