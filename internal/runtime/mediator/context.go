package mediator

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"

	"github.com/drblury/nether/internal/runtime/component"
	errspkg "github.com/drblury/nether/internal/runtime/errors"
	"github.com/drblury/nether/internal/runtime/ids"
	loggingpkg "github.com/drblury/nether/internal/runtime/logging"
	"github.com/drblury/nether/internal/runtime/message"
	"github.com/drblury/nether/internal/runtime/stream"
)

// Context is a unit of work. It collects the events emitted while handling
// the messages submitted to it, tracks the tasks it spawned and owns the
// stream its components share.
type Context struct {
	id       string
	mediator *Mediator
	logger   loggingpkg.ServiceLogger

	mu       sync.Mutex
	results  []message.Message
	ready    chan struct{}
	tasks    map[uint64]context.CancelFunc
	nextTask uint64
	idle     chan struct{}
	closed   bool
	done     chan struct{}

	stream *stream.Stream

	closeOnce sync.Once
	closeErr  error
}

func newContext(m *Mediator) *Context {
	id := ids.New()
	idle := make(chan struct{})
	close(idle)
	return &Context{
		id:       id,
		mediator: m,
		logger:   m.logger.With(loggingpkg.LogFields{"context_id": id}),
		ready:    make(chan struct{}, 1),
		tasks:    make(map[uint64]context.CancelFunc),
		idle:     idle,
		done:     make(chan struct{}),
	}
}

// ID returns the identifier the context is registered under.
func (c *Context) ID() string { return c.id }

// Process submits msg. Events are queued for ReceiveResult and handed to
// every component that accepts them. Commands and queries start one task per
// accepting component; when none accepts them the message is logged as
// unrouted and dropped.
func (c *Context) Process(ctx context.Context, msg message.Message) error {
	if msg == nil {
		return errspkg.ErrMessageRequired
	}
	if c.isClosed() {
		return errspkg.ErrContextClosed
	}

	fields := loggingpkg.LogFields{
		"message_kind": msg.Kind().String(),
		"message_type": string(msg.Type()),
	}

	switch msg.Kind() {
	case message.KindEvent:
		c.pushResult(msg)
		targets := c.mediator.matching(msg)
		c.mediator.metrics.MessageProcessed(msg.Kind().String(), string(msg.Type()))
		c.mediator.observe(ctx, Observation{ContextID: c.id, Message: msg, Handlers: len(targets)})
		return c.spawnAll(ctx, msg, targets)

	case message.KindCommand, message.KindQuery:
		targets := c.mediator.matching(msg)
		c.mediator.metrics.MessageProcessed(msg.Kind().String(), string(msg.Type()))
		c.mediator.observe(ctx, Observation{ContextID: c.id, Message: msg, Handlers: len(targets)})
		if len(targets) == 0 {
			c.mediator.metrics.MessageUnrouted(string(msg.Type()))
			c.logger.Critical("No handler for message", nil, fields)
			return nil
		}
		return c.spawnAll(ctx, msg, targets)

	default:
		c.logger.Error("Unsupported message kind", nil, fields)
		return nil
	}
}

func (c *Context) spawnAll(ctx context.Context, msg message.Message, targets []component.Component) error {
	for _, target := range targets {
		if err := c.spawn(ctx, msg, target); err != nil {
			return err
		}
	}
	return nil
}

func (c *Context) spawn(ctx context.Context, msg message.Message, target component.Component) error {
	// Tasks outlive the Process call; only Close cancels them.
	taskCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		return errspkg.ErrContextClosed
	}
	id := c.nextTask
	c.nextTask++
	if len(c.tasks) == 0 {
		c.idle = make(chan struct{})
	}
	c.tasks[id] = cancel
	c.mu.Unlock()

	go c.run(taskCtx, id, Task{
		ContextID: c.id,
		Component: target,
		Message:   msg,
		Dispatch:  c.Process,
		Join:      c.JoinStream,
	})
	return nil
}

func (c *Context) run(ctx context.Context, id uint64, task Task) {
	fields := loggingpkg.LogFields{
		"component":    task.Component.Name(),
		"message_type": string(task.Message.Type()),
	}
	defer c.finishTask(id)
	defer func() {
		if r := recover(); r != nil {
			c.logger.Critical("Component panicked while handling message",
				&errspkg.PanicError{Value: r, Stack: debug.Stack()}, fields)
		}
	}()

	err := c.mediator.handler(ctx, task)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		c.logger.Debug("Task cancelled", fields)
	default:
		c.logger.Critical("Component failed to handle message", err, fields)
	}
}

func (c *Context) finishTask(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cancel, ok := c.tasks[id]
	if !ok {
		return
	}
	cancel()
	delete(c.tasks, id)
	if len(c.tasks) == 0 {
		close(c.idle)
	}
}

// Pending returns the number of tasks still running.
func (c *Context) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tasks)
}

func (c *Context) pushResult(msg message.Message) {
	c.mu.Lock()
	c.results = append(c.results, msg)
	c.mu.Unlock()
	c.signal()
}

func (c *Context) signal() {
	select {
	case c.ready <- struct{}{}:
	default:
	}
}

// ReceiveResult returns the oldest queued event, waiting until one arrives
// or ctx is done. Concurrent callers compete for events. Once the context is
// closed and no events are left it returns ErrContextClosed.
func (c *Context) ReceiveResult(ctx context.Context) (message.Message, error) {
	for {
		c.mu.Lock()
		if len(c.results) > 0 {
			msg := c.results[0]
			c.results[0] = nil
			c.results = c.results[1:]
			more := len(c.results) > 0
			c.mu.Unlock()
			if more {
				c.signal()
			}
			return msg, nil
		}
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return nil, errspkg.ErrContextClosed
		}

		select {
		case <-c.ready:
		case <-c.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// JoinStream returns the stream shared by everything running in this
// context. Every call returns the same stream.
func (c *Context) JoinStream() *stream.Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		c.stream = stream.New(c.mediator.streamCapacity)
	}
	return c.stream
}

// Close waits until every spawned task has finished, including tasks spawned
// while waiting, then cancels whatever is left and unregisters the context.
// There is no built-in deadline: a task that never returns blocks Close
// unless ctx ends first, in which case the remaining tasks are cancelled and
// ctx's error is returned. Close is idempotent.
func (c *Context) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.closeErr = c.drain(ctx)

		c.mu.Lock()
		c.closed = true
		stragglers := make([]context.CancelFunc, 0, len(c.tasks))
		for _, cancel := range c.tasks {
			stragglers = append(stragglers, cancel)
		}
		shared := c.stream
		c.mu.Unlock()

		if len(stragglers) > 0 {
			c.logger.Warn("Cancelling pending tasks", loggingpkg.LogFields{"pending": len(stragglers)})
		}
		for _, cancel := range stragglers {
			cancel()
		}
		if shared != nil {
			shared.Stop()
		}

		c.mediator.unregister(c)
		close(c.done)
		c.logger.Trace("Context closed", nil)
	})
	return c.closeErr
}

func (c *Context) drain(ctx context.Context) error {
	for {
		c.mu.Lock()
		if len(c.tasks) == 0 {
			c.mu.Unlock()
			return nil
		}
		idle := c.idle
		c.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Context) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
