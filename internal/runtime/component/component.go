// Package component defines the handler units registered with the mediator:
// what they accept, how they start and stop, and the single Handle entry point.
package component

import (
	"context"
	"sync/atomic"

	loggingpkg "github.com/drblury/nether/internal/runtime/logging"
	"github.com/drblury/nether/internal/runtime/message"
	"github.com/drblury/nether/internal/runtime/stream"
)

// State is the lifecycle position of a component.
type State int32

const (
	StateCreated State = iota
	StateStarted
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarted:
		return "started"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Active reports whether the component is between start and stop.
func (s State) Active() bool {
	return s == StateStarted || s == StateRunning
}

// Dispatch sends a follow-up message into the context that invoked Handle.
type Dispatch func(ctx context.Context, msg message.Message) error

// JoinStream returns the stream shared by every participant of the invoking context.
type JoinStream func() *stream.Stream

// Component handles the messages its capability accepts.
//
// Handle runs on its own goroutine per message. It should return once the
// message is dealt with, or watch ctx and the joined stream's Done channel
// when it loops. A returned error or a panic is logged by the mediator and
// does not reach the caller or sibling components.
type Component interface {
	Name() string
	Supports() Capability
	State() State
	OnStart(ctx context.Context) error
	OnStop(ctx context.Context) error
	Handle(ctx context.Context, msg message.Message, dispatch Dispatch, join JoinStream) error
}

// Base records lifecycle transitions and carries a name and logger.
// Embed *Base and add Supports and Handle to build a component.
type Base struct {
	name   string
	logger loggingpkg.ServiceLogger
	state  atomic.Int32
}

// NewBase returns a Base in StateCreated. A nil logger discards output.
func NewBase(name string, logger loggingpkg.ServiceLogger) *Base {
	if logger == nil {
		logger = loggingpkg.Discard()
	}
	return &Base{name: name, logger: logger.With(loggingpkg.LogFields{"component": name})}
}

func (b *Base) Name() string { return b.name }

func (b *Base) Logger() loggingpkg.ServiceLogger { return b.logger }

func (b *Base) State() State { return State(b.state.Load()) }

// OnStart moves the component to StateStarted.
func (b *Base) OnStart(context.Context) error {
	b.setState(StateStarted)
	return nil
}

// OnStop moves the component to StateStopped.
func (b *Base) OnStop(context.Context) error {
	b.setState(StateStopped)
	return nil
}

// MarkRunning records that the component is actively working.
func (b *Base) MarkRunning() {
	b.setState(StateRunning)
}

func (b *Base) setState(s State) {
	prev := State(b.state.Swap(int32(s)))
	if prev != s {
		b.logger.Debug("Component state changed", loggingpkg.LogFields{
			"from": prev.String(),
			"to":   s.String(),
		})
	}
}

// HandleFunc is the function form of Component.Handle.
type HandleFunc func(ctx context.Context, msg message.Message, dispatch Dispatch, join JoinStream) error

// Func is a Component built from a name, a capability and a function.
type Func struct {
	*Base
	supports Capability
	handle   HandleFunc
}

// New builds a Func component.
func New(name string, supports Capability, handle HandleFunc, logger loggingpkg.ServiceLogger) *Func {
	return &Func{Base: NewBase(name, logger), supports: supports, handle: handle}
}

func (f *Func) Supports() Capability { return f.supports }

func (f *Func) Handle(ctx context.Context, msg message.Message, dispatch Dispatch, join JoinStream) error {
	if f.handle == nil {
		return nil
	}
	return f.handle(ctx, msg, dispatch, join)
}
