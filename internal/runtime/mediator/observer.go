package mediator

import (
	"context"

	"github.com/drblury/nether/internal/runtime/message"
)

// Observation describes one message submitted to a context.
type Observation struct {
	ContextID string
	Message   message.Message
	// Handlers is the number of components the message was handed to.
	Handlers int
}

// Unrouted reports whether a command or query reached no component.
func (o Observation) Unrouted() bool {
	return o.Handlers == 0 && o.Message != nil && o.Message.Kind() != message.KindEvent
}

// Observer is notified synchronously from Context.Process. Implementations
// must not block.
type Observer interface {
	Observe(ctx context.Context, obs Observation)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, obs Observation)

func (f ObserverFunc) Observe(ctx context.Context, obs Observation) { f(ctx, obs) }
