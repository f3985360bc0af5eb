package mediator

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/drblury/nether/internal/runtime/component"
	loggingpkg "github.com/drblury/nether/internal/runtime/logging"
	"github.com/drblury/nether/internal/runtime/message"
)

type ping struct {
	message.Command
	N int
}

func (ping) Type() message.Type { return "test.Ping" }

type lookup struct{ message.Query }

func (lookup) Type() message.Type { return "test.Lookup" }

type pong struct {
	message.Event
	N int
}

func (pong) Type() message.Type { return "test.Pong" }

type oddKind struct{ message.Header }

func (oddKind) Kind() message.Kind { return message.KindUnknown }
func (oddKind) Type() message.Type { return "test.Odd" }

func newTestMediator(t *testing.T, opts ...Option) (*Mediator, *loggingpkg.Recorder) {
	t.Helper()
	rec := loggingpkg.NewRecorder()
	m, err := New(rec, opts...)
	require.NoError(t, err)
	return m, rec
}

// replier answers every ping with a pong carrying the same number.
func replier(name string) *component.Func {
	return component.New(name, component.Accepts("test.Ping"),
		func(ctx context.Context, msg message.Message, dispatch component.Dispatch, _ component.JoinStream) error {
			p := msg.(ping)
			return dispatch(ctx, pong{Event: message.NewEvent(message.WithCreator(name)), N: p.N})
		}, nil)
}

func receiveWithin(t *testing.T, c *Context, d time.Duration) message.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	msg, err := c.ReceiveResult(ctx)
	require.NoError(t, err)
	return msg
}

const levelError = slog.LevelError

func newRecorderOnly() *loggingpkg.Recorder {
	return loggingpkg.NewRecorder()
}
