package mediator

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/nether/internal/runtime/component"
	errspkg "github.com/drblury/nether/internal/runtime/errors"
	"github.com/drblury/nether/internal/runtime/message"
)

type startProducing struct{ message.Command }

func (startProducing) Type() message.Type { return "test.StartProducing" }

type result struct {
	message.Event
	Value int
}

func (result) Type() message.Type { return "test.Result" }

// producer emits one result per iteration and waits for an acknowledgement
// on the shared stream before the next one.
type producer struct {
	*component.Base
	stopped atomic.Bool
}

func (p *producer) Supports() component.Capability {
	return component.Accepts("test.StartProducing", message.StopProducerType)
}

func (p *producer) Handle(ctx context.Context, msg message.Message, dispatch component.Dispatch, join component.JoinStream) error {
	switch msg.(type) {
	case message.StopProducer:
		p.stopped.Store(true)
		join().Stop()
		return nil
	case startProducing:
		p.MarkRunning()
		shared := join()
		for i := 0; ; i++ {
			if p.stopped.Load() {
				return nil
			}
			if err := dispatch(ctx, result{Event: message.NewEvent(), Value: i}); err != nil {
				return err
			}
			if _, err := shared.Get(ctx); err != nil {
				if errors.Is(err, errspkg.ErrStreamStopped) {
					return nil
				}
				return err
			}
		}
	}
	return nil
}

type consumer struct {
	*component.Base
	stopper bool
	stops   *atomic.Int32

	mu   sync.Mutex
	seen []int
}

func (c *consumer) Supports() component.Capability {
	return component.Accepts("test.Result")
}

func (c *consumer) Handle(ctx context.Context, msg message.Message, dispatch component.Dispatch, join component.JoinStream) error {
	r := msg.(result)
	c.mu.Lock()
	c.seen = append(c.seen, r.Value)
	c.mu.Unlock()

	if !c.stopper {
		return nil
	}
	if r.Value >= 5 {
		c.stops.Add(1)
		return dispatch(ctx, message.NewStopProducer(message.WithCreator(c.Name())))
	}
	return join().Put(ctx, r.Value)
}

func (c *consumer) values() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := append([]int(nil), c.seen...)
	sort.Ints(out)
	return out
}

func TestProducerConsumerStream(t *testing.T) {
	m, _ := newTestMediator(t)
	var stops atomic.Int32
	prod := &producer{Base: component.NewBase("producer", nil)}
	first := &consumer{Base: component.NewBase("first", nil), stopper: true, stops: &stops}
	second := &consumer{Base: component.NewBase("second", nil), stops: &stops}
	for _, c := range []component.Component{prod, first, second} {
		require.NoError(t, m.Register(c))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var results []int
	err := m.Scope(ctx, func(c *Context) error {
		if err := c.Process(ctx, startProducing{message.NewCommand()}); err != nil {
			return err
		}
		for i := 0; i < 6; i++ {
			msg, err := c.ReceiveResult(ctx)
			if err != nil {
				return err
			}
			results = append(results, msg.(result).Value)
		}
		return nil
	})
	require.NoError(t, err)

	want := []int{0, 1, 2, 3, 4, 5}
	assert.Equal(t, want, results)
	assert.Equal(t, want, first.values())
	assert.Equal(t, want, second.values())
	assert.Equal(t, int32(1), stops.Load())
	assert.True(t, prod.stopped.Load())
}
