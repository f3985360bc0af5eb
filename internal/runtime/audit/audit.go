// Package audit publishes a record of every message a mediator processes on
// an in-process watermill channel. Subscribers read them back as Records.
package audit

import (
	"context"
	"time"

	wmmessage "github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	errspkg "github.com/drblury/nether/internal/runtime/errors"
	"github.com/drblury/nether/internal/runtime/ids"
	"github.com/drblury/nether/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/nether/internal/runtime/logging"
	"github.com/drblury/nether/internal/runtime/mediator"
	"github.com/drblury/nether/internal/runtime/message"
)

const (
	metadataContextID   = "nether_context_id"
	metadataMessageType = "nether_message_type"
)

// Record describes one processed message. Payloads are not recorded.
type Record struct {
	ID         string    `json:"id"`
	ContextID  string    `json:"context_id"`
	Kind       string    `json:"kind"`
	Type       string    `json:"type"`
	CreatedBy  string    `json:"created_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ObservedAt time.Time `json:"observed_at"`
	Handlers   int       `json:"handlers"`
	Unrouted   bool      `json:"unrouted,omitempty"`
	Failure    string    `json:"failure,omitempty"`
}

// NewRecord builds the record for an observation.
func NewRecord(obs mediator.Observation) Record {
	meta := obs.Message.Meta()
	rec := Record{
		ID:         ids.New(),
		ContextID:  obs.ContextID,
		Kind:       obs.Message.Kind().String(),
		Type:       string(obs.Message.Type()),
		CreatedBy:  meta.CreatedBy,
		CreatedAt:  meta.CreatedAt,
		ObservedAt: time.Now().UTC(),
		Handlers:   obs.Handlers,
		Unrouted:   obs.Unrouted(),
	}
	if err := message.ErrorOf(obs.Message); err != nil {
		rec.Failure = err.Error()
	}
	return rec
}

// Log is a mediator.Observer that publishes Records to a topic.
type Log struct {
	topic      string
	publisher  wmmessage.Publisher
	subscriber wmmessage.Subscriber
	logger     loggingpkg.ServiceLogger
	closers    []func() error
}

// New creates a Log backed by its own gochannel pub/sub.
func New(topic string, logger loggingpkg.ServiceLogger) (*Log, error) {
	if logger == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	pubSub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 256,
	}, loggingpkg.NewWatermillAdapter(logger))

	l, err := NewWithPubSub(topic, pubSub, pubSub, logger)
	if err != nil {
		return nil, err
	}
	l.closers = append(l.closers, pubSub.Close)
	return l, nil
}

// NewWithPubSub creates a Log on an existing publisher and subscriber. The
// subscriber may be nil when records are only written.
func NewWithPubSub(topic string, pub wmmessage.Publisher, sub wmmessage.Subscriber, logger loggingpkg.ServiceLogger) (*Log, error) {
	if topic == "" {
		return nil, errspkg.ErrTopicRequired
	}
	if pub == nil {
		return nil, errspkg.ErrPublisherRequired
	}
	if logger == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	return &Log{
		topic:      topic,
		publisher:  pub,
		subscriber: sub,
		logger:     logger.With(loggingpkg.LogFields{"audit_topic": topic}),
	}, nil
}

// Topic returns the topic records are published to.
func (l *Log) Topic() string { return l.topic }

// Observe publishes a record for obs. Failures are logged and never reach
// the processing context.
func (l *Log) Observe(ctx context.Context, obs mediator.Observation) {
	if obs.Message == nil {
		return
	}
	rec := NewRecord(obs)
	payload, err := jsoncodec.Marshal(rec)
	if err != nil {
		l.logger.Error("Failed to encode audit record", err, loggingpkg.LogFields{"message_type": rec.Type})
		return
	}

	msg := wmmessage.NewMessage(rec.ID, payload)
	msg.Metadata.Set(metadataContextID, rec.ContextID)
	msg.Metadata.Set(metadataMessageType, rec.Type)
	msg.SetContext(context.WithoutCancel(ctx))

	if err := l.publisher.Publish(l.topic, msg); err != nil {
		l.logger.Error("Failed to publish audit record", err, loggingpkg.LogFields{"message_type": rec.Type})
	}
}

// Subscribe streams decoded records until ctx is done. Undecodable messages
// are logged, acked and skipped.
func (l *Log) Subscribe(ctx context.Context) (<-chan Record, error) {
	if l.subscriber == nil {
		return nil, errspkg.ErrPublisherRequired
	}
	messages, err := l.subscriber.Subscribe(ctx, l.topic)
	if err != nil {
		return nil, err
	}

	out := make(chan Record)
	go func() {
		defer close(out)
		for msg := range messages {
			var rec Record
			if err := jsoncodec.Unmarshal(msg.Payload, &rec); err != nil {
				l.logger.Warn("Skipping undecodable audit record", loggingpkg.LogFields{
					"uuid":  msg.UUID,
					"error": err.Error(),
				})
				msg.Ack()
				continue
			}
			select {
			case out <- rec:
				msg.Ack()
			case <-ctx.Done():
				msg.Nack()
				return
			}
		}
	}()
	return out, nil
}

// Close releases the pub/sub created by New.
func (l *Log) Close() error {
	var firstErr error
	for _, closeFn := range l.closers {
		if err := closeFn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.closers = nil
	return firstErr
}

var _ mediator.Observer = (*Log)(nil)
