// Package message defines the values exchanged through the mediator.
//
// A message is a tagged union: Kind is the discriminant (command, query or
// event) and Type names the concrete variant. Messages are plain values that
// are passed by value and never mutated once constructed.
package message

import (
	"time"
)

// Kind discriminates the three disjoint message families.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindCommand
	KindQuery
	KindEvent
)

func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindQuery:
		return "query"
	case KindEvent:
		return "event"
	default:
		return "unknown"
	}
}

// Type names a concrete message variant, for example "server.StartServer".
type Type string

// Message is implemented by every value routed through the mediator.
// Concrete messages embed one of Command, Query, Event, SuccessEvent or
// FailureEvent and add a Type method.
type Message interface {
	Kind() Kind
	Type() Type
	Meta() Header
}

// Header carries the data shared by every message.
type Header struct {
	CreatedAt time.Time
	CreatedBy string
}

func (h Header) Meta() Header { return h }

// Option customises a Header at construction time.
type Option func(*Header)

// WithCreator records who created the message.
func WithCreator(id string) Option {
	return func(h *Header) { h.CreatedBy = id }
}

// WithTime overrides the creation timestamp.
func WithTime(t time.Time) Option {
	return func(h *Header) { h.CreatedAt = t }
}

// NewHeader stamps the current UTC time.
func NewHeader(opts ...Option) Header {
	h := Header{CreatedAt: time.Now().UTC()}
	for _, opt := range opts {
		opt(&h)
	}
	return h
}

// Command requests an effect.
type Command struct{ Header }

func (Command) Kind() Kind { return KindCommand }

// Query requests data without mutation.
type Query struct{ Header }

func (Query) Kind() Kind { return KindQuery }

// Event notifies that something occurred.
type Event struct{ Header }

func (Event) Kind() Kind { return KindEvent }

// Outcome tells whether an event reports a handler result.
type Outcome uint8

const (
	OutcomeNone Outcome = iota
	OutcomeSuccess
	OutcomeFailure
)

// SuccessEvent reports that a command was carried out.
type SuccessEvent struct{ Event }

func (SuccessEvent) Outcome() Outcome { return OutcomeSuccess }

// FailureEvent reports that a command failed and carries the original error.
type FailureEvent struct {
	Event
	Err error
}

func (FailureEvent) Outcome() Outcome { return OutcomeFailure }

func (f FailureEvent) Error() string {
	if f.Err == nil {
		return "unknown failure"
	}
	return f.Err.Error()
}

func (f FailureEvent) Unwrap() error { return f.Err }

func NewCommand(opts ...Option) Command { return Command{NewHeader(opts...)} }
func NewQuery(opts ...Option) Query     { return Query{NewHeader(opts...)} }
func NewEvent(opts ...Option) Event     { return Event{NewHeader(opts...)} }

func NewSuccess(opts ...Option) SuccessEvent {
	return SuccessEvent{Event{NewHeader(opts...)}}
}

func NewFailure(err error, opts ...Option) FailureEvent {
	return FailureEvent{Event: Event{NewHeader(opts...)}, Err: err}
}

// OutcomeOf reports the outcome carried by msg, OutcomeNone for plain messages.
func OutcomeOf(msg Message) Outcome {
	if o, ok := msg.(interface{ Outcome() Outcome }); ok {
		return o.Outcome()
	}
	return OutcomeNone
}

// ErrorOf returns the error carried by a failure event and nil for anything else.
func ErrorOf(msg Message) error {
	if OutcomeOf(msg) != OutcomeFailure {
		return nil
	}
	if u, ok := msg.(interface{ Unwrap() error }); ok {
		return u.Unwrap()
	}
	return nil
}

// StopProducerType identifies StopProducer.
const StopProducerType Type = "nether.StopProducer"

// StopProducer asks a producing component to stop emitting values.
type StopProducer struct{ Command }

func (StopProducer) Type() Type { return StopProducerType }

// NewStopProducer builds a StopProducer command.
func NewStopProducer(opts ...Option) StopProducer {
	return StopProducer{NewCommand(opts...)}
}
