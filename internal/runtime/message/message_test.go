package message

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type ping struct {
	Query
	Target string
}

func (ping) Type() Type { return "test.Ping" }

type pinged struct{ SuccessEvent }

func (pinged) Type() Type { return "test.Pinged" }

type pingFailed struct{ FailureEvent }

func (pingFailed) Type() Type { return "test.PingFailed" }

func TestKinds(t *testing.T) {
	assert.Equal(t, KindCommand, NewStopProducer().Kind())
	assert.Equal(t, KindQuery, ping{Query: NewQuery()}.Kind())
	assert.Equal(t, KindEvent, pinged{NewSuccess()}.Kind())
	assert.Equal(t, KindEvent, pingFailed{NewFailure(errors.New("x"))}.Kind())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "command", KindCommand.String())
	assert.Equal(t, "query", KindQuery.String())
	assert.Equal(t, "event", KindEvent.String())
	assert.Equal(t, "unknown", KindUnknown.String())
}

func TestHeaderOptions(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	cmd := NewCommand(WithCreator("user-1"), WithTime(at))

	assert.Equal(t, "user-1", cmd.Meta().CreatedBy)
	assert.Equal(t, at, cmd.Meta().CreatedAt)
}

func TestNewHeaderStampsTime(t *testing.T) {
	before := time.Now().UTC()
	h := NewHeader()
	assert.False(t, h.CreatedAt.Before(before))
	assert.Empty(t, h.CreatedBy)
}

func TestOutcomes(t *testing.T) {
	boom := errors.New("boom")

	assert.Equal(t, OutcomeNone, OutcomeOf(ping{Query: NewQuery()}))
	assert.Equal(t, OutcomeSuccess, OutcomeOf(pinged{NewSuccess()}))
	assert.Equal(t, OutcomeFailure, OutcomeOf(pingFailed{NewFailure(boom)}))

	assert.Nil(t, ErrorOf(pinged{NewSuccess()}))
	assert.Same(t, boom, ErrorOf(pingFailed{NewFailure(boom)}))
}

func TestFailureEventWrapsError(t *testing.T) {
	boom := errors.New("boom")
	failure := pingFailed{NewFailure(boom)}

	assert.True(t, errors.Is(failure, boom))
	assert.Equal(t, "boom", failure.Error())
	assert.Equal(t, "unknown failure", FailureEvent{}.Error())
}

func TestMessagesAreValues(t *testing.T) {
	original := ping{Query: NewQuery(), Target: "a"}
	var msg Message = original

	copied := msg.(ping)
	copied.Target = "b"

	assert.Equal(t, "a", original.Target)
	assert.Equal(t, "a", msg.(ping).Target)
}

func TestStopProducerType(t *testing.T) {
	assert.Equal(t, StopProducerType, NewStopProducer().Type())
}
