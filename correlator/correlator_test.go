package correlator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndCompleteDeliversOutcome(t *testing.T) {
	c := New(nil)
	id := NewQueryID(EngineDHT)
	sink := make(chan Outcome, 1)

	require.NoError(t, c.Register(id, sink))
	c.Complete(id, Outcome{Payload: "closest-peers"})

	got := <-sink
	assert.Equal(t, "closest-peers", got.Payload)
	assert.Equal(t, 0, c.Len())
}

func TestRegisterDuplicateFails(t *testing.T) {
	c := New(nil)
	id := NewQueryID(EngineDirect)
	sink := make(chan Outcome, 1)

	require.NoError(t, c.Register(id, sink))
	err := c.Register(id, make(chan Outcome, 1))
	assert.ErrorIs(t, err, ErrDuplicateQuery)
}

func TestCompleteIsIdempotent(t *testing.T) {
	c := New(nil)
	id := NewQueryID(EngineDHT)
	sink := make(chan Outcome, 1)
	require.NoError(t, c.Register(id, sink))

	c.Complete(id, Outcome{Payload: 1})
	// second completion for the same id must be a silent no-op
	c.Complete(id, Outcome{Payload: 2})

	got := <-sink
	assert.Equal(t, 1, got.Payload)
	select {
	case <-sink:
		t.Fatal("expected only one delivery")
	default:
	}
}

func TestCompleteWithNoRegistrationIsNoop(t *testing.T) {
	c := New(nil)
	assert.NotPanics(t, func() {
		c.Complete(NewQueryID(EngineDHT), Outcome{Payload: "ignored"})
	})
}

func TestShutdownCancelsAllPending(t *testing.T) {
	c := New(nil)
	sinkA := make(chan Outcome, 1)
	sinkB := make(chan Outcome, 1)
	idA := NewQueryID(EngineDHT)
	idB := NewQueryID(EngineDirect)
	require.NoError(t, c.Register(idA, sinkA))
	require.NoError(t, c.Register(idB, sinkB))

	c.Shutdown()

	assert.True(t, errors.Is((<-sinkA).Err, ErrCancelled))
	assert.True(t, errors.Is((<-sinkB).Err, ErrCancelled))
	assert.Equal(t, 0, c.Len())
}
