package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelLifecycle(t *testing.T) {
	ch, _ := newTestChannel(1)
	assert.Equal(t, StateConnecting, ch.State())

	require.NoError(t, ch.Transition(StateAuthenticated))
	require.NoError(t, ch.Transition(StateActive))
	assert.Equal(t, StateActive, ch.State())

	assert.Error(t, ch.Transition(StateAuthenticated), "lifecycle must not run backwards")
	assert.Error(t, ch.Transition(StateActive))

	require.NoError(t, ch.Transition(StateClosed))
	assert.Error(t, ch.Transition(StateActive), "closed is terminal")
}

func TestChannelRejectsSkippedAuth(t *testing.T) {
	ch, _ := newTestChannel(1)
	assert.Error(t, ch.Transition(StateActive), "connecting must pass through authenticated")
	require.NoError(t, ch.Transition(StateClosed))
}

func TestChannelEnqueueAfterClose(t *testing.T) {
	ch, conn := newTestChannel(1)
	require.NoError(t, ch.Enqueue([]byte(`{"type":"pong"}`)))

	ch.CloseWithCode(CloseNormal, "")
	assert.True(t, conn.isClosed())
	assert.Equal(t, StateClosed, ch.State())
	assert.Error(t, ch.Enqueue([]byte(`{}`)))
}

func TestChannelEnqueueOverflow(t *testing.T) {
	ch, _ := newTestChannel(1)
	for i := 0; i < sendQueueSize; i++ {
		require.NoError(t, ch.Enqueue([]byte(`{}`)))
	}
	assert.Error(t, ch.Enqueue([]byte(`{}`)), "overflow must fail instead of blocking")
}

func TestChannelCloseIdempotent(t *testing.T) {
	ch, conn := newTestChannel(1)
	ch.CloseWithCode(CloseAuthRejected, "bad token")
	ch.CloseWithCode(CloseNormal, "")
	assert.True(t, conn.isClosed())
	select {
	case <-ch.Done():
	default:
		t.Fatal("done not closed")
	}
}
