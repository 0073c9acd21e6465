package chat

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn implements ConnLike and records what the channel writes.
type fakeConn struct {
	mu     sync.Mutex
	writes [][]byte
	closed bool
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {} // tests never read through the fake
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, append([]byte(nil), data...))
	return nil
}

func (f *fakeConn) WriteControl(int, []byte, time.Time) error { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error          { return nil }
func (f *fakeConn) SetReadLimit(int64)                        {}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func newTestChannel(userID int64) (*Channel, *fakeConn) {
	conn := &fakeConn{}
	ch := NewChannel(conn)
	ch.UserID = userID
	return ch, conn
}

// drain pops every payload currently sitting in the channel's send queue.
func drain(ch *Channel) [][]byte {
	var out [][]byte
	for {
		select {
		case p := <-ch.send:
			out = append(out, p)
		default:
			return out
		}
	}
}

func TestRegistryFirstAndLastTransitions(t *testing.T) {
	reg := NewRegistry()
	a, _ := newTestChannel(7)
	b, _ := newTestChannel(7)

	assert.True(t, reg.Register(7, a), "first channel must report the zero->nonzero edge")
	assert.False(t, reg.Register(7, b))
	assert.True(t, reg.Present(7))
	assert.Equal(t, 2, reg.Count(7))

	assert.False(t, reg.Unregister(7, a))
	assert.True(t, reg.Unregister(7, b), "last channel must report the nonzero->zero edge")
	assert.False(t, reg.Present(7))
	assert.Equal(t, 0, reg.Count(7))
}

func TestRegistryUnregisterIdempotent(t *testing.T) {
	reg := NewRegistry()
	ch, _ := newTestChannel(3)

	reg.Register(3, ch)
	assert.True(t, reg.Unregister(3, ch))
	assert.False(t, reg.Unregister(3, ch), "second unregister must be a no-op")
	assert.False(t, reg.Unregister(99, ch))
}

func TestRegistrySendToOfflineUserIsNoop(t *testing.T) {
	reg := NewRegistry()

	done := make(chan struct{})
	go func() {
		reg.Send(42, map[string]string{"hello": "world"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("send to absent user blocked")
	}
}

func TestRegistrySendReachesEveryChannel(t *testing.T) {
	reg := NewRegistry()
	a, _ := newTestChannel(5)
	b, _ := newTestChannel(5)
	other, _ := newTestChannel(6)
	reg.Register(5, a)
	reg.Register(5, b)
	reg.Register(6, other)

	reg.Send(5, UserStatusEvent{Type: "user_status", UserID: 5, Status: "online"})

	for _, ch := range []*Channel{a, b} {
		payloads := drain(ch)
		require.Len(t, payloads, 1)
		var ev UserStatusEvent
		require.NoError(t, json.Unmarshal(payloads[0], &ev))
		assert.Equal(t, "user_status", ev.Type)
		assert.Equal(t, int64(5), ev.UserID)
	}
	assert.Empty(t, drain(other), "other users must not receive targeted sends")
}

func TestRegistryBroadcast(t *testing.T) {
	reg := NewRegistry()
	a, _ := newTestChannel(1)
	b, _ := newTestChannel(2)
	reg.Register(1, a)
	reg.Register(2, b)

	reg.Broadcast(PongEvent{Type: "pong"})

	assert.Len(t, drain(a), 1)
	assert.Len(t, drain(b), 1)
}

func TestRegistrySlowConsumerIsClosedNotBlocked(t *testing.T) {
	reg := NewRegistry()
	slow, conn := newTestChannel(9)
	reg.Register(9, slow)

	// no write pump running: fill the queue past capacity
	for i := 0; i < sendQueueSize+5; i++ {
		reg.Send(9, PongEvent{Type: "pong"})
	}

	assert.True(t, conn.isClosed(), "overflowing channel must be closed")
	select {
	case <-slow.Done():
	default:
		t.Fatal("channel done not signalled")
	}

	// the session teardown path still owns unregistration
	assert.True(t, reg.Present(9))
	assert.True(t, reg.Unregister(9, slow))
}

func TestRegistryClose(t *testing.T) {
	reg := NewRegistry()
	a, connA := newTestChannel(1)
	b, connB := newTestChannel(2)
	reg.Register(1, a)
	reg.Register(2, b)

	reg.Close()

	assert.True(t, connA.isClosed())
	assert.True(t, connB.isClosed())
	assert.False(t, reg.Present(1))
	assert.False(t, reg.Present(2))
}
