package chat

import (
	"fmt"
	"sync"
	"time"

	"SCProject/logger"
	"SCProject/tools/ids"

	"github.com/gorilla/websocket"
)

// Close codes: normal teardown vs credential rejected, so clients can tell
// "retry with a new token" apart from "server went away".
const (
	CloseNormal       = websocket.CloseNormalClosure // 1000
	CloseAuthRejected = 4001
)

const (
	sendQueueSize  = 64
	writeDeadline  = 5 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 1 << 20 // 1MB
)

// ChannelState is the per-channel lifecycle.
type ChannelState int32

const (
	StateConnecting ChannelState = iota
	StateAuthenticated
	StateActive
	StateClosed
)

func (s ChannelState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// ConnLike is the slice of *websocket.Conn the channel needs; tests plug in
// fakes.
type ConnLike interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	Close() error
}

// Channel is one live bidirectional connection belonging to one user.
// Exactly one writer goroutine (writePump) touches the conn for data
// frames; everyone else enqueues.
type Channel struct {
	ID     string
	UserID int64

	conn ConnLike

	mu    sync.Mutex
	state ChannelState

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewChannel(conn ConnLike) *Channel {
	conn.SetReadLimit(maxMessageSize)
	return &Channel{
		ID:    ids.GenerateString(),
		conn:  conn,
		state: StateConnecting,
		send:  make(chan []byte, sendQueueSize),
		done:  make(chan struct{}),
	}
}

// Transition moves the channel through its lifecycle; invalid moves are
// rejected rather than silently absorbed.
func (c *Channel) Transition(to ChannelState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !validTransition(c.state, to) {
		return fmt.Errorf("invalid channel transition %s -> %s", c.state, to)
	}
	c.state = to
	return nil
}

func validTransition(from, to ChannelState) bool {
	switch from {
	case StateConnecting:
		return to == StateAuthenticated || to == StateClosed
	case StateAuthenticated:
		return to == StateActive || to == StateClosed
	case StateActive:
		return to == StateClosed
	}
	return false
}

func (c *Channel) State() ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Enqueue hands a pre-marshalled payload to the write pump without
// blocking. A full queue is a fatal send error for this channel.
func (c *Channel) Enqueue(payload []byte) error {
	select {
	case <-c.done:
		return fmt.Errorf("channel %s closed", c.ID)
	default:
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return fmt.Errorf("channel %s send queue full", c.ID)
	}
}

// WritePump is the single writer; it also keeps the connection alive with
// pings. Run it in its own goroutine; it returns when the channel closes
// or a write fails.
func (c *Channel) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
				c.CloseWithCode(CloseNormal, "")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Warnf("[chat] write failed channel=%s user=%d err=%v", c.ID, c.UserID, err)
				c.CloseWithCode(CloseNormal, "")
				return
			}
		case <-ticker.C:
			_ = c.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeDeadline))
		}
	}
}

// CloseWithCode sends a close frame and tears the connection down. Safe to
// call from any goroutine, any number of times.
func (c *Channel) CloseWithCode(code int, reason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()

		msg := websocket.FormatCloseMessage(code, reason)
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeDeadline))
		_ = c.conn.Close()
		close(c.done)
	})
}

// Done is closed when the channel has shut down.
func (c *Channel) Done() <-chan struct{} { return c.done }

// Read blocks on the next inbound frame. Only the session read loop calls
// this.
func (c *Channel) Read() (int, []byte, error) {
	return c.conn.ReadMessage()
}
