// Package session is the per-connection dispatcher: it reads framed
// protocol messages off a net.Conn and drives the Registry and Room
// layers, then writes back a direct reply plus any deferred
// notifications. The direct reply is SUCCESS for CREATE_ROOM, JOIN_ROOM,
// SPECTATE_ROOM, LEAVE_ROOM and RECONNECT, ROOM_LIST for LIST_ROOMS, and
// ERROR for any failure; READY, PLACE_STONE, the chat messages,
// SURRENDER, REMATCH and REMATCH_RESPONSE get no direct reply on success,
// only the room's broadcast notifications. Grounded on the teacher's internal/v1/session/client.go
// readPump/writePump/non-blocking-send pattern, generalized from
// WebSocket+protobuf framing to net.Conn + bufio line framing + JSON.
package session

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/heejunkim00/gomoku-game/internal/v1/logging"
	"github.com/heejunkim00/gomoku-game/internal/v1/protocol"
	"github.com/heejunkim00/gomoku-game/internal/v1/types"
)

// sendBufferSize bounds the per-connection outgoing queue. A recipient
// that can't keep up has its message dropped rather than letting a slow
// socket stall the Room that's broadcasting to it — spec.md §4.2
// "Broadcast discipline".
const sendBufferSize = 64

const writeWait = 10 * time.Second

// Conn adapts a net.Conn into types.Sender. It owns the write side of
// the socket through a dedicated writePump goroutine so that Room
// broadcasts (which may run from any goroutine, including the timer and
// forfeit monitor) never perform socket I/O themselves.
type Conn struct {
	id   string
	conn net.Conn
	send chan []byte

	closeOnce sync.Once
}

var _ types.Sender = (*Conn)(nil)

// NewConn wraps conn with a generated connection id.
func NewConn(conn net.Conn) *Conn {
	return &Conn{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
}

func (c *Conn) ConnID() string { return c.id }

// SendJSON marshals v as a line-delimited JSON message and enqueues it.
// A full queue drops the message and logs rather than blocking the
// caller — matching the teacher's sendProto non-blocking select/default.
func (c *Conn) SendJSON(v any) {
	env, ok := v.(protocol.Envelope)
	if !ok {
		logging.Error(nil, "session: SendJSON given non-Envelope value")
		return
	}
	data, err := marshalLine(env)
	if err != nil {
		logging.Error(nil, "session: failed to marshal envelope", zap.Error(err))
		return
	}
	select {
	case c.send <- data:
	default:
		logging.Warn(nil, "session: send buffer full, dropping message", zap.String("conn_id", c.id), zap.String("type", env.Type))
	}
}

// Close closes the underlying socket exactly once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}

// writePump drains the send channel to the socket until it's closed.
func (c *Conn) writePump() {
	defer c.Close()
	for data := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if _, err := c.conn.Write(data); err != nil {
			logging.Warn(nil, "session: write failed", zap.String("conn_id", c.id), zap.Error(err))
			return
		}
	}
}

// stopWritePump closes the send channel, letting writePump drain and
// exit. Safe to call at most once per connection.
func (c *Conn) stopWritePump() {
	defer func() { recover() }() // tolerate a double-close race on shutdown
	close(c.send)
}
