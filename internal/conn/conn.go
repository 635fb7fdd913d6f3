package conn

import (
	"errors"
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

// Push errors reported to the owning component. Both are terminal from
// the owner's point of view: the connection is to be cleaned up.
var (
	// ErrClosed is returned when pushing to a closed connection.
	ErrClosed = errors.New("conn: connection closed")

	// ErrOutboxFull is returned when the outbox buffer is full. A client
	// that cannot drain its outbox is treated the same as a dead one.
	ErrOutboxFull = errors.New("conn: outbox full")
)

// DefaultOutboxSize is the per-connection send buffer used when no
// size is configured. The configuration layer grows the configured
// size with the retained-event capacity so a backlog replay fits in a
// fresh connection's outbox.
const DefaultOutboxSize = 256

// Conn is a push-capable sink for one remote client. Pushes never block:
// a full buffer or a closed connection fails fast so a slow client
// cannot stall fan-out to others. Close is idempotent and fires the
// close hook exactly once, even when a remote-initiated close races an
// explicit unsubscribe.
type Conn struct {
	id          string
	connectedAt time.Time

	outbox chan []byte
	done   chan struct{}

	closeOnce sync.Once

	mu      sync.Mutex
	onClose func(*Conn)
}

// New creates a connection with the given identifier and outbox capacity.
// A non-positive buffer falls back to DefaultOutboxSize.
func New(id string, buffer int) *Conn {
	if buffer <= 0 {
		buffer = DefaultOutboxSize
	}
	return &Conn{
		id:          id,
		connectedAt: time.Now(),
		outbox:      make(chan []byte, buffer),
		done:        make(chan struct{}),
	}
}

// ID returns the connection identifier.
func (c *Conn) ID() string { return c.id }

// ConnectedAt returns the time the connection was created.
func (c *Conn) ConnectedAt() time.Time { return c.connectedAt }

// OnClose registers a hook invoked exactly once when the connection
// closes, whichever side initiates it. Set it before the connection is
// shared with other goroutines.
func (c *Conn) OnClose(fn func(*Conn)) {
	c.mu.Lock()
	c.onClose = fn
	c.mu.Unlock()
}

// Push enqueues one message for delivery. It never blocks.
func (c *Conn) Push(msg []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.outbox <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrOutboxFull
	}
}

// PushJSON marshals v and enqueues it.
func (c *Conn) PushJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Push(data)
}

// Close marks the connection closed and runs the close hook. Safe to
// call from both the transport side and the owning component; only the
// first call has any effect.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		fn := c.onClose
		c.mu.Unlock()
		if fn != nil {
			fn(c)
		}
	})
	return nil
}

// Closed reports whether the connection has been closed.
func (c *Conn) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Outbox exposes the pending messages for the write pump to drain.
// The channel is never closed; consumers select on Done instead.
func (c *Conn) Outbox() <-chan []byte { return c.outbox }

// Done is closed when the connection closes.
func (c *Conn) Done() <-chan struct{} { return c.done }
