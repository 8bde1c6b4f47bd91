package realtime

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/sessiongate"
)

// ConnState is a connection's position in its lifecycle. Disconnected is
// terminal.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateAuthenticated
	StateActive
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Conn is one admitted connection. Its identity is fixed at handshake and
// never refreshed.
type Conn struct {
	id        string
	identity  sessiongate.Identity
	createdAt time.Time
	state     atomic.Int32

	// rooms is guarded by the owning Registry's mutex.
	rooms map[RoomID]struct{}

	queue     chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newConn(id string, identity sessiongate.Identity, queueSize int, now time.Time) *Conn {
	c := &Conn{
		id:        id,
		identity:  identity,
		createdAt: now,
		rooms:     make(map[RoomID]struct{}),
		queue:     make(chan []byte, queueSize),
		done:      make(chan struct{}),
	}
	c.state.Store(int32(StateConnecting))
	return c
}

func (c *Conn) ID() string {
	return c.id
}

func (c *Conn) Identity() sessiongate.Identity {
	return c.identity
}

func (c *Conn) CreatedAt() time.Time {
	return c.createdAt
}

func (c *Conn) State() ConnState {
	return ConnState(c.state.Load())
}

func (c *Conn) transition(from, to ConnState) bool {
	return c.state.CompareAndSwap(int32(from), int32(to))
}

// Outbound yields encoded frames queued for this connection. The channel is
// never closed; select on Done as well.
func (c *Conn) Outbound() <-chan []byte {
	return c.queue
}

// Done is closed when the connection is disconnected.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// enqueue never blocks. It reports false when the queue is full or the
// connection is gone.
func (c *Conn) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.queue <- frame:
		return true
	default:
		return false
	}
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
