package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/sessiongate"
	"github.com/MrEthical07/sessiongate/permission"
	"github.com/google/uuid"
)

// Gate authenticates handshakes and records connection lifecycle events.
// *sessiongate.Engine satisfies it.
type Gate interface {
	AuthenticateHandshake(ctx context.Context, hs sessiongate.Handshake) (*sessiongate.Identity, error)
	RecordConnection(ctx context.Context, identity sessiongate.Identity, connID string, opened bool)
}

// Options configures a Router. Zero values select defaults.
type Options struct {
	// QueueSize bounds each connection's outbound queue. Default 64.
	QueueSize int
	Metrics   *sessiongate.Metrics
	Logger    *slog.Logger
	// Clock stamps outbound messages. Default time.Now.
	Clock func() time.Time
}

// Router admits connections and dispatches their events.
type Router struct {
	gate      Gate
	registry  *Registry
	metrics   *sessiongate.Metrics
	logger    *slog.Logger
	clock     func() time.Time
	queueSize int
}

func NewRouter(gate Gate, opts Options) *Router {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Router{
		gate:      gate,
		registry:  NewRegistry(opts.Metrics, opts.Logger),
		metrics:   opts.Metrics,
		logger:    opts.Logger.With("component", "session_router"),
		clock:     opts.Clock,
		queueSize: opts.QueueSize,
	}
}

func (r *Router) Registry() *Registry {
	return r.registry
}

// Connect authenticates hs and admits the connection. On failure the error
// is a *sessiongate.HandshakeError and no room state is touched.
func (r *Router) Connect(ctx context.Context, hs sessiongate.Handshake) (*Conn, error) {
	if r.gate == nil {
		return nil, sessiongate.ErrEngineNotReady
	}
	identity, err := r.gate.AuthenticateHandshake(ctx, hs)
	if err != nil {
		return nil, err
	}
	return r.Accept(ctx, *identity), nil
}

// Accept binds identity to a new connection and activates it: the
// connection silently joins user:<id> and, for mentors, the mentors room.
func (r *Router) Accept(ctx context.Context, identity sessiongate.Identity) *Conn {
	conn := newConn(uuid.NewString(), identity, r.queueSize, r.clock())
	conn.transition(StateConnecting, StateAuthenticated)

	r.registry.Join(UserRoom(identity.ID), conn)
	if identity.Role == permission.RoleMentor {
		r.registry.Join(MentorsRoom, conn)
	}
	conn.transition(StateAuthenticated, StateActive)

	r.metrics.Inc(sessiongate.MetricConnectionOpened)
	if r.gate != nil {
		r.gate.RecordConnection(ctx, identity, conn.id, true)
	}
	r.logger.Info("user connected", "user", identity.ID, "email", identity.Email, "conn", conn.id)
	return conn
}

// Dispatch handles one inbound frame from conn. Unknown events and bad
// payloads return an error and leave state untouched; the caller keeps the
// connection open.
func (r *Router) Dispatch(ctx context.Context, conn *Conn, frame Frame) error {
	if conn.State() != StateActive {
		return ErrConnClosed
	}

	var err error
	switch frame.Event {
	case EventJoinSession:
		err = r.joinSession(conn, frame.Data)
	case EventLeaveSession:
		err = r.leaveSession(conn, frame.Data)
	case EventSessionMessage:
		err = r.sessionMessage(conn, frame.Data)
	case EventDirectMessage:
		err = r.directMessage(conn, frame.Data)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownEvent, frame.Event)
	}
	if err != nil {
		r.metrics.Inc(sessiongate.MetricEventRejected)
		r.logger.Debug("event rejected", "conn", conn.id, "event", frame.Event, "error", err)
	}
	return err
}

func (r *Router) joinSession(conn *Conn, data json.RawMessage) error {
	sessionID, err := decodeSessionID(data)
	if err != nil {
		return err
	}
	room := SessionRoom(sessionID)
	r.registry.Join(room, conn)
	r.registry.Broadcast(room, r.presence(EventUserJoined, conn, room), "")
	return nil
}

func (r *Router) leaveSession(conn *Conn, data json.RawMessage) error {
	sessionID, err := decodeSessionID(data)
	if err != nil {
		return err
	}
	room := SessionRoom(sessionID)
	r.registry.Leave(room, conn)
	r.registry.Broadcast(room, r.presence(EventUserLeft, conn, room), "")
	return nil
}

func (r *Router) presence(typ string, conn *Conn, room RoomID) Event {
	return Event{
		Type:      typ,
		Payload:   Presence{UserID: conn.identity.ID, Name: conn.identity.DisplayName},
		Sender:    conn.identity.ID,
		Room:      room,
		Timestamp: r.clock(),
	}
}

// sessionMessage does not require the sender to be a member of the room.
func (r *Router) sessionMessage(conn *Conn, data json.RawMessage) error {
	var in sessionMessageIn
	if err := json.Unmarshal(data, &in); err != nil || in.SessionID == "" {
		return ErrMalformedPayload
	}
	now := r.clock()
	room := SessionRoom(in.SessionID)
	r.registry.Broadcast(room, Event{
		Type: EventSessionMessage,
		Payload: SessionMessage{
			UserID:    conn.identity.ID,
			Name:      conn.identity.DisplayName,
			Message:   in.Message,
			Timestamp: now,
		},
		Sender:    conn.identity.ID,
		Room:      room,
		Timestamp: now,
	}, "")
	return nil
}

// directMessage reaches every connection of the recipient, or nobody.
func (r *Router) directMessage(conn *Conn, data json.RawMessage) error {
	var in directMessageIn
	if err := json.Unmarshal(data, &in); err != nil || in.RecipientID == "" {
		return ErrMalformedPayload
	}
	now := r.clock()
	room := UserRoom(in.RecipientID)
	delivered := r.registry.Broadcast(room, Event{
		Type: EventDirectMessage,
		Payload: DirectMessage{
			SenderID:   conn.identity.ID,
			SenderName: conn.identity.DisplayName,
			Message:    in.Message,
			Timestamp:  now,
		},
		Sender:    conn.identity.ID,
		Room:      room,
		Timestamp: now,
	}, "")
	if delivered == 0 {
		r.metrics.Inc(sessiongate.MetricDirectMessageUndelivered)
	}
	return nil
}

// Disconnect moves conn to its terminal state and retracts every membership
// it holds. No user-left is broadcast for session rooms it was still in.
// Calling Disconnect more than once is safe.
func (r *Router) Disconnect(ctx context.Context, conn *Conn) {
	for {
		state := conn.State()
		if state == StateDisconnected {
			return
		}
		if conn.transition(state, StateDisconnected) {
			break
		}
	}

	left := r.registry.LeaveAll(conn)
	conn.close()

	r.metrics.Inc(sessiongate.MetricConnectionClosed)
	if r.gate != nil {
		r.gate.RecordConnection(ctx, conn.identity, conn.id, false)
	}
	r.logger.Info("user disconnected", "user", conn.identity.ID, "email", conn.identity.Email, "conn", conn.id, "rooms", len(left))
}
