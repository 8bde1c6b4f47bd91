package realtime

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/MrEthical07/sessiongate"
)

// Registry maps rooms to the connections that belong to them.
type Registry struct {
	mu    sync.RWMutex
	rooms map[RoomID]map[*Conn]struct{}

	metrics *sessiongate.Metrics
	logger  *slog.Logger
}

// NewRegistry returns an empty registry. metrics may be nil.
func NewRegistry(metrics *sessiongate.Metrics, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		rooms: map[RoomID]map[*Conn]struct{}{
			MentorsRoom: {},
		},
		metrics: metrics,
		logger:  logger.With("component", "room_registry"),
	}
}

// Join adds conn to room, creating the room on first use. It reports whether
// membership changed; joining twice is a no-op, and a disconnected conn is
// never added.
func (r *Registry) Join(room RoomID, conn *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn.State() == StateDisconnected {
		return false
	}
	if _, ok := conn.rooms[room]; ok {
		return false
	}

	members, ok := r.rooms[room]
	if !ok {
		members = make(map[*Conn]struct{})
		r.rooms[room] = members
	}
	members[conn] = struct{}{}
	conn.rooms[room] = struct{}{}

	r.metrics.Inc(sessiongate.MetricRoomJoin)
	r.logger.Debug("joined room", "room", room, "conn", conn.id, "user", conn.identity.ID)
	return true
}

// Leave removes conn from room. Leaving a room not joined is a no-op.
func (r *Registry) Leave(room RoomID, conn *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.leaveLocked(room, conn)
}

// LeaveAll retracts every membership conn holds and returns the rooms it
// left.
func (r *Registry) LeaveAll(conn *Conn) []RoomID {
	r.mu.Lock()
	defer r.mu.Unlock()

	left := make([]RoomID, 0, len(conn.rooms))
	for room := range conn.rooms {
		left = append(left, room)
	}
	for _, room := range left {
		r.leaveLocked(room, conn)
	}
	sortRooms(left)
	return left
}

func (r *Registry) leaveLocked(room RoomID, conn *Conn) bool {
	if _, ok := conn.rooms[room]; !ok {
		return false
	}
	delete(conn.rooms, room)

	members := r.rooms[room]
	delete(members, conn)
	r.metrics.Inc(sessiongate.MetricRoomLeave)

	if len(members) == 0 && !room.persistent() {
		delete(r.rooms, room)
		r.metrics.Inc(sessiongate.MetricRoomCollected)
		r.logger.Debug("room collected", "room", room)
	}
	return true
}

// Broadcast queues event to every member of room except connections owned
// by exclude, which may be empty. It never blocks: a member whose queue is
// full loses the frame. It returns the number of connections that accepted
// the frame.
func (r *Registry) Broadcast(room RoomID, event Event, exclude string) int {
	payload, err := event.encode()
	if err != nil {
		r.logger.Error("encode event", "event", event.Type, "room", room, "error", err)
		return 0
	}

	r.mu.RLock()
	targets := make([]*Conn, 0, len(r.rooms[room]))
	for conn := range r.rooms[room] {
		if exclude != "" && conn.identity.ID == exclude {
			continue
		}
		targets = append(targets, conn)
	}
	r.mu.RUnlock()

	r.metrics.Inc(sessiongate.MetricBroadcast)

	delivered := 0
	for _, conn := range targets {
		if conn.enqueue(payload) {
			delivered++
			r.metrics.Inc(sessiongate.MetricFrameDelivered)
			continue
		}
		r.metrics.Inc(sessiongate.MetricFrameDropped)
		r.logger.Debug("frame dropped", "room", room, "conn", conn.id, "event", event.Type)
	}
	return delivered
}

// MembersOf returns the distinct identities in room, ordered by id.
func (r *Registry) MembersOf(room RoomID) []sessiongate.Identity {
	r.mu.RLock()
	seen := make(map[string]sessiongate.Identity, len(r.rooms[room]))
	for conn := range r.rooms[room] {
		seen[conn.identity.ID] = conn.identity
	}
	r.mu.RUnlock()

	out := make([]sessiongate.Identity, 0, len(seen))
	for _, identity := range seen {
		out = append(out, identity)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Connections returns the number of connections in room.
func (r *Registry) Connections(room RoomID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}

// RoomsOf returns the rooms conn currently belongs to.
func (r *Registry) RoomsOf(conn *Conn) []RoomID {
	r.mu.RLock()
	out := make([]RoomID, 0, len(conn.rooms))
	for room := range conn.rooms {
		out = append(out, room)
	}
	r.mu.RUnlock()

	sortRooms(out)
	return out
}

// Rooms returns every room currently in the registry.
func (r *Registry) Rooms() []RoomID {
	r.mu.RLock()
	out := make([]RoomID, 0, len(r.rooms))
	for room := range r.rooms {
		out = append(out, room)
	}
	r.mu.RUnlock()

	sortRooms(out)
	return out
}

// Has reports whether room exists.
func (r *Registry) Has(room RoomID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[room]
	return ok
}

func sortRooms(rooms []RoomID) {
	sort.Slice(rooms, func(i, j int) bool { return rooms[i] < rooms[j] })
}
