package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/sessiongate"
	"github.com/MrEthical07/sessiongate/permission"
	"github.com/MrEthical07/sessiongate/store"
)

type recordedConn struct {
	user   string
	opened bool
}

type fakeGate struct {
	mu      sync.Mutex
	tokens  map[string]sessiongate.Identity
	records []recordedConn
}

func (g *fakeGate) AuthenticateHandshake(_ context.Context, hs sessiongate.Handshake) (*sessiongate.Identity, error) {
	token := hs.AuthToken
	if token == "" {
		token = hs.QueryToken
	}
	if token == "" {
		return nil, &sessiongate.HandshakeError{Message: sessiongate.HandshakeTokenRequired, Err: sessiongate.ErrMissingToken}
	}
	identity, ok := g.tokens[token]
	if !ok {
		return nil, &sessiongate.HandshakeError{Message: sessiongate.HandshakeInvalidToken, Err: sessiongate.ErrInvalidToken}
	}
	return &identity, nil
}

func (g *fakeGate) RecordConnection(_ context.Context, identity sessiongate.Identity, _ string, opened bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.records = append(g.records, recordedConn{user: identity.ID, opened: opened})
}

var (
	studentA = sessiongate.Identity{ID: "A", Email: "a@example.com", Role: permission.RoleStudent, DisplayName: "Ann"}
	studentB = sessiongate.Identity{ID: "B", Email: "b@example.com", Role: permission.RoleStudent, DisplayName: "Ben"}
	mentorM  = sessiongate.Identity{ID: "M", Email: "m@example.com", Role: permission.RoleMentor, DisplayName: "Mona"}
)

var fixedNow = time.Date(2025, 5, 4, 10, 30, 0, 0, time.UTC)

func newTestRouter(t *testing.T) (*Router, *fakeGate, *sessiongate.Metrics) {
	t.Helper()
	gate := &fakeGate{tokens: map[string]sessiongate.Identity{
		"tok-a": studentA,
		"tok-b": studentB,
		"tok-m": mentorM,
	}}
	metrics := sessiongate.NewMetrics(sessiongate.MetricsConfig{Enabled: true})
	r := NewRouter(gate, Options{
		QueueSize: 16,
		Metrics:   metrics,
		Clock:     func() time.Time { return fixedNow },
	})
	return r, gate, metrics
}

func mustConnect(t *testing.T, r *Router, token string) *Conn {
	t.Helper()
	conn, err := r.Connect(context.Background(), sessiongate.Handshake{AuthToken: token})
	if err != nil {
		t.Fatalf("connect %s: %v", token, err)
	}
	return conn
}

func frame(t *testing.T, event string, data any) Frame {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatal(err)
	}
	return Frame{Event: event, Data: raw}
}

func TestStudentSessionLifecycle(t *testing.T) {
	r, _, _ := newTestRouter(t)
	ctx := context.Background()
	a := mustConnect(t, r, "tok-a")

	if a.State() != StateActive {
		t.Fatalf("state = %s, want active", a.State())
	}
	if rooms := r.Registry().RoomsOf(a); len(rooms) != 1 || rooms[0] != UserRoom("A") {
		t.Fatalf("rooms = %v, want [user:A]", rooms)
	}
	if frames := drain(t, a); len(frames) != 0 {
		t.Fatalf("implicit joins must be silent, got %v", frames)
	}

	if err := r.Dispatch(ctx, a, frame(t, EventJoinSession, "s1")); err != nil {
		t.Fatal(err)
	}
	members := r.Registry().MembersOf(SessionRoom("s1"))
	if len(members) != 1 || members[0].ID != "A" {
		t.Fatalf("members = %v", members)
	}
	frames := drain(t, a)
	if len(frames) != 1 || frames[0].Event != EventUserJoined {
		t.Fatalf("frames = %v, want user-joined", frames)
	}
	var joined Presence
	if err := json.Unmarshal(frames[0].Data, &joined); err != nil {
		t.Fatal(err)
	}
	if joined != (Presence{UserID: "A", Name: "Ann"}) {
		t.Fatalf("user-joined = %+v", joined)
	}

	if err := r.Dispatch(ctx, a, frame(t, EventLeaveSession, "s1")); err != nil {
		t.Fatal(err)
	}
	if r.Registry().Has(SessionRoom("s1")) {
		t.Fatal("session room should be removed once empty")
	}
	if frames := drain(t, a); len(frames) != 0 {
		t.Fatalf("leaver must not receive user-left, got %v", frames)
	}
}

func TestMentorAutoJoinsMentorsRoom(t *testing.T) {
	r, _, _ := newTestRouter(t)
	m := mustConnect(t, r, "tok-m")

	rooms := r.Registry().RoomsOf(m)
	if len(rooms) != 2 || rooms[0] != MentorsRoom || rooms[1] != UserRoom("M") {
		t.Fatalf("rooms = %v, want [mentors user:M]", rooms)
	}
}

func TestUserLeftReachesRemainingMembers(t *testing.T) {
	r, _, _ := newTestRouter(t)
	ctx := context.Background()
	a := mustConnect(t, r, "tok-a")
	b := mustConnect(t, r, "tok-b")

	_ = r.Dispatch(ctx, a, frame(t, EventJoinSession, "s1"))
	_ = r.Dispatch(ctx, b, frame(t, EventJoinSession, "s1"))
	if got := len(drain(t, a)); got != 2 {
		t.Fatalf("a saw %d joins, want 2", got)
	}
	drain(t, b)

	_ = r.Dispatch(ctx, b, frame(t, EventLeaveSession, "s1"))
	frames := drain(t, a)
	if len(frames) != 1 || frames[0].Event != EventUserLeft {
		t.Fatalf("a frames = %v, want user-left", frames)
	}
	if len(drain(t, b)) != 0 {
		t.Fatal("leaver received its own user-left")
	}
}

func TestSessionMessageStampedByRouter(t *testing.T) {
	r, _, _ := newTestRouter(t)
	ctx := context.Background()
	a := mustConnect(t, r, "tok-a")
	b := mustConnect(t, r, "tok-b")
	_ = r.Dispatch(ctx, a, frame(t, EventJoinSession, "s1"))
	drain(t, a)

	// b is not a member; the message is still delivered to the room.
	err := r.Dispatch(ctx, b, frame(t, EventSessionMessage, map[string]any{
		"sessionId": "s1",
		"message":   "hello",
		"timestamp": "1999-01-01T00:00:00Z",
	}))
	if err != nil {
		t.Fatal(err)
	}

	frames := drain(t, a)
	if len(frames) != 1 || frames[0].Event != EventSessionMessage {
		t.Fatalf("frames = %v", frames)
	}
	var msg SessionMessage
	if err := json.Unmarshal(frames[0].Data, &msg); err != nil {
		t.Fatal(err)
	}
	want := SessionMessage{UserID: "B", Name: "Ben", Message: "hello", Timestamp: fixedNow}
	if !msg.Timestamp.Equal(want.Timestamp) || msg.UserID != want.UserID || msg.Name != want.Name || msg.Message != want.Message {
		t.Fatalf("session-message = %+v, want %+v", msg, want)
	}
	if len(drain(t, b)) != 0 {
		t.Fatal("non-member sender should not receive the room message")
	}
}

func TestDirectMessage(t *testing.T) {
	r, _, metrics := newTestRouter(t)
	ctx := context.Background()
	a := mustConnect(t, r, "tok-a")
	m1 := mustConnect(t, r, "tok-m")
	m2 := mustConnect(t, r, "tok-m")

	if err := r.Dispatch(ctx, a, frame(t, EventDirectMessage, map[string]string{"recipientId": "M", "message": "hi"})); err != nil {
		t.Fatal(err)
	}
	for _, conn := range []*Conn{m1, m2} {
		frames := drain(t, conn)
		if len(frames) != 1 || frames[0].Event != EventDirectMessage {
			t.Fatalf("frames = %v", frames)
		}
		var dm DirectMessage
		if err := json.Unmarshal(frames[0].Data, &dm); err != nil {
			t.Fatal(err)
		}
		if dm.SenderID != "A" || dm.SenderName != "Ann" || dm.Message != "hi" || !dm.Timestamp.Equal(fixedNow) {
			t.Fatalf("direct-message = %+v", dm)
		}
	}
	if len(drain(t, a)) != 0 {
		t.Fatal("sender should not receive its own direct message")
	}
	if got := metrics.Value(sessiongate.MetricDirectMessageUndelivered); got != 0 {
		t.Fatalf("undelivered = %d, want 0", got)
	}
}

func TestDirectMessageToAbsentRecipientIsDropped(t *testing.T) {
	r, _, metrics := newTestRouter(t)
	ctx := context.Background()
	a := mustConnect(t, r, "tok-a")
	m := mustConnect(t, r, "tok-m")

	if err := r.Dispatch(ctx, a, frame(t, EventDirectMessage, map[string]string{"recipientId": "B", "message": "hi"})); err != nil {
		t.Fatalf("dropped direct message returned %v", err)
	}
	if len(drain(t, a))+len(drain(t, m)) != 0 {
		t.Fatal("nobody should observe a direct message to an absent user")
	}
	if r.Registry().Has(UserRoom("B")) {
		t.Fatal("broadcast must not create the recipient room")
	}
	if got := metrics.Value(sessiongate.MetricDirectMessageUndelivered); got != 1 {
		t.Fatalf("undelivered = %d, want 1", got)
	}
}

func TestRejectedEvents(t *testing.T) {
	r, _, metrics := newTestRouter(t)
	ctx := context.Background()
	a := mustConnect(t, r, "tok-a")

	cases := []struct {
		name  string
		frame Frame
		want  error
	}{
		{"unknown", Frame{Event: "shout"}, ErrUnknownEvent},
		{"join without id", frame(t, EventJoinSession, ""), ErrMalformedPayload},
		{"join with object", frame(t, EventJoinSession, map[string]string{"id": "s1"}), ErrMalformedPayload},
		{"message without session", frame(t, EventSessionMessage, map[string]string{"message": "x"}), ErrMalformedPayload},
		{"direct without recipient", frame(t, EventDirectMessage, map[string]string{"message": "x"}), ErrMalformedPayload},
		{"garbage", Frame{Event: EventDirectMessage, Data: json.RawMessage(`[`)}, ErrMalformedPayload},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := r.Dispatch(ctx, a, tc.frame); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
	if a.State() != StateActive {
		t.Fatal("rejected events must not close the connection")
	}
	if got := metrics.Value(sessiongate.MetricEventRejected); got != uint64(len(cases)) {
		t.Fatalf("rejected = %d, want %d", got, len(cases))
	}
}

func TestDisconnectRetractsMembershipWithoutUserLeft(t *testing.T) {
	r, gate, _ := newTestRouter(t)
	ctx := context.Background()
	a := mustConnect(t, r, "tok-a")
	b := mustConnect(t, r, "tok-b")
	_ = r.Dispatch(ctx, a, frame(t, EventJoinSession, "s1"))
	_ = r.Dispatch(ctx, b, frame(t, EventJoinSession, "s1"))
	drain(t, a)
	drain(t, b)

	r.Disconnect(ctx, a)

	if a.State() != StateDisconnected {
		t.Fatalf("state = %s", a.State())
	}
	select {
	case <-a.Done():
	default:
		t.Fatal("Done not closed")
	}
	for _, room := range []RoomID{UserRoom("A"), SessionRoom("s1")} {
		for _, member := range r.Registry().MembersOf(room) {
			if member.ID == "A" {
				t.Fatalf("A still in %s", room)
			}
		}
	}
	if r.Registry().Has(UserRoom("A")) {
		t.Fatal("user room should be removed with the last connection")
	}
	if frames := drain(t, b); len(frames) != 0 {
		t.Fatalf("abrupt disconnect must not broadcast user-left, got %v", frames)
	}
	if err := r.Dispatch(ctx, a, frame(t, EventJoinSession, "s2")); !errors.Is(err, ErrConnClosed) {
		t.Fatalf("dispatch after disconnect = %v", err)
	}

	r.Disconnect(ctx, a)
	gate.mu.Lock()
	defer gate.mu.Unlock()
	closed := 0
	for _, rec := range gate.records {
		if rec.user == "A" && !rec.opened {
			closed++
		}
	}
	if closed != 1 {
		t.Fatalf("close recorded %d times, want 1", closed)
	}
}

func TestSecondConnectionKeepsUserRoom(t *testing.T) {
	r, _, _ := newTestRouter(t)
	ctx := context.Background()
	tab1 := mustConnect(t, r, "tok-a")
	tab2 := mustConnect(t, r, "tok-a")

	if got := r.Registry().Connections(UserRoom("A")); got != 2 {
		t.Fatalf("user room connections = %d, want 2", got)
	}
	r.Disconnect(ctx, tab1)
	if got := r.Registry().MembersOf(UserRoom("A")); len(got) != 1 {
		t.Fatalf("members = %v, want A via tab2", got)
	}
	r.Disconnect(ctx, tab2)
	if r.Registry().Has(UserRoom("A")) {
		t.Fatal("user room should go with the last connection")
	}
}

func TestHandshakeFailureTouchesNoRooms(t *testing.T) {
	r, gate, _ := newTestRouter(t)

	_, err := r.Connect(context.Background(), sessiongate.Handshake{})
	var herr *sessiongate.HandshakeError
	if !errors.As(err, &herr) || herr.Message != sessiongate.HandshakeTokenRequired {
		t.Fatalf("err = %v, want token required", err)
	}
	if rooms := r.Registry().Rooms(); len(rooms) != 1 || rooms[0] != MentorsRoom {
		t.Fatalf("rooms = %v", rooms)
	}
	if len(gate.records) != 0 {
		t.Fatal("rejected handshake recorded a connection")
	}
}

func TestRouterWithEngine(t *testing.T) {
	dir := store.NewMemoryStore(store.User{ID: "A", Name: "Ann", Email: "a@example.com", Role: permission.RoleStudent})
	cfg := sessiongate.DefaultConfig()
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	engine, err := sessiongate.New().WithConfig(cfg).WithIdentityProvider(dir).Build()
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close()

	r := NewRouter(engine, Options{Metrics: engine.Metrics(), Logger: engine.Logger()})
	token, err := engine.IssueAccessToken("A")
	if err != nil {
		t.Fatal(err)
	}

	conn, err := r.Connect(context.Background(), sessiongate.Handshake{QueryToken: token})
	if err != nil {
		t.Fatal(err)
	}
	if conn.Identity().DisplayName != "Ann" {
		t.Fatalf("identity = %+v", conn.Identity())
	}

	_, err = r.Connect(context.Background(), sessiongate.Handshake{AuthToken: "garbage", QueryToken: token})
	var herr *sessiongate.HandshakeError
	if !errors.As(err, &herr) || herr.Message != sessiongate.HandshakeInvalidToken {
		t.Fatalf("auth field must take precedence, got %v", err)
	}

	r.Disconnect(context.Background(), conn)
	snap := engine.MetricsSnapshot()
	if snap.Counters[sessiongate.MetricConnectionOpened] != 1 || snap.Counters[sessiongate.MetricConnectionClosed] != 1 {
		t.Fatalf("connection counters = %v", snap.Counters)
	}
}
