package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/MrEthical07/sessiongate/internal/httputil"
	"github.com/MrEthical07/sessiongate/realtime"
)

const (
	maxPollBatch   = 64
	maxPollBody    = 64 << 10
	messageNoSID   = "Unknown session"
	messageBadBody = "Malformed frames"
)

// pollSession is one long-polling client. ctx outlives the HTTP requests
// that touch the session.
type pollSession struct {
	conn *realtime.Conn
	ctx  context.Context

	mu       sync.Mutex
	lastSeen time.Time
	inFlight int
}

func (s *pollSession) touch(now time.Time, delta int) {
	s.mu.Lock()
	s.lastSeen = now
	s.inFlight += delta
	s.mu.Unlock()
}

func (s *pollSession) idleSince(now time.Time, timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight == 0 && now.Sub(s.lastSeen) > timeout
}

// servePolling routes the four polling verbs:
//
//	POST   /socket/?transport=polling          open, body {"auth":{"token":...}}
//	GET    /socket/?transport=polling&sid=...  wait for frames
//	POST   /socket/?transport=polling&sid=...  send one frame or an array
//	DELETE /socket/?transport=polling&sid=...  disconnect
func (g *Gateway) servePolling(w http.ResponseWriter, r *http.Request) {
	sid := r.URL.Query().Get("sid")

	switch {
	case sid == "" && r.Method == http.MethodPost:
		g.pollOpen(w, r)
	case sid == "":
		httputil.WriteBadRequest(w, "Missing sid")
	case r.Method == http.MethodGet:
		g.pollReceive(w, r, sid)
	case r.Method == http.MethodPost:
		g.pollSend(w, r, sid)
	case r.Method == http.MethodDelete:
		g.pollClose(w, sid)
	default:
		httputil.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (g *Gateway) pollOpen(w http.ResponseWriter, r *http.Request) {
	var auth connectData
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPollBody))
	if err != nil {
		httputil.WriteBadRequest(w, messageBadBody)
		return
	}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &auth); err != nil {
			httputil.WriteBadRequest(w, messageBadBody)
			return
		}
	}

	// The session context must not end with this request.
	ctx := context.WithoutCancel(r.Context())
	conn, err := g.router.Connect(ctx, handshakeFor(r, auth))
	if err != nil {
		writeFrame(w, http.StatusUnauthorized, EventConnectError, connectErrorData{Message: handshakeMessage(err)})
		return
	}

	s := &pollSession{conn: conn, ctx: ctx, lastSeen: g.now()}
	g.mu.Lock()
	g.polls[conn.ID()] = s
	g.mu.Unlock()

	writeFrame(w, http.StatusOK, EventConnect, connectAck{SID: conn.ID()})
}

func (g *Gateway) session(sid string) (*pollSession, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.polls[sid]
	return s, ok
}

func (g *Gateway) pollReceive(w http.ResponseWriter, r *http.Request, sid string) {
	s, ok := g.session(sid)
	if !ok {
		httputil.WriteNotFound(w, messageNoSID)
		return
	}
	s.touch(g.now(), 1)
	defer func() { s.touch(g.now(), -1) }()

	batch := make([]json.RawMessage, 0, 8)
	timer := time.NewTimer(g.cfg.PollWait)
	defer timer.Stop()

	select {
	case msg := <-s.conn.Outbound():
		batch = append(batch, msg)
	case <-s.conn.Done():
		httputil.WriteNotFound(w, messageNoSID)
		return
	case <-r.Context().Done():
		return
	case <-timer.C:
	}

drain:
	for len(batch) < maxPollBatch {
		select {
		case msg := <-s.conn.Outbound():
			batch = append(batch, msg)
		default:
			break drain
		}
	}

	_ = httputil.WriteJSON(w, http.StatusOK, batch)
}

func (g *Gateway) pollSend(w http.ResponseWriter, r *http.Request, sid string) {
	s, ok := g.session(sid)
	if !ok {
		httputil.WriteNotFound(w, messageNoSID)
		return
	}
	s.touch(g.now(), 0)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPollBody))
	if err != nil {
		httputil.WriteBadRequest(w, messageBadBody)
		return
	}
	frames, err := decodeFrames(body)
	if err != nil {
		httputil.WriteBadRequest(w, messageBadBody)
		return
	}

	for _, frame := range frames {
		_ = g.router.Dispatch(s.ctx, s.conn, frame)
	}
	httputil.WriteNoContent(w)
}

func (g *Gateway) pollClose(w http.ResponseWriter, sid string) {
	g.mu.Lock()
	s, ok := g.polls[sid]
	delete(g.polls, sid)
	g.mu.Unlock()

	if !ok {
		httputil.WriteNotFound(w, messageNoSID)
		return
	}
	g.router.Disconnect(s.ctx, s.conn)
	httputil.WriteNoContent(w)
}

// reapLoop disconnects polling sessions that went quiet. This is transport
// liveness only; identities never expire here.
func (g *Gateway) reapLoop() {
	defer g.wg.Done()

	ticker := time.NewTicker(g.cfg.PollIdleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-g.done:
			return
		case <-ticker.C:
			g.reapIdle()
		}
	}
}

func (g *Gateway) reapIdle() int {
	now := g.now()

	g.mu.Lock()
	var idle []*pollSession
	for sid, s := range g.polls {
		if s.idleSince(now, g.cfg.PollIdleTimeout) {
			idle = append(idle, s)
			delete(g.polls, sid)
		}
	}
	g.mu.Unlock()

	for _, s := range idle {
		g.logger.Debug("reaping idle polling session", "conn", s.conn.ID())
		g.router.Disconnect(s.ctx, s.conn)
	}
	return len(idle)
}

func decodeFrames(body []byte) ([]realtime.Frame, error) {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		var frames []realtime.Frame
		if err := json.Unmarshal(body, &frames); err != nil {
			return nil, err
		}
		return frames, nil
	}
	var frame realtime.Frame
	if err := json.Unmarshal(body, &frame); err != nil {
		return nil, err
	}
	return []realtime.Frame{frame}, nil
}

func writeFrame(w http.ResponseWriter, status int, event string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(encodeFrame(event, data))
}
