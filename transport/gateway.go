package transport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/MrEthical07/sessiongate"
	"github.com/MrEthical07/sessiongate/internal/httputil"
	"github.com/MrEthical07/sessiongate/realtime"
	"github.com/gorilla/websocket"
)

// Handshake reply events.
const (
	EventConnect      = "connect"
	EventConnectError = "connect_error"
)

// Config tunes both transports. Zero values select defaults.
type Config struct {
	// HandshakeTimeout bounds how long a websocket client may take to send
	// its connect frame.
	HandshakeTimeout time.Duration
	WriteWait        time.Duration
	PongWait         time.Duration
	MaxMessageSize   int64
	// PollWait is how long a polling GET waits for frames.
	PollWait time.Duration
	// PollIdleTimeout disconnects polling sessions that stop polling.
	PollIdleTimeout time.Duration
	// AllowedOrigins lists origins accepted for websocket upgrades. Empty or
	// "*" accepts any origin.
	AllowedOrigins []string
}

func (c Config) withDefaults() Config {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 5 * time.Second
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 8192
	}
	if c.PollWait <= 0 {
		c.PollWait = 25 * time.Second
	}
	if c.PollIdleTimeout <= 0 {
		c.PollIdleTimeout = 60 * time.Second
	}
	return c
}

// Gateway serves the socket endpoint.
type Gateway struct {
	router   *realtime.Router
	cfg      Config
	logger   *slog.Logger
	upgrader websocket.Upgrader
	now      func() time.Time

	mu      sync.Mutex
	polls   map[string]*pollSession
	sockets map[*realtime.Conn]struct{}

	wg        sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once
}

// NewGateway starts the polling reaper. Call Close to stop it and drop every
// polling session.
func NewGateway(router *realtime.Router, cfg Config, logger *slog.Logger) *Gateway {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	g := &Gateway{
		router:  router,
		cfg:     cfg,
		logger:  logger.With("component", "gateway"),
		now:     time.Now,
		polls:   make(map[string]*pollSession),
		sockets: make(map[*realtime.Conn]struct{}),
		done:    make(chan struct{}),
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.checkOrigin,
	}

	g.wg.Add(1)
	go g.reapLoop()
	return g
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		g.serveWebSocket(w, r)
		return
	}
	g.servePolling(w, r)
}

// Close stops the reaper and disconnects every connection. WebSocket clients
// receive a normal close frame.
func (g *Gateway) Close() {
	g.closeOnce.Do(func() {
		close(g.done)
		g.wg.Wait()

		g.mu.Lock()
		sessions := make([]*pollSession, 0, len(g.polls))
		for sid, s := range g.polls {
			sessions = append(sessions, s)
			delete(g.polls, sid)
		}
		sockets := make([]*realtime.Conn, 0, len(g.sockets))
		for c := range g.sockets {
			sockets = append(sockets, c)
		}
		g.mu.Unlock()

		for _, s := range sessions {
			g.router.Disconnect(s.ctx, s.conn)
		}
		for _, c := range sockets {
			g.router.Disconnect(context.Background(), c)
		}
	})
}

func (g *Gateway) trackSocket(conn *realtime.Conn, live bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if live {
		g.sockets[conn] = struct{}{}
	} else {
		delete(g.sockets, conn)
	}
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	if len(g.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range g.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

type connectData struct {
	Auth struct {
		Token string `json:"token"`
	} `json:"auth"`
}

type connectAck struct {
	SID string `json:"sid"`
}

type connectErrorData struct {
	Message string `json:"message"`
}

func handshakeFor(r *http.Request, auth connectData) sessiongate.Handshake {
	return sessiongate.Handshake{
		AuthToken:  auth.Auth.Token,
		QueryToken: r.URL.Query().Get("token"),
		RemoteAddr: httputil.ClientIP(r),
	}
}

// handshakeMessage maps a Connect failure to the message sent to the client.
func handshakeMessage(err error) string {
	var herr *sessiongate.HandshakeError
	if errors.As(err, &herr) {
		return herr.Message
	}
	return sessiongate.HandshakeInvalidToken
}

func encodeFrame(event string, data any) []byte {
	raw, _ := json.Marshal(data)
	out, _ := json.Marshal(realtime.Frame{Event: event, Data: raw})
	return out
}
