package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/MrEthical07/sessiongate/realtime"
	"github.com/gorilla/websocket"
)

func (g *Gateway) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	defer ws.Close()

	ws.SetReadLimit(g.cfg.MaxMessageSize)

	auth, ok := g.readConnectFrame(ws)
	if !ok {
		return
	}

	ctx := r.Context()
	conn, err := g.router.Connect(ctx, handshakeFor(r, auth))
	if err != nil {
		g.writeFinal(ws, encodeFrame(EventConnectError, connectErrorData{Message: handshakeMessage(err)}))
		return
	}
	g.trackSocket(conn, true)
	defer g.trackSocket(conn, false)

	_ = ws.SetWriteDeadline(time.Now().Add(g.cfg.WriteWait))
	if err := ws.WriteMessage(websocket.TextMessage, encodeFrame(EventConnect, connectAck{SID: conn.ID()})); err != nil {
		g.router.Disconnect(ctx, conn)
		return
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		g.writePump(ws, conn)
	}()

	g.readPump(ctx, ws, conn)
	g.router.Disconnect(ctx, conn)
	<-writerDone
}

// readConnectFrame waits for the client's connect frame. Any other first
// frame counts as a connect without auth so ?token= still applies.
func (g *Gateway) readConnectFrame(ws *websocket.Conn) (connectData, bool) {
	var auth connectData

	_ = ws.SetReadDeadline(time.Now().Add(g.cfg.HandshakeTimeout))
	_, message, err := ws.ReadMessage()
	if err != nil {
		g.logger.Debug("no connect frame", "error", err)
		return auth, false
	}

	var frame realtime.Frame
	if err := json.Unmarshal(message, &frame); err == nil && frame.Event == EventConnect && len(frame.Data) > 0 {
		_ = json.Unmarshal(frame.Data, &auth)
	}
	return auth, true
}

func (g *Gateway) readPump(ctx context.Context, ws *websocket.Conn, conn *realtime.Conn) {
	_ = ws.SetReadDeadline(time.Now().Add(g.cfg.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(g.cfg.PongWait))
	})

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				g.logger.Warn("websocket read error", "conn", conn.ID(), "error", err)
			}
			return
		}

		var frame realtime.Frame
		if err := json.Unmarshal(message, &frame); err != nil {
			g.logger.Debug("bad frame", "conn", conn.ID(), "error", err)
			continue
		}
		// Rejected events are counted by the router; the connection stays.
		_ = g.router.Dispatch(ctx, conn, frame)
	}
}

func (g *Gateway) writePump(ws *websocket.Conn, conn *realtime.Conn) {
	ticker := time.NewTicker(g.cfg.PongWait * 9 / 10)
	defer ticker.Stop()

	for {
		select {
		case message := <-conn.Outbound():
			_ = ws.SetWriteDeadline(time.Now().Add(g.cfg.WriteWait))
			if err := ws.WriteMessage(websocket.TextMessage, message); err != nil {
				g.logger.Debug("websocket write failed", "conn", conn.ID(), "error", err)
				_ = ws.Close()
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(g.cfg.WriteWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = ws.Close()
				return
			}
		case <-conn.Done():
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(g.cfg.WriteWait))
			return
		}
	}
}

// writeFinal sends message and closes the socket politely.
func (g *Gateway) writeFinal(ws *websocket.Conn, message []byte) {
	deadline := time.Now().Add(g.cfg.WriteWait)
	_ = ws.SetWriteDeadline(deadline)
	if err := ws.WriteMessage(websocket.TextMessage, message); err != nil {
		return
	}
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication failed"),
		deadline)
}
