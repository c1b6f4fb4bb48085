package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"PairPilot/internal/domain/models"
	domrepo "PairPilot/internal/domain/repository"
	applogger "PairPilot/pkg/logger"
)

const (
	streamSendBuffer = 16
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = 30 * time.Second
)

// StreamHub fans finished selections out to websocket clients. A client
// whose buffer is full is disconnected rather than slowing the publisher.
type StreamHub struct {
	mu       sync.Mutex
	clients  map[*streamClient]struct{}
	closed   bool
	upgrader websocket.Upgrader
	l        *applogger.Logger
}

type streamClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewStreamHub accepts upgrades from origins; empty or "*" allows any.
func NewStreamHub(origins []string, l *applogger.Logger) *StreamHub {
	if l == nil {
		l = applogger.NewNop()
	}
	h := &StreamHub{clients: make(map[*streamClient]struct{}), l: l.Component("stream")}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || len(origins) == 0 || slices.Contains(origins, "*") || slices.Contains(origins, origin)
		},
	}
	return h
}

// ServeWS upgrades the request and blocks until the client goes away.
func (h *StreamHub) ServeWS(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already written the error response
		h.l.Debug("websocket upgrade failed", applogger.Error(err))
		return nil
	}
	cl := &streamClient{conn: conn, send: make(chan []byte, streamSendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	h.clients[cl] = struct{}{}
	h.mu.Unlock()

	go h.writePump(cl)
	h.readPump(cl)
	return nil
}

// PublishSelection broadcasts ev. It never blocks on a client.
func (h *StreamHub) PublishSelection(_ context.Context, ev models.SelectionEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for cl := range h.clients {
		select {
		case cl.send <- data:
		default:
			h.l.Warn("stream client too slow, disconnecting")
			h.dropLocked(cl)
		}
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *StreamHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *StreamHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for cl := range h.clients {
		h.dropLocked(cl)
	}
}

func (h *StreamHub) dropLocked(cl *streamClient) {
	if _, ok := h.clients[cl]; ok {
		delete(h.clients, cl)
		close(cl.send)
	}
}

func (h *StreamHub) drop(cl *streamClient) {
	h.mu.Lock()
	h.dropLocked(cl)
	h.mu.Unlock()
}

func (h *StreamHub) writePump(cl *streamClient) {
	ticker := time.NewTicker(streamPingPeriod)
	defer func() {
		ticker.Stop()
		_ = cl.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if !ok {
				_ = cl.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.drop(cl)
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.drop(cl)
				return
			}
		}
	}
}

// readPump only services control frames; clients have nothing to say.
func (h *StreamHub) readPump(cl *streamClient) {
	defer func() {
		h.drop(cl)
		_ = cl.conn.Close()
	}()
	_ = cl.conn.SetReadDeadline(time.Now().Add(streamPongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.l.Debug("stream client read error", applogger.Error(err))
			}
			return
		}
	}
}

var _ domrepo.SelectionPublisher = (*StreamHub)(nil)
