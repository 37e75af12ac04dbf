// Package live streams session updates to WebSocket clients.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/verte-zerg/pulse/internal/session"
)

const (
	writeTimeout = 200 * time.Millisecond
	sendBuffer   = 16
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// client owns one connection. Only its writer goroutine touches conn for writes.
type client struct {
	conn *websocket.Conn
	send chan []byte
	quit chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.quit)
		_ = c.conn.Close()
	})
}

// Hub tracks connected clients and fans messages out to them.
type Hub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]*client
	last  []byte
	log   logrus.FieldLogger
}

// NewHub returns an empty hub.
func NewHub(log logrus.FieldLogger) *Hub {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Hub{conns: make(map[*websocket.Conn]*client), log: log}
}

// add registers conn and queues the latest message for it.
func (h *Hub) add(conn *websocket.Conn) *client {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := &client{conn: conn, send: make(chan []byte, sendBuffer), quit: make(chan struct{})}
	if h.last != nil {
		c.send <- h.last
	}
	h.conns[conn] = c
	return c
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	delete(h.conns, c.conn)
	h.mu.Unlock()
	c.close()
}

func (h *Hub) snapshot() []*client {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.conns))
	for _, c := range h.conns {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	return clients
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Broadcast queues a text message for every client without blocking. A client
// whose queue is full is disconnected.
func (h *Hub) Broadcast(b []byte) {
	h.mu.Lock()
	h.last = b
	h.mu.Unlock()
	for _, c := range h.snapshot() {
		select {
		case c.send <- b:
		case <-c.quit:
		default:
			h.log.Warn("dropping slow live client")
			h.drop(c)
		}
	}
}

func (h *Hub) writePump(c *client) {
	for {
		select {
		case b := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				h.drop(c)
				return
			}
		case <-c.quit:
			return
		}
	}
}

// Publish encodes an update and broadcasts it. It is meant to be registered as
// a session observer.
func (h *Hub) Publish(u session.Update) {
	b, err := json.Marshal(u)
	if err != nil {
		h.log.WithError(err).Warn("failed to encode update")
		return
	}
	h.Broadcast(b)
}

// ServeWS upgrades the request and keeps the client registered until it disconnects.
// New clients immediately receive the latest update.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := h.add(conn)
	defer h.drop(c)
	go h.writePump(c)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Handler routes /ws and /healthz.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.ServeWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "clients": h.Clients()})
	})
	return mux
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (h *Hub) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	server := &http.Server{Handler: h.Handler(), ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		h.log.WithField("addr", ln.Addr().String()).Info("live server running")
		errCh <- server.Serve(ln)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, c := range h.snapshot() {
		h.drop(c)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	h.log.Info("live server stopped")
	return nil
}
