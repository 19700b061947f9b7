// Package livefeed broadcasts accepted readings to websocket subscribers.
// The feed is write-only and best effort: a client that cannot keep up is
// disconnected rather than backpressuring the ingest path.
package livefeed

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/meshtel/ingest"
)

const (
	// Per-client send buffer. Broadcast drops the client when it is full.
	sendBufferSize = 64

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
)

// Feed is an http.Handler that upgrades connections to websocket and fans
// accepted-reading events out to every connected client.
type Feed struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool

	eventsSent     atomic.Int64
	clientsDropped atomic.Int64
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

var _ ingest.Feed = (*Feed)(nil)

// NewFeed creates an empty feed
func NewFeed(logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		logger: logger.With("component", "livefeed"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The feed carries no client-specific data; any origin may watch
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and keeps the connection until the client
// goes away or falls behind.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBufferSize)}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		_ = conn.Close()
		return
	}
	f.clients[c] = struct{}{}
	count := len(f.clients)
	f.mu.Unlock()

	f.logger.Info("client connected", "remote", r.RemoteAddr, "clients", count)

	go f.writePump(c)
	go f.readPump(c)
}

// Broadcast queues an event for every connected client. Never blocks: a
// client with a full buffer is dropped.
func (f *Feed) Broadcast(event ingest.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		f.logger.Error("event marshal failed", "error", err)
		return
	}

	f.mu.RLock()
	var slow []*client
	for c := range f.clients {
		select {
		case c.send <- data:
			f.eventsSent.Add(1)
		default:
			slow = append(slow, c)
		}
	}
	f.mu.RUnlock()

	for _, c := range slow {
		f.clientsDropped.Add(1)
		f.logger.Warn("dropping slow client", "remote", c.conn.RemoteAddr().String())
		f.remove(c)
	}
}

// ClientCount reports the number of connected clients
func (f *Feed) ClientCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.clients)
}

// Close disconnects all clients and rejects future ones.
func (f *Feed) Close() error {
	f.mu.Lock()
	f.closed = true
	clients := make([]*client, 0, len(f.clients))
	for c := range f.clients {
		clients = append(clients, c)
	}
	f.clients = make(map[*client]struct{})
	f.mu.Unlock()

	for _, c := range clients {
		close(c.send)
	}
	return nil
}

func (f *Feed) remove(c *client) {
	f.mu.Lock()
	_, ok := f.clients[c]
	if ok {
		delete(f.clients, c)
	}
	f.mu.Unlock()

	if ok {
		close(c.send)
	}
}

// writePump drains the client's send channel onto the wire, interleaving
// pings. Returns when the channel closes or a write fails.
func (f *Feed) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
					time.Now().Add(writeWait))
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				f.remove(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				f.remove(c)
				return
			}
		}
	}
}

// readPump discards inbound frames. It exists to process control frames and
// to notice the peer closing.
func (f *Feed) readPump(c *client) {
	defer f.remove(c)

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
