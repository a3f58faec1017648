package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hooman734/stream-subscription-api/internal/stream"
)

// Websocket message types
const (
	MsgSnapshot = "snapshot"
	MsgEvent    = "event"
)

const (
	clientBuffer = 64
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
)

// WSMessage is the envelope of every websocket frame
type WSMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// SnapshotPayload lists the caller's sessions at connect time
type SnapshotPayload struct {
	Sessions []stream.SessionInfo `json:"sessions"`
}

// SubscriberRecorder receives the number of connected event clients
type SubscriberRecorder interface {
	SetEventSubscribers(count int)
}

type client struct {
	conn  *websocket.Conn
	owner int64
	send  chan []byte
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Broadcaster fans session events out to websocket clients. Each client
// only receives events for streams its user owns.
type Broadcaster struct {
	logger   *slog.Logger
	recorder SubscriberRecorder

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

// NewBroadcaster creates a broadcaster. recorder may be nil.
func NewBroadcaster(recorder SubscriberRecorder, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		logger:   logger,
		recorder: recorder,
		clients:  make(map[*client]struct{}),
	}
}

// Publish implements stream.Observer. It never blocks: a client whose
// buffer is full is disconnected.
func (b *Broadcaster) Publish(ev stream.Event) {
	data, err := json.Marshal(WSMessage{Type: MsgEvent, Payload: ev})
	if err != nil {
		b.logger.Error("Failed to encode event", slog.String("error", err.Error()))
		return
	}

	var slow []*client
	b.mu.RLock()
	for c := range b.clients {
		if c.owner != ev.Owner {
			continue
		}
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range slow {
		b.logger.Warn("Event client too slow, disconnecting",
			slog.Int64("user_id", c.owner),
		)
		b.removeClient(c)
	}
}

// Serve registers conn for owner, sends the snapshot and blocks until the
// client goes away.
func (b *Broadcaster) Serve(conn *websocket.Conn, owner int64, sessions []stream.SessionInfo) {
	c := &client{
		conn:  conn,
		owner: owner,
		send:  make(chan []byte, clientBuffer),
	}

	data, err := json.Marshal(WSMessage{Type: MsgSnapshot, Payload: SnapshotPayload{Sessions: sessions}})
	if err != nil {
		conn.Close()
		return
	}
	c.send <- data

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}
	b.clients[c] = struct{}{}
	count := len(b.clients)
	b.mu.Unlock()
	b.setSubscribers(count)

	go c.writePump()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	b.removeClient(c)
}

func (b *Broadcaster) removeClient(c *client) {
	b.mu.Lock()
	_, ok := b.clients[c]
	if ok {
		delete(b.clients, c)
		close(c.send)
	}
	count := len(b.clients)
	b.mu.Unlock()

	if ok {
		b.setSubscribers(count)
	}
}

// ClientCount returns the number of connected clients
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Close disconnects every client and rejects new ones
func (b *Broadcaster) Close() {
	b.mu.Lock()
	b.closed = true
	for c := range b.clients {
		delete(b.clients, c)
		close(c.send)
	}
	b.mu.Unlock()
	b.setSubscribers(0)
}

func (b *Broadcaster) setSubscribers(count int) {
	if b.recorder != nil {
		b.recorder.SetEventSubscribers(count)
	}
}

// originChecker allows configured origins, same-host requests and
// loopback origins. Requests without an Origin header are not browsers and
// pass.
func originChecker(allowed []string) func(*http.Request) bool {
	origins := make(map[string]bool, len(allowed))
	hosts := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		origins[o] = true
		if parsed, err := url.Parse(o); err == nil && parsed.Host != "" {
			hosts[parsed.Host] = true
		}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if origins[origin] {
			return true
		}

		parsed, err := url.Parse(origin)
		if err != nil || parsed.Host == "" {
			return false
		}
		host := parsed.Host
		if hosts[host] || host == r.Host {
			return true
		}

		hostname := parsed.Hostname()
		return hostname == "localhost" || hostname == "127.0.0.1" || hostname == "::1" ||
			strings.HasSuffix(hostname, ".localhost")
	}
}
