// Package events pushes catalog changes to connected users over WebSocket.
package events

import (
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event types.
const (
	PhotoUploaded = "photo.uploaded"
	PhotoDeleted  = "photo.deleted"
	PhotoShared   = "photo.shared"
	PhotoUnshared = "photo.unshared"
	AlbumCreated  = "album.created"
	AlbumDeleted  = "album.deleted"
)

// Event is one message on the stream.
type Event struct {
	Type    string `json:"type"`
	PhotoID int64  `json:"photo_id,omitempty"`
	AlbumID int64  `json:"album_id,omitempty"`
	// Actor is the username that caused the event.
	Actor string `json:"actor,omitempty"`
	At    int64  `json:"at"`
}

// Publisher delivers events to users.
type Publisher interface {
	Publish(ev Event, userIDs ...int64)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(Event, ...int64) {}

const (
	sendBuffer = 16
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || sameHost(origin, r.Host)
	},
}

type client struct {
	userID int64
	conn   *websocket.Conn
	send   chan Event
}

// Hub tracks open connections per user.
type Hub struct {
	log *slog.Logger

	mu      sync.Mutex
	clients map[int64]map[*client]struct{}
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		log:     logger.With("component", "events"),
		clients: make(map[int64]map[*client]struct{}),
	}
}

// Publish queues ev for every connection of the given users. A connection
// whose buffer is full misses the event rather than stalling the caller.
func (h *Hub) Publish(ev Event, userIDs ...int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	seen := make(map[int64]bool, len(userIDs))
	for _, id := range userIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		for c := range h.clients[id] {
			select {
			case c.send <- ev:
			default:
				h.log.Warn("dropping event for slow client", "user_id", id, "type", ev.Type)
			}
		}
	}
}

// Connections returns the number of open connections for a user.
func (h *Hub) Connections(userID int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[userID])
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	if h.clients[c.userID] == nil {
		h.clients[c.userID] = make(map[*client]struct{})
	}
	h.clients[c.userID][c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if set, ok := h.clients[c.userID]; ok {
		if _, ok := set[c]; ok {
			delete(set, c)
			close(c.send)
		}
		if len(set) == 0 {
			delete(h.clients, c.userID)
		}
	}
	h.mu.Unlock()
}

// Disconnect closes every connection of a user.
func (h *Hub) Disconnect(userID int64) {
	h.mu.Lock()
	set := h.clients[userID]
	delete(h.clients, userID)
	h.mu.Unlock()

	for c := range set {
		close(c.send)
	}
}

// Serve upgrades the request and streams events for userID until the client
// goes away. The caller has already authenticated the request.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID int64) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade", "error", err)
		return
	}
	c := &client{userID: userID, conn: conn, send: make(chan Event, sendBuffer)}
	h.add(c)
	h.log.Debug("client connected", "user_id", userID)

	go h.writePump(c)
	h.readPump(c)
}

// readPump discards client messages and keeps the read deadline fresh.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("websocket read", "user_id", c.userID, "error", err)
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case ev, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				h.log.Debug("websocket write", "user_id", c.userID, "error", err)
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

// sameHost reports whether the Origin header names the host being served.
func sameHost(origin, host string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == host
}
