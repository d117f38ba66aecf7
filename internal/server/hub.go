package server

import (
	"html/template"
	"net/http"
	"sync"
	"time"

	"github.com/bryan-buckman/rssagg/internal/logger"
	"github.com/bryan-buckman/rssagg/internal/render"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
	clientBuffer   = 64
)

// RegionMessage is pushed to browsers when a region is re-rendered.
type RegionMessage struct {
	Region string `json:"region"`
	HTML   string `json:"html"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// Hub fans rendered regions out to connected websocket clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]chan RegionMessage
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]chan RegionMessage)}
}

// Broadcast queues a region update for every client. Clients whose queue
// is full miss the update.
func (h *Hub) Broadcast(region render.Region, html template.HTML) {
	msg := RegionMessage{Region: string(region), HTML: string(html)}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, client := range h.clients {
		select {
		case client <- msg:
		default:
			logger.Warnf("[hub] client %s queue full, dropping %s update", id, region)
		}
	}
}

// AddClient registers a client and returns its queue.
func (h *Hub) AddClient(key string) <-chan RegionMessage {
	ch := make(chan RegionMessage, clientBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[key] = ch
	logger.Debugf("[hub] client %s connected (%d total)", key, len(h.clients))
	return ch
}

// RemoveClient unregisters a client and closes its queue.
func (h *Hub) RemoveClient(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.clients[key]; ok {
		close(ch)
		delete(h.clients, key)
		logger.Debugf("[hub] client %s disconnected (%d total)", key, len(h.clients))
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown disconnects every client.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for key, ch := range h.clients {
		close(ch)
		delete(h.clients, key)
	}
}

// ServeWS upgrades the request and streams region updates until either side
// closes the connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnf("[hub] upgrade: %v", err)
		return
	}
	defer conn.Close()

	key := uuid.NewString()
	queue := h.AddClient(key)
	defer h.RemoveClient(key)

	// The browser never sends data; reading only tracks pongs and close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logger.Warnf("[hub] unexpected close: %v", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-queue:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				logger.Debugf("[hub] write: %v", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
