package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	writeWait = 2 * time.Second
	queueSize = 16
)

// Hub fans events out to connected websocket clients. BroadcastJSON only
// queues; Run owns every write, so a slow client never holds up a caller.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}

	queue chan []byte
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]struct{}),
		queue:   make(chan []byte, queueSize),
	}
}

func (h *Hub) Add(ws *websocket.Conn) {
	h.mu.Lock()
	h.clients[ws] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) Remove(ws *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, ws)
	h.mu.Unlock()
	_ = ws.Close()
}

// BroadcastJSON queues v for every client. It never blocks: when the queue
// is full the event is dropped.
func (h *Hub) BroadcastJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.WithError(err).Error("failed to marshal event")
		return
	}
	select {
	case h.queue <- b:
	default:
		log.WithField("component", "events").Warn("event queue full, dropping event")
	}
}

// Run writes queued events until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case b := <-h.queue:
			h.send(b)
		}
	}
}

// send writes b to a snapshot of the clients, outside mu, and drops the ones
// that fail.
func (h *Hub) send(b []byte) {
	h.mu.Lock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for ws := range h.clients {
		clients = append(clients, ws)
	}
	h.mu.Unlock()

	for _, ws := range clients {
		_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
			h.Remove(ws)
		}
	}
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
