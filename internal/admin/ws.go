package admin

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ocx/greyd/internal/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	wsWriteTimeout = 5 * time.Second
	wsPingInterval = 30 * time.Second
)

// Hub fans out accounting events to every connected /ws/verdicts client,
// subscribing once to the shared event bus and replicating to each
// socket's own buffered channel so one slow client can't stall the rest.
type Hub struct {
	bus *events.EventBus

	mu      sync.Mutex
	clients map[chan *events.CloudEvent]struct{}
}

// NewHub subscribes to every event on bus and starts fanning it out.
func NewHub(bus *events.EventBus) *Hub {
	h := &Hub{bus: bus, clients: make(map[chan *events.CloudEvent]struct{})}
	go h.pump()
	return h
}

func (h *Hub) pump() {
	ch := h.bus.Subscribe()
	for ev := range ch {
		h.mu.Lock()
		for client := range h.clients {
			select {
			case client <- ev:
			default:
				// Slow client: drop rather than block the fan-out.
			}
		}
		h.mu.Unlock()
	}
}

// ServeWS upgrades the connection and streams events until the client
// disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("admin: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	client := make(chan *events.CloudEvent, 32)
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.clients, client)
		h.mu.Unlock()
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-client:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
