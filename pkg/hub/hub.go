// Package hub implements a channel-based fan-out for the dashboard's
// JSON event streams. Each WebSocket channel (state, conversation) gets
// its own hub; clients register on connect and receive every broadcast
// until they disconnect or fall behind.
package hub

import (
	"encoding/json"
	"sync"

	"github.com/clinicdesk/clinicvoice/internal/log"
)

// Hub maintains the set of active clients and fans broadcasts out to them.
type Hub struct {
	name string // for logging

	// When retain is set, the most recent broadcast is replayed to every
	// client on register, so a dashboard connecting mid-session starts
	// from the current state instead of waiting for the next change.
	retain   bool
	retained []byte

	clients map[*Client]bool

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	// Guards clients and retained; Run is the only writer but
	// ClientCount reads from other goroutines.
	mu sync.Mutex
}

// New creates a hub that delivers broadcasts to whoever is connected at
// send time.
func New(name string) *Hub {
	return newHub(name, false)
}

// NewRetained creates a hub that additionally replays the most recent
// broadcast to each client when it connects. The state channel uses this
// so the UI renders without waiting for the next store change.
func NewRetained(name string) *Hub {
	return newHub(name, true)
}

func newHub(name string, retain bool) *Hub {
	return &Hub{
		name:       name,
		retain:     retain,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run processes register, unregister, and broadcast events until the
// process exits. Start it in a goroutine before handing out clients.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			if h.retain && h.retained != nil {
				// A freshly created send buffer cannot be full yet.
				client.send <- h.retained
			}
			h.mu.Unlock()
			log.Debug("websocket client connected", "hub", h.name, "total", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			log.Debug("websocket client disconnected", "hub", h.name, "remaining", count)

		case data := <-h.broadcast:
			h.mu.Lock()
			if h.retain {
				h.retained = data
			}
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					// A full send buffer means the client stopped
					// draining; evict it rather than stall the rest.
					close(client.send)
					delete(h.clients, client)
					log.Warn("dropped slow websocket client", "hub", h.name)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues data for delivery to every connected client. It never
// blocks; if the hub's queue is full the message is dropped.
func (h *Hub) Broadcast(data []byte) {
	select {
	case h.broadcast <- data:
	default:
		log.Warn("broadcast channel full, dropping message", "hub", h.name)
	}
}

// BroadcastJSON encodes v and broadcasts the result.
func (h *Hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(data)
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
