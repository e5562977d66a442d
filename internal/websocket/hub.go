// internal/websocket/hub.go
package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
)

// Message types sent to dashboards.
const (
	TypeData         = "data"
	TypeAlert        = "alert"
	TypeNotification = "notification"
	TypeHistory      = "history"
)

// Message is the envelope of everything written to a client.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Hub maintains the set of active clients and broadcasts messages.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte  // Channel for messages to broadcast
	register   chan *Client // Channel for registering clients
	unregister chan *Client // Channel for unregistering clients
	done       chan struct{}
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		done:       make(chan struct{}),
	}
}

// Run serves the hub until ctx is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				close(client.Send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Printf("[ws] client registered: %s", client.addr())

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				log.Printf("[ws] client unregistered: %s", client.addr())
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.Send <- message:
				default:
					// Assume client is blocked or gone, unregister
					log.Printf("[ws] client %s send buffer full, removing", client.addr())
					close(client.Send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// RegisterClient safely registers a new client to the hub
func (h *Hub) RegisterClient(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.Send)
	}
}

func (h *Hub) unregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues a message for every client. Messages are dropped when the
// queue is full so callers on the store dispatch path never block.
func (h *Hub) Broadcast(msgType string, payload interface{}) {
	messageBytes, err := json.Marshal(Message{Type: msgType, Payload: payload})
	if err != nil {
		log.Printf("[ws] error marshalling %s for broadcast: %v", msgType, err)
		return
	}
	select {
	case h.broadcast <- messageBytes:
	default:
		log.Printf("[ws] broadcast queue full, dropping %s message", msgType)
	}
}

// BroadcastData sends a reading update to all clients
func (h *Hub) BroadcastData(data interface{}) { h.Broadcast(TypeData, data) }

// BroadcastAlert sends an alert record to all clients
func (h *Hub) BroadcastAlert(alert interface{}) { h.Broadcast(TypeAlert, alert) }

// BroadcastNotification sends a device notification to all clients
func (h *Hub) BroadcastNotification(n interface{}) { h.Broadcast(TypeNotification, n) }
