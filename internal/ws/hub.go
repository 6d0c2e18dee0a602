// Package ws pushes submission events to connected admin dashboards.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"swish-forms/internal/dispatch"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	EntrySubmitted = "entry_submitted"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // admin routes are already token guarded
	},
}

// Client represents a connected WebSocket client
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub maintains the set of active clients and broadcasts events to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once
	mu         sync.Mutex
	log        *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		log:        log,
	}
}

// Run serves registrations and broadcasts until ctx ends. Connections
// arriving afterwards are closed immediately.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.stopOnce.Do(func() { close(h.done) })
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.log.Debug("WebSocket client registered")
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.log.Debug("WebSocket client unregistered")
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// ClientCount is the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// EntryEvent is the payload of EntrySubmitted.
type EntryEvent struct {
	EntryID  uint   `json:"entryId"`
	FormType string `json:"formType"`
	Email    string `json:"email,omitempty"`
}

// BroadcastEvent queues an event for every client. It never blocks; events
// are dropped while the queue is full.
func (h *Hub) BroadcastEvent(eventType string, data any) {
	payload, err := json.Marshal(Event{Type: eventType, Data: data})
	if err != nil {
		h.log.Warn("Error marshaling WS event", zap.Error(err))
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		h.log.Warn("WS broadcast queue full, dropping event", zap.String("type", eventType))
	}
}

// Register announces every stored submission to connected dashboards.
func (h *Hub) Register(bus *dispatch.Bus) {
	bus.OnContactSubmitted(func(_ context.Context, ev dispatch.ContactSubmitted) error {
		h.BroadcastEvent(EntrySubmitted, EntryEvent{EntryID: ev.EntryID, FormType: "contact", Email: ev.SenderEmail})
		return nil
	})
	bus.OnSubscriptionSubmitted(func(_ context.Context, ev dispatch.SubscriptionSubmitted) error {
		h.BroadcastEvent(EntrySubmitted, EntryEvent{EntryID: ev.EntryID, FormType: "subscription", Email: ev.Email})
		return nil
	})
}

func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade error", zap.Error(err))
		return
	}
	client := &Client{hub: h, conn: conn, send: make(chan []byte, 256)}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	for {
		// Clients only send pings or nothing.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
