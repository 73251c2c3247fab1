// Package streaming implements the optional WebSocket activity stream
// from SPEC_FULL.md's DOMAIN STACK section, grounded on the teacher's
// Hub/Client websocket layer
// (internal/orchestrator/streaming/hub.go, handlers.go): a central Hub
// fans broadcast messages out to per-subject-subscribed clients. Here
// the subject is a project id and the broadcast source is
// internal/eventbus rather than an in-process call, so the Hub lazily
// subscribes to eventbus.ActivitySubject(projectID) the moment the first
// client asks for it and unsubscribes when the last one leaves.
package streaming

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Sxriptor/colabify-app-sub001/internal/common/logger"
	"github.com/Sxriptor/colabify-app-sub001/internal/eventbus"
)

// Client is one connected WebSocket subscriber.
type Client struct {
	ID      string
	conn    *websocket.Conn
	send    chan []byte
	hub     *Hub
	mu      sync.RWMutex
	project string
	log     *logger.Logger
}

// NewClient creates a Client bound to conn, not yet subscribed to any
// project.
func NewClient(id string, conn *websocket.Conn, hub *Hub, log *logger.Logger) *Client {
	return &Client{
		ID:   id,
		conn: conn,
		send: make(chan []byte, 256),
		hub:  hub,
		log:  log.With(zap.String("client_id", id)),
	}
}

// Hub multiplexes eventbus activity events out to connected clients,
// subscribing to a project's subject on-demand.
type Hub struct {
	bus eventbus.Bus
	log *logger.Logger

	mu            sync.Mutex
	clients       map[*Client]bool
	byProject     map[string]map[*Client]bool
	subscriptions map[string]eventbus.Subscription

	register   chan *Client
	unregister chan *Client
}

// NewHub creates a Hub that sources broadcasts from bus.
func NewHub(bus eventbus.Bus, log *logger.Logger) *Hub {
	return &Hub{
		bus:           bus,
		log:           log.With(zap.String("component", "streaming-hub")),
		clients:       make(map[*Client]bool),
		byProject:     make(map[string]map[*Client]bool),
		subscriptions: make(map[string]eventbus.Subscription),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
	}
}

// Run processes register/unregister requests until ctx is done, at
// which point every client connection is closed and every eventbus
// subscription released.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
			}
			h.clients = make(map[*Client]bool)
			h.byProject = make(map[string]map[*Client]bool)
			for _, sub := range h.subscriptions {
				_ = sub.Unsubscribe()
			}
			h.subscriptions = make(map[string]eventbus.Subscription)
			h.mu.Unlock()
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.removeClient(c)
		}
	}
}

// Register adds client to the hub.
func (h *Hub) Register(c *Client) { h.register <- c }

// Unregister removes client from the hub and its project subscription.
func (h *Hub) Unregister(c *Client) { h.unregister <- c }

// Subscribe moves client onto projectID's broadcast list, arming an
// eventbus subscription for that subject if this is the first
// subscriber.
func (h *Hub) Subscribe(c *Client, projectID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c.mu.Lock()
	c.project = projectID
	c.mu.Unlock()

	set, ok := h.byProject[projectID]
	if !ok {
		set = make(map[*Client]bool)
		h.byProject[projectID] = set
	}
	set[c] = true

	if _, armed := h.subscriptions[projectID]; armed {
		return
	}
	subject := eventbus.ActivitySubject(projectID)
	sub, err := h.bus.Subscribe(subject, func(_ context.Context, event *eventbus.Event) error {
		h.broadcast(projectID, event)
		return nil
	})
	if err != nil {
		h.log.Warn("failed to subscribe to activity subject", zap.String("project_id", projectID), zap.Error(err))
		return
	}
	h.subscriptions[projectID] = sub
}

func (h *Hub) broadcast(projectID string, event *eventbus.Event) {
	data, err := marshalEvent(event)
	if err != nil {
		h.log.Warn("failed to marshal activity event", zap.Error(err))
		return
	}

	h.mu.Lock()
	clients := make([]*Client, 0, len(h.byProject[projectID]))
	for c := range h.byProject[projectID] {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		select {
		case c.send <- data:
		default:
			h.removeClient(c)
		}
	}
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)

	c.mu.RLock()
	projectID := c.project
	c.mu.RUnlock()
	if projectID == "" {
		return
	}
	set, ok := h.byProject[projectID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) > 0 {
		return
	}
	delete(h.byProject, projectID)
	if sub, ok := h.subscriptions[projectID]; ok {
		_ = sub.Unsubscribe()
		delete(h.subscriptions, projectID)
	}
}
