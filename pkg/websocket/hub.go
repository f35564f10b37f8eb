package websocket

import (
	"sync"

	"go.uber.org/zap"

	"github.com/beaconchat/beacon/pkg/logging"
	"github.com/beaconchat/beacon/pkg/metrics"
	"github.com/beaconchat/beacon/pkg/relay"
)

// Client represents one connected WebSocket client
type Client struct {
	ID   string
	Hub  *Hub
	Conn *Conn
	Send chan *relay.Event
}

// Hub maintains the set of live connections and moves outbound events to
// them. It knows nothing about presence or routing; deliveries arrive
// already addressed. Registration is synchronous so a client is always in
// the map before any delivery addressed to it can be processed.
type Hub struct {
	// Map of connection ID to client
	clients map[string]*Client

	// Channel of addressed deliveries, drained by one loop
	deliveries chan delivery

	// Mutex for protecting the clients map
	mu sync.RWMutex

	// Stopped flag
	stopped bool

	log     *logging.Logger
	metrics *metrics.Metrics
}

// delivery is one addressed outbound event inside the hub
type delivery struct {
	audience relay.Audience
	target   string
	event    *relay.Event
}

// NewHub creates a new hub
func NewHub(log *logging.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		deliveries: make(chan delivery, 1024),
		log:        log,
		metrics:    m,
	}
}

// Start begins the hub's event loop
func (h *Hub) Start() {
	go h.run()
	h.log.Info("hub started")
}

// Stop closes every client connection and shuts the hub down. The delivery
// channel stays open so late pumps draining out cannot panic; the stopped
// flag makes every queueing call a no-op.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return
	}
	h.stopped = true

	for id, client := range h.clients {
		client.Conn.Close()
		close(client.Send)
		delete(h.clients, id)
	}

	h.metrics.ConnectionsActive.Set(0)
	h.log.Info("hub stopped")
}

// isStopped reports whether Stop has run
func (h *Hub) isStopped() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stopped
}

// run drains the delivery channel
func (h *Hub) run() {
	for d := range h.deliveries {
		h.deliver(d)
	}
}

// Register adds a client to the hub. Runs synchronously so the client is
// visible to deliver before any event routed for it reaches the loop.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		client.Conn.Close()
		return
	}

	if existing, ok := h.clients[client.ID]; ok {
		// Cannot happen with uuid ids; close the old one if it somehow does
		existing.Conn.Close()
	}

	h.clients[client.ID] = client
	h.metrics.ConnectionsActive.Set(float64(len(h.clients)))
	h.log.Debug("client registered", zap.String("conn", client.ID), zap.Int("total", len(h.clients)))
}

// Unregister removes a client from the hub and closes its send channel
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return
	}

	delete(h.clients, client.ID)
	close(client.Send)
	h.metrics.ConnectionsActive.Set(float64(len(h.clients)))
	h.log.Debug("client unregistered", zap.String("conn", client.ID), zap.Int("total", len(h.clients)))
}

// deliver fans an addressed event out to its audience
func (h *Hub) deliver(d delivery) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	switch d.audience {
	case relay.AudienceConn:
		client, ok := h.clients[d.target]
		if !ok {
			// Stale index binding or a recipient that vanished mid-route;
			// best-effort delivery drops it
			h.log.Debug("delivery target gone", zap.String("conn", d.target), zap.String("type", d.event.Type))
			return
		}
		h.send(client, d.event)

	case relay.AudienceAll:
		for _, client := range h.clients {
			h.send(client, d.event)
		}

	case relay.AudienceAllExcept:
		for id, client := range h.clients {
			if id == d.target {
				continue
			}
			h.send(client, d.event)
		}
	}
}

// send queues an event on a client without blocking the hub loop
func (h *Hub) send(client *Client, ev *relay.Event) {
	select {
	case client.Send <- ev:
	default:
		h.log.Warn("dropping event, send channel full", zap.String("conn", client.ID), zap.String("type", ev.Type))
	}
}

// Dispatch hands a batch of router deliveries to the hub. Safe to call
// after state mutation has committed; never blocks on a slow recipient.
func (h *Hub) Dispatch(deliveries []relay.Delivery) {
	if h.isStopped() {
		return
	}
	for i := range deliveries {
		d := deliveries[i]
		select {
		case h.deliveries <- delivery{audience: d.Audience, target: d.Target, event: &d.Event}:
		default:
			h.log.Warn("delivery channel full, dropping", zap.String("type", d.Event.Type))
		}
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetClient returns a client by connection id
func (h *Hub) GetClient(connID string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[connID]
}
