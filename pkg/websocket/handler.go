package websocket

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/beaconchat/beacon/pkg/config"
	"github.com/beaconchat/beacon/pkg/logging"
	"github.com/beaconchat/beacon/pkg/relay"
)

// ClientHandler upgrades HTTP requests and pumps frames between clients
// and the event router
type ClientHandler struct {
	hub    *Hub
	router *relay.Router
	log    *logging.Logger

	readDeadline  time.Duration
	writeDeadline time.Duration
	pingInterval  time.Duration
	sendBuffer    int
}

// NewClientHandler creates a handler serving the given hub and router
func NewClientHandler(hub *Hub, router *relay.Router, log *logging.Logger, cfg config.ServerConfig) *ClientHandler {
	return &ClientHandler{
		hub:           hub,
		router:        router,
		log:           log,
		readDeadline:  cfg.ReadTimeout,
		writeDeadline: cfg.WriteTimeout,
		pingInterval:  cfg.PingInterval,
		sendBuffer:    cfg.SendBuffer,
	}
}

// ServeHTTP handles WebSocket upgrades
func (h *ClientHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := UpgradeHTTP(w, r, h.readDeadline, h.writeDeadline)
	if err != nil {
		h.log.Warn("failed to upgrade connection", zap.Error(err))
		return
	}

	client := &Client{
		ID:   uuid.New().String(),
		Hub:  h.hub,
		Conn: conn,
		Send: make(chan *relay.Event, h.sendBuffer),
	}

	h.hub.Register(client)

	go h.readPump(client)
	go h.writePump(client)

	h.log.Debug("client connected",
		zap.String("conn", client.ID),
		zap.String("remote", conn.RemoteAddr()))
}

// readPump reads frames from the connection and feeds them to the router.
// When the connection drops, the router's disconnect deliveries go out
// before the client leaves the hub, so the departing client may harmlessly
// receive its own userLeft.
func (h *ClientHandler) readPump(client *Client) {
	defer func() {
		h.hub.Dispatch(h.router.Disconnect(client.ID))
		h.hub.Unregister(client)
		client.Conn.Close()
	}()

	for {
		in, err := client.Conn.ReadInbound()
		if err != nil {
			if errors.Is(err, ErrMalformedFrame) {
				h.log.Warn("skipping malformed frame", zap.String("conn", client.ID), zap.Error(err))
				continue
			}
			if IsUnexpectedClose(err) {
				h.log.Warn("client read error", zap.String("conn", client.ID), zap.Error(err))
			}
			return
		}

		h.hub.Dispatch(h.router.Route(client.ID, in))
	}
}

// writePump writes queued events to the connection and keeps it alive
// with pings
func (h *ClientHandler) writePump(client *Client) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case ev, ok := <-client.Send:
			if !ok {
				// Hub closed the channel
				return
			}

			if err := client.Conn.WriteEvent(ev); err != nil {
				// A failed send to one client is that client's problem only
				h.log.Debug("client write error", zap.String("conn", client.ID), zap.Error(err))
				return
			}

		case <-ticker.C:
			if err := client.Conn.Ping(); err != nil {
				h.log.Debug("client ping error", zap.String("conn", client.ID), zap.Error(err))
				return
			}
		}
	}
}
