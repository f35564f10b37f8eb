package relay

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/beaconchat/beacon/pkg/logging"
	"github.com/beaconchat/beacon/pkg/metrics"
	"github.com/beaconchat/beacon/pkg/presence"
)

// Router turns one inbound event into zero or more outbound deliveries.
// It owns all presence mutations; the transport only moves frames. Handlers
// mutate the store first and build deliveries after, so no send ever happens
// inside the store's critical section. Malformed or out-of-order events are
// dropped with a log line, never an error to the client: the server must
// survive any client event sequence.
type Router struct {
	store   *presence.Store
	log     *logging.Logger
	metrics *metrics.Metrics

	// now is swappable for tests
	now func() time.Time
}

// NewRouter creates a router over the given presence store
func NewRouter(store *presence.Store, log *logging.Logger, m *metrics.Metrics) *Router {
	return &Router{
		store:   store,
		log:     log,
		metrics: m,
		now:     time.Now,
	}
}

// Route handles one inbound event from a connection
func (r *Router) Route(connID string, in Inbound) []Delivery {
	r.metrics.EventsTotal.WithLabelValues(in.Type).Inc()

	switch in.Type {
	case EventUserJoin:
		return r.handleJoin(connID, in.Data)
	case EventChatMessage:
		return r.handleChatMessage(connID, in.Data)
	case EventTyping:
		return r.handleTyping(connID, in.Data, false)
	case EventStopTyping:
		return r.handleTyping(connID, in.Data, true)
	default:
		r.metrics.EventsDropped.WithLabelValues(metrics.DropUnknownEvent).Inc()
		r.log.Debug("dropping unknown event", zap.String("conn", connID), zap.String("type", in.Type))
		return nil
	}
}

// handleJoin registers the connection, replies with the full presence
// snapshot and announces the newcomer to everyone else. Usernames are not
// checked for uniqueness; the most recent join under a name owns routing.
func (r *Router) handleJoin(connID string, data json.RawMessage) []Delivery {
	var p JoinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		r.metrics.EventsDropped.WithLabelValues(metrics.DropMalformedPayload).Inc()
		r.log.Warn("dropping malformed join", zap.String("conn", connID), zap.Error(err))
		return nil
	}

	// Sweep before snapshotting so an expired record never reaches the
	// joiner even when the periodic tick is behind.
	r.SweepOnce()

	rec, err := r.store.Join(connID, p.Username, p.ProfileColor, r.now())
	if err != nil {
		if errors.Is(err, presence.ErrDuplicateConnection) {
			// Transport bug: a second join on a live connection. Reject it
			// and keep the existing record.
			r.log.Warn("rejecting duplicate join", zap.String("conn", connID), zap.String("username", p.Username))
		} else {
			r.log.Error("join failed", zap.String("conn", connID), zap.Error(err))
		}
		return nil
	}

	r.metrics.PresenceRecords.Set(float64(r.store.Len()))
	r.log.Info("user joined",
		zap.String("conn", connID),
		zap.String("username", rec.Username))

	return []Delivery{
		ToConn(connID, EventExistingUsers, r.store.Snapshot()),
		ToAllExcept(connID, EventUserJoined, rec),
	}
}

// handleChatMessage forwards a directed message to its resolved recipient
// and unconditionally confirms the send to the sender. Delivery is
// best-effort: an unknown or offline recipient drops the forward silently.
func (r *Router) handleChatMessage(connID string, data json.RawMessage) []Delivery {
	var p ChatMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		r.metrics.EventsDropped.WithLabelValues(metrics.DropMalformedPayload).Inc()
		r.log.Warn("dropping malformed message", zap.String("conn", connID), zap.Error(err))
		return nil
	}

	sender, ok := r.store.Get(connID)
	if !ok {
		// Message before join completed; drop, never crash
		r.metrics.EventsDropped.WithLabelValues(metrics.DropUnknownConnection).Inc()
		r.log.Debug("dropping message from unregistered connection", zap.String("conn", connID))
		return nil
	}

	timestamp := r.now()
	deliveries := make([]Delivery, 0, 2)

	if targetID, resolved := r.store.Resolve(p.To); resolved {
		r.metrics.MessagesRouted.WithLabelValues(metrics.OutcomeDelivered).Inc()
		deliveries = append(deliveries, ToConn(targetID, EventMessage, MessagePayload{
			From:         sender.Username,
			Message:      p.Message,
			Timestamp:    timestamp,
			ProfileColor: sender.ProfileColor,
		}))
	} else {
		r.metrics.MessagesRouted.WithLabelValues(metrics.OutcomeUnresolved).Inc()
		r.log.Debug("recipient unresolved",
			zap.String("from", sender.Username),
			zap.String("to", p.To))
	}

	// The ack does not depend on whether the forward happened
	deliveries = append(deliveries, ToConn(connID, EventMessageSent, MessageSentPayload{
		To:        p.To,
		Message:   p.Message,
		Timestamp: timestamp,
	}))

	r.log.Debug("message routed",
		zap.String("from", sender.Username),
		zap.String("to", p.To))
	return deliveries
}

// handleTyping forwards a typing or stop-typing notice to the one resolved
// recipient. No-op when the recipient or the sender is unknown.
func (r *Router) handleTyping(connID string, data json.RawMessage, stop bool) []Delivery {
	var p TypingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		r.metrics.EventsDropped.WithLabelValues(metrics.DropMalformedPayload).Inc()
		r.log.Warn("dropping malformed typing notice", zap.String("conn", connID), zap.Error(err))
		return nil
	}

	sender, ok := r.store.Get(connID)
	if !ok {
		r.metrics.EventsDropped.WithLabelValues(metrics.DropUnknownConnection).Inc()
		return nil
	}

	targetID, resolved := r.store.Resolve(p.To)
	if !resolved {
		return nil
	}

	typ := EventUserTyping
	if stop {
		typ = EventUserStopTyping
	}
	return []Delivery{ToConn(targetID, typ, TypingNoticePayload{From: sender.Username})}
}

// Disconnect marks the connection offline and announces the departure to
// every connection. The record stays visible in snapshots as "last seen at
// T" until the grace period elapses; the sweeper removes it.
func (r *Router) Disconnect(connID string) []Delivery {
	rec, err := r.store.MarkOffline(connID, r.now())
	if err != nil {
		// A connection that never joined has nothing to announce
		r.log.Debug("disconnect for unregistered connection", zap.String("conn", connID))
		return nil
	}

	r.log.Info("user left",
		zap.String("conn", connID),
		zap.String("username", rec.Username))

	return []Delivery{
		ToAll(EventUserLeft, UserLeftPayload{
			ID:       rec.ConnID,
			Username: rec.Username,
			LastSeen: rec.LastSeen,
		}),
	}
}

// RunSweeper removes expired offline records on a fixed tick until the
// context is canceled. One shared ticker instead of a timer per
// disconnect; per-record timers do not survive high churn.
func (r *Router) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.SweepOnce()
		}
	}
}

// SweepOnce runs a single purge pass
func (r *Router) SweepOnce() {
	purged := r.store.PurgeExpired(r.now())
	if len(purged) == 0 {
		return
	}

	r.metrics.RecordsPurged.Add(float64(len(purged)))
	r.metrics.PresenceRecords.Set(float64(r.store.Len()))
	for _, rec := range purged {
		r.log.Info("purged expired presence record",
			zap.String("conn", rec.ConnID),
			zap.String("username", rec.Username),
			zap.Time("lastSeen", rec.LastSeen))
	}
}
