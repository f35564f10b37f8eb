package presence

import (
	"errors"
	"time"
)

// Registry errors
var (
	// ErrDuplicateConnection indicates a join for a connection id that already
	// holds a record. The transport hands out unique ids, so this is a
	// transport bug, not a client mistake.
	ErrDuplicateConnection = errors.New("presence: duplicate connection")

	// ErrUnknownConnection indicates an operation referencing a connection id
	// with no record, e.g. an event arriving before the join completed.
	ErrUnknownConnection = errors.New("presence: unknown connection")
)

// Record describes one connection's display identity and online state.
// It is keyed by the transport connection id and lives from join until
// grace-period purge. JSON field names are wire names and must not change.
type Record struct {
	ConnID       string    `json:"id"`
	Username     string    `json:"username"`
	ProfileColor string    `json:"profileColor"`
	Online       bool      `json:"online"`
	LastSeen     time.Time `json:"lastSeen"`
}

// Registry holds one Record per connection. It is not safe for concurrent
// use on its own; Store serializes access.
type Registry struct {
	records map[string]Record
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{records: make(map[string]Record)}
}

// Add creates a record with Online=true and LastSeen=now.
// Returns ErrDuplicateConnection if the connection already has a record.
func (g *Registry) Add(connID, username, profileColor string, now time.Time) (Record, error) {
	if _, ok := g.records[connID]; ok {
		return Record{}, ErrDuplicateConnection
	}

	rec := Record{
		ConnID:       connID,
		Username:     username,
		ProfileColor: profileColor,
		Online:       true,
		LastSeen:     now,
	}
	g.records[connID] = rec
	return rec, nil
}

// Get returns the record for a connection, if any
func (g *Registry) Get(connID string) (Record, bool) {
	rec, ok := g.records[connID]
	return rec, ok
}

// MarkOffline sets Online=false and LastSeen=now. Idempotent: marking an
// already-offline record is a no-op and the earlier LastSeen is kept, so
// LastSeen never moves backwards.
func (g *Registry) MarkOffline(connID string, now time.Time) (Record, error) {
	rec, ok := g.records[connID]
	if !ok {
		return Record{}, ErrUnknownConnection
	}

	if !rec.Online {
		return rec, nil
	}

	rec.Online = false
	if now.After(rec.LastSeen) {
		rec.LastSeen = now
	}
	g.records[connID] = rec
	return rec, nil
}

// Snapshot returns every held record, keyed by connection id. Offline
// records that have not yet been purged are included so other clients can
// show "last seen at T".
func (g *Registry) Snapshot() map[string]Record {
	out := make(map[string]Record, len(g.records))
	for id, rec := range g.records {
		out[id] = rec
	}
	return out
}

// PurgeExpired removes every offline record whose LastSeen is at least
// grace ago and returns the removed records.
func (g *Registry) PurgeExpired(now time.Time, grace time.Duration) []Record {
	var purged []Record
	for id, rec := range g.records {
		if rec.Online {
			continue
		}
		if now.Sub(rec.LastSeen) >= grace {
			purged = append(purged, rec)
			delete(g.records, id)
		}
	}
	return purged
}

// Len returns the number of held records
func (g *Registry) Len() int {
	return len(g.records)
}
