package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Add(t *testing.T) {
	reg := NewRegistry()
	now := time.Now()

	rec, err := reg.Add("conn-1", "alice", "#fff", now)
	require.NoError(t, err)

	assert.Equal(t, "conn-1", rec.ConnID)
	assert.Equal(t, "alice", rec.Username)
	assert.Equal(t, "#fff", rec.ProfileColor)
	assert.True(t, rec.Online)
	assert.Equal(t, now, rec.LastSeen)
}

func TestRegistry_Add_DuplicateConnection(t *testing.T) {
	reg := NewRegistry()
	now := time.Now()

	_, err := reg.Add("conn-1", "alice", "#fff", now)
	require.NoError(t, err)

	_, err = reg.Add("conn-1", "alice2", "#000", now)
	assert.ErrorIs(t, err, ErrDuplicateConnection)

	// The original record is untouched
	rec, ok := reg.Get("conn-1")
	require.True(t, ok)
	assert.Equal(t, "alice", rec.Username)
}

func TestRegistry_MarkOffline(t *testing.T) {
	reg := NewRegistry()
	joined := time.Now()
	left := joined.Add(5 * time.Minute)

	_, err := reg.Add("conn-1", "alice", "#fff", joined)
	require.NoError(t, err)

	rec, err := reg.MarkOffline("conn-1", left)
	require.NoError(t, err)
	assert.False(t, rec.Online)
	assert.Equal(t, left, rec.LastSeen)
}

func TestRegistry_MarkOffline_UnknownConnection(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.MarkOffline("nope", time.Now())
	assert.ErrorIs(t, err, ErrUnknownConnection)
}

func TestRegistry_MarkOffline_Idempotent(t *testing.T) {
	reg := NewRegistry()
	joined := time.Now()
	left := joined.Add(time.Minute)

	_, err := reg.Add("conn-1", "alice", "#fff", joined)
	require.NoError(t, err)

	first, err := reg.MarkOffline("conn-1", left)
	require.NoError(t, err)

	// A second mark keeps the original LastSeen
	second, err := reg.MarkOffline("conn-1", left.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, first.LastSeen, second.LastSeen)
	assert.False(t, second.Online)
}

func TestRegistry_LastSeen_Monotonic(t *testing.T) {
	reg := NewRegistry()
	joined := time.Now()

	_, err := reg.Add("conn-1", "alice", "#fff", joined)
	require.NoError(t, err)

	// A clock that appears to run backwards must not rewind LastSeen
	rec, err := reg.MarkOffline("conn-1", joined.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, joined, rec.LastSeen)
}

func TestRegistry_Snapshot_IncludesOffline(t *testing.T) {
	reg := NewRegistry()
	now := time.Now()

	_, err := reg.Add("conn-1", "alice", "#fff", now)
	require.NoError(t, err)
	_, err = reg.Add("conn-2", "bob", "#000", now)
	require.NoError(t, err)
	_, err = reg.MarkOffline("conn-2", now.Add(time.Second))
	require.NoError(t, err)

	snap := reg.Snapshot()
	require.Len(t, snap, 2)
	assert.True(t, snap["conn-1"].Online)
	assert.False(t, snap["conn-2"].Online)
}

func TestRegistry_Snapshot_IsCopy(t *testing.T) {
	reg := NewRegistry()
	now := time.Now()

	_, err := reg.Add("conn-1", "alice", "#fff", now)
	require.NoError(t, err)

	snap := reg.Snapshot()
	delete(snap, "conn-1")

	_, ok := reg.Get("conn-1")
	assert.True(t, ok, "mutating a snapshot must not touch the registry")
}

func TestRegistry_PurgeExpired(t *testing.T) {
	reg := NewRegistry()
	grace := time.Hour
	joined := time.Now()
	left := joined.Add(time.Minute)

	_, err := reg.Add("conn-1", "alice", "#fff", joined)
	require.NoError(t, err)
	_, err = reg.Add("conn-2", "bob", "#000", joined)
	require.NoError(t, err)
	_, err = reg.MarkOffline("conn-2", left)
	require.NoError(t, err)

	// Before the grace period elapses nothing is removed
	purged := reg.PurgeExpired(left.Add(grace-time.Second), grace)
	assert.Empty(t, purged)
	assert.Equal(t, 2, reg.Len())

	// At exactly grace the offline record goes; the online one stays
	purged = reg.PurgeExpired(left.Add(grace), grace)
	require.Len(t, purged, 1)
	assert.Equal(t, "conn-2", purged[0].ConnID)
	assert.Equal(t, 1, reg.Len())

	_, ok := reg.Get("conn-1")
	assert.True(t, ok)
}

func TestRegistry_PurgeExpired_NeverRemovesOnline(t *testing.T) {
	reg := NewRegistry()
	joined := time.Now()

	_, err := reg.Add("conn-1", "alice", "#fff", joined)
	require.NoError(t, err)

	purged := reg.PurgeExpired(joined.Add(100*time.Hour), time.Hour)
	assert.Empty(t, purged)
	assert.Equal(t, 1, reg.Len())
}
