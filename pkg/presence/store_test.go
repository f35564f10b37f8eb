package presence

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Join_RegistersAndBinds(t *testing.T) {
	store := NewStore(time.Hour)
	now := time.Now()

	rec, err := store.Join("conn-1", "alice", "#fff", now)
	require.NoError(t, err)
	assert.True(t, rec.Online)

	got, ok := store.Get("conn-1")
	require.True(t, ok)
	assert.Equal(t, "alice", got.Username)

	connID, ok := store.Resolve("alice")
	require.True(t, ok)
	assert.Equal(t, "conn-1", connID)
}

func TestStore_Join_Duplicate_DoesNotRebind(t *testing.T) {
	store := NewStore(time.Hour)
	now := time.Now()

	_, err := store.Join("conn-1", "alice", "#fff", now)
	require.NoError(t, err)

	_, err = store.Join("conn-1", "mallory", "#000", now)
	require.ErrorIs(t, err, ErrDuplicateConnection)

	// The rejected join must not have bound its username
	_, ok := store.Resolve("mallory")
	assert.False(t, ok)
}

func TestStore_Rejoin_SupersedesRouting(t *testing.T) {
	store := NewStore(time.Hour)
	now := time.Now()

	_, err := store.Join("conn-1", "alice", "#fff", now)
	require.NoError(t, err)
	_, err = store.MarkOffline("conn-1", now.Add(time.Second))
	require.NoError(t, err)

	// Rejoin always arrives on a new connection
	_, err = store.Join("conn-2", "alice", "#fff", now.Add(2*time.Second))
	require.NoError(t, err)

	connID, ok := store.Resolve("alice")
	require.True(t, ok)
	assert.Equal(t, "conn-2", connID)

	// The superseded record lingers as an offline entry
	snap := store.Snapshot()
	require.Len(t, snap, 2)
	assert.False(t, snap["conn-1"].Online)
	assert.True(t, snap["conn-2"].Online)
}

func TestStore_PurgeExpired_LeavesIndexAlone(t *testing.T) {
	store := NewStore(time.Hour)
	joined := time.Now()
	left := joined.Add(time.Minute)

	_, err := store.Join("conn-1", "bob", "#000", joined)
	require.NoError(t, err)
	_, err = store.MarkOffline("conn-1", left)
	require.NoError(t, err)

	purged := store.PurgeExpired(left.Add(time.Hour + time.Second))
	require.Len(t, purged, 1)
	assert.Equal(t, 0, store.Len())

	// The stale binding survives the purge; the router handles the dead id
	connID, ok := store.Resolve("bob")
	require.True(t, ok)
	assert.Equal(t, "conn-1", connID)
}

func TestStore_ConcurrentJoinsAndResolves(t *testing.T) {
	store := NewStore(time.Hour)
	now := time.Now()

	const n = 64
	var wg sync.WaitGroup
	wg.Add(3 * n)

	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			connID := fmt.Sprintf("conn-%d", i)
			name := fmt.Sprintf("user-%d", i)
			if _, err := store.Join(connID, name, "#fff", now); err != nil {
				t.Errorf("join %s: %v", connID, err)
			}
		}(i)
		go func(i int) {
			defer wg.Done()
			// Resolve must never observe a join halfway applied: if a name
			// resolves, the record it points at must exist.
			name := fmt.Sprintf("user-%d", i)
			if connID, ok := store.Resolve(name); ok {
				if _, found := store.Get(connID); !found {
					t.Errorf("resolve(%s) returned %s with no record", name, connID)
				}
			}
		}(i)
		go func(i int) {
			defer wg.Done()
			store.Snapshot()
		}(i)
	}

	wg.Wait()
	assert.Equal(t, n, store.Len())
}

func TestStore_ConcurrentDisconnectAndPurge(t *testing.T) {
	store := NewStore(time.Millisecond)
	joined := time.Now()

	const n = 32
	for i := 0; i < n; i++ {
		_, err := store.Join(fmt.Sprintf("conn-%d", i), fmt.Sprintf("user-%d", i), "#fff", joined)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	wg.Add(2 * n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			if _, err := store.MarkOffline(fmt.Sprintf("conn-%d", i), time.Now()); err != nil {
				t.Errorf("markOffline: %v", err)
			}
		}(i)
		go func(i int) {
			defer wg.Done()
			store.PurgeExpired(time.Now().Add(time.Hour))
		}(i)
	}
	wg.Wait()

	// Everything offline and past grace by now; one final sweep empties it
	store.PurgeExpired(time.Now().Add(time.Hour))
	assert.Equal(t, 0, store.Len())
}
