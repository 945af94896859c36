package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, maxEvents int) *EventStore {
	t.Helper()
	store, err := NewEventStore(filepath.Join(t.TempDir(), "events.db"), maxEvents)
	require.NoError(t, err, "Failed to create event store")
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordAndRecentEvents(t *testing.T) {
	store := newTestStore(t, 100)

	events := []Event{
		{Type: "started"},
		{Type: "hop", HopIndex: 0, EntryName: "A", FrequencyHz: 144000000, LevelDbm: -20, Bandwidth: "12.5 kHz"},
		{Type: "hop", HopIndex: 1, EntryName: "B", FrequencyHz: 145000000, LevelDbm: -30, Bandwidth: "12.5 kHz"},
		{Type: "warning", HopIndex: 1, Detail: "set level: rejected"},
	}
	for _, ev := range events {
		require.NoError(t, store.Record(ev))
	}

	got, err := store.RecentEvents(10)
	require.NoError(t, err)
	require.Len(t, got, 4)

	// Newest first.
	assert.Equal(t, "warning", got[0].Type)
	assert.Equal(t, "set level: rejected", got[0].Detail)
	assert.Equal(t, "A", got[2].EntryName)
	assert.Equal(t, int64(144000000), got[2].FrequencyHz)
	assert.False(t, got[0].Timestamp.IsZero(), "timestamp must be filled in")
}

func TestEventsByType(t *testing.T) {
	store := newTestStore(t, 100)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Record(Event{Type: "hop", HopIndex: i}))
	}
	require.NoError(t, store.Record(Event{Type: "error", Detail: "broken pipe"}))

	hops, err := store.EventsByType("hop", 10)
	require.NoError(t, err)
	require.Len(t, hops, 3)
	for _, ev := range hops {
		assert.Equal(t, "hop", ev.Type)
	}

	errs, err := store.EventsByType("error", 10)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "broken pipe", errs[0].Detail)
}

func TestTrimToMaxEvents(t *testing.T) {
	store := newTestStore(t, 5)

	for i := 0; i < 12; i++ {
		require.NoError(t, store.Record(Event{Type: "hop", HopIndex: i, Timestamp: time.Now()}))
	}

	count, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	got, err := store.RecentEvents(10)
	require.NoError(t, err)
	require.Len(t, got, 5)
	// The oldest survivor is index 7, the newest index 11.
	assert.Equal(t, 11, got[0].HopIndex)
	assert.Equal(t, 7, got[len(got)-1].HopIndex)
}

func TestTrimDisabled(t *testing.T) {
	store := newTestStore(t, 0)

	for i := 0; i < 20; i++ {
		require.NoError(t, store.Record(Event{Type: "hop", HopIndex: i}))
	}

	count, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 20, count, "maxEvents <= 0 must disable trimming")
}
