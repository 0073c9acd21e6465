package chat

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePresenceStore struct {
	online   map[int64]bool
	lastSeen map[int64]time.Time
	failAll  bool
}

func newFakePresenceStore() *fakePresenceStore {
	return &fakePresenceStore{
		online:   make(map[int64]bool),
		lastSeen: make(map[int64]time.Time),
	}
}

func (s *fakePresenceStore) SetOnline(_ context.Context, userID int64) error {
	if s.failAll {
		return errors.New("store down")
	}
	s.online[userID] = true
	return nil
}

func (s *fakePresenceStore) SetOffline(_ context.Context, userID int64, lastSeen time.Time) error {
	if s.failAll {
		return errors.New("store down")
	}
	s.online[userID] = false
	s.lastSeen[userID] = lastSeen
	return nil
}

func (s *fakePresenceStore) LastSeen(_ context.Context, userID int64) (time.Time, bool, error) {
	if s.failAll {
		return time.Time{}, false, errors.New("store down")
	}
	ts, ok := s.lastSeen[userID]
	return ts, ok, nil
}

func statusEvents(ch *Channel) []UserStatusEvent {
	var out []UserStatusEvent
	for _, p := range drain(ch) {
		var ev UserStatusEvent
		if json.Unmarshal(p, &ev) == nil && ev.Type == "user_status" {
			out = append(out, ev)
		}
	}
	return out
}

func TestTrackerOnlineOnceForMultipleChannels(t *testing.T) {
	store := newFakePresenceStore()
	notify := NewRegistry()
	tracker := NewTracker(store, notify)

	watcher, _ := newTestChannel(99)
	notify.Register(99, watcher)

	ctx := context.Background()
	tracker.Connected(ctx, 7)
	tracker.Connected(ctx, 7) // second device, no second broadcast

	events := statusEvents(watcher)
	require.Len(t, events, 1)
	assert.Equal(t, int64(7), events[0].UserID)
	assert.Equal(t, "online", events[0].Status)
	assert.True(t, tracker.Online(7))
	assert.True(t, store.online[7])
}

func TestTrackerOfflineOnLastDisconnect(t *testing.T) {
	store := newFakePresenceStore()
	notify := NewRegistry()
	tracker := NewTracker(store, notify)
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	tracker.clock = func() time.Time { return now }

	watcher, _ := newTestChannel(99)
	notify.Register(99, watcher)

	ctx := context.Background()
	tracker.Connected(ctx, 7)
	tracker.Connected(ctx, 7)
	drain(watcher)

	tracker.Disconnected(ctx, 7)
	assert.Empty(t, statusEvents(watcher), "offline must wait for the last channel")
	assert.True(t, tracker.Online(7))

	tracker.Disconnected(ctx, 7)
	events := statusEvents(watcher)
	require.Len(t, events, 1)
	assert.Equal(t, "offline", events[0].Status)
	assert.Equal(t, now.Format(time.RFC3339), events[0].LastSeen)
	assert.False(t, tracker.Online(7))
	assert.Equal(t, now, store.lastSeen[7])
}

func TestTrackerOnlineCarriesPreviousLastSeen(t *testing.T) {
	store := newFakePresenceStore()
	prev := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	store.lastSeen[7] = prev

	notify := NewRegistry()
	tracker := NewTracker(store, notify)
	watcher, _ := newTestChannel(99)
	notify.Register(99, watcher)

	tracker.Connected(context.Background(), 7)

	events := statusEvents(watcher)
	require.Len(t, events, 1)
	assert.Equal(t, prev.Format(time.RFC3339), events[0].LastSeen)
}

func TestTrackerBroadcastsDespiteStoreFailure(t *testing.T) {
	store := newFakePresenceStore()
	store.failAll = true

	notify := NewRegistry()
	tracker := NewTracker(store, notify)
	watcher, _ := newTestChannel(99)
	notify.Register(99, watcher)

	ctx := context.Background()
	tracker.Connected(ctx, 7)
	tracker.Disconnected(ctx, 7)

	events := statusEvents(watcher)
	require.Len(t, events, 2)
	assert.Equal(t, "online", events[0].Status)
	assert.Equal(t, "offline", events[1].Status)
}

func TestTrackerUnmatchedDisconnect(t *testing.T) {
	tracker := NewTracker(newFakePresenceStore(), NewRegistry())
	tracker.Disconnected(context.Background(), 5)
	assert.False(t, tracker.Online(5))
}
