package chat

import (
	"context"
	"sync"
	"time"

	"SCProject/logger"
)

// PresenceStore persists online/offline status and last-seen timestamps.
type PresenceStore interface {
	SetOnline(ctx context.Context, userID int64) error
	SetOffline(ctx context.Context, userID int64, lastSeen time.Time) error
	LastSeen(ctx context.Context, userID int64) (time.Time, bool, error)
}

// Tracker turns channel occupancy transitions into durable last-seen state
// and a user_status broadcast on the notification registry. It refcounts
// across both endpoints (chat + notifications), so a user is online while
// any channel is up.
//
// Persistence failures are logged and the broadcast still goes out:
// presence is advisory, not transactional.
type Tracker struct {
	store  PresenceStore
	notify *Registry
	clock  func() time.Time

	mu     sync.Mutex
	counts map[int64]int
}

func NewTracker(store PresenceStore, notify *Registry) *Tracker {
	return &Tracker{
		store:  store,
		notify: notify,
		clock:  time.Now,
		counts: make(map[int64]int),
	}
}

// Connected records one more live channel for the user. The first channel
// triggers the online transition; subsequent ones are silent.
func (t *Tracker) Connected(ctx context.Context, userID int64) {
	t.mu.Lock()
	t.counts[userID]++
	first := t.counts[userID] == 1
	t.mu.Unlock()

	if !first {
		return
	}

	// Previous last_seen goes out with the online event so clients can
	// render "last seen ..." for the transition they just missed.
	var lastSeen string
	if ts, ok, err := t.store.LastSeen(ctx, userID); err != nil {
		logger.Warnf("[presence] last_seen read user=%d err=%v", userID, err)
	} else if ok {
		lastSeen = ts.UTC().Format(time.RFC3339)
	}

	if err := t.store.SetOnline(ctx, userID); err != nil {
		logger.Warnf("[presence] online persist user=%d err=%v", userID, err)
	}

	t.notify.Broadcast(UserStatusEvent{
		Type:     "user_status",
		UserID:   userID,
		Status:   "online",
		LastSeen: lastSeen,
	})
}

// Disconnected records one channel gone. The last channel triggers the
// offline transition with last_seen=now.
func (t *Tracker) Disconnected(ctx context.Context, userID int64) {
	t.mu.Lock()
	if t.counts[userID] == 0 {
		// unmatched disconnect; Connected/Disconnected pairing is the
		// session loop's job, keep the count sane regardless
		t.mu.Unlock()
		return
	}
	t.counts[userID]--
	last := t.counts[userID] == 0
	if last {
		delete(t.counts, userID)
	}
	t.mu.Unlock()

	if !last {
		return
	}

	now := t.clock().UTC()
	if err := t.store.SetOffline(ctx, userID, now); err != nil {
		logger.Warnf("[presence] offline persist user=%d err=%v", userID, err)
	}

	t.notify.Broadcast(UserStatusEvent{
		Type:     "user_status",
		UserID:   userID,
		Status:   "offline",
		LastSeen: now.Format(time.RFC3339),
	})
}

// Online reports the tracker's view of the user.
func (t *Tracker) Online(userID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[userID] > 0
}
