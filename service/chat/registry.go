package chat

import (
	"encoding/json"
	"sync"

	"SCProject/logger"
)

// Registry tracks which live channels belong to which user and routes
// outbound payloads. It knows nothing about chat or notification
// semantics; payloads are opaque.
//
// One coarse mutex guards the map. It is held only for set mutation and
// snapshotting, never across a network send, so a slow peer cannot stall
// registrations.
type Registry struct {
	mu    sync.Mutex
	users map[int64]map[*Channel]struct{}
}

func NewRegistry() *Registry {
	return &Registry{users: make(map[int64]map[*Channel]struct{})}
}

// Register adds ch to the user's channel set. Returns true when this is
// the user's first live channel (the zero -> nonzero transition).
func (r *Registry) Register(userID int64, ch *Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.users[userID]
	if set == nil {
		set = make(map[*Channel]struct{})
		r.users[userID] = set
	}
	first := len(set) == 0
	set[ch] = struct{}{}
	return first
}

// Unregister removes ch; no-op if absent. Returns true when the user's
// last channel was removed (the nonzero -> zero transition). Idempotent,
// so racing close paths are safe.
func (r *Registry) Unregister(userID int64, ch *Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.users[userID]
	if !ok {
		return false
	}
	if _, ok := set[ch]; !ok {
		return false
	}
	delete(set, ch)
	if len(set) == 0 {
		delete(r.users, userID)
		return true
	}
	return false
}

// Present reports whether the user has at least one live channel.
func (r *Registry) Present(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users[userID]) > 0
}

// Count returns the user's live channel count.
func (r *Registry) Count(userID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users[userID])
}

// Send fans payload out to every channel currently registered for userID.
// No channels is a silent no-op: at-most-once, best-effort, nothing is
// queued. Per-channel failures are logged and close the offending channel;
// they never abort delivery to the rest and never reach the caller.
func (r *Registry) Send(userID int64, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Errorf("[registry] marshal payload user=%d err=%v", userID, err)
		return
	}

	r.mu.Lock()
	snapshot := make([]*Channel, 0, len(r.users[userID]))
	for ch := range r.users[userID] {
		snapshot = append(snapshot, ch)
	}
	r.mu.Unlock()

	for _, ch := range snapshot {
		r.deliver(ch, data)
	}
}

// Broadcast delivers payload to every channel of every registered user.
func (r *Registry) Broadcast(payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Errorf("[registry] marshal broadcast err=%v", err)
		return
	}

	r.mu.Lock()
	snapshot := make([]*Channel, 0, len(r.users))
	for _, set := range r.users {
		for ch := range set {
			snapshot = append(snapshot, ch)
		}
	}
	r.mu.Unlock()

	for _, ch := range snapshot {
		r.deliver(ch, data)
	}
}

// deliver enqueues onto the channel's write pump. A failed enqueue counts
// as a fatal send error: the channel is closed and its owning session
// loop will unregister it.
func (r *Registry) deliver(ch *Channel, data []byte) {
	if err := ch.Enqueue(data); err != nil {
		logger.Warnf("[registry] drop channel=%s user=%d err=%v", ch.ID, ch.UserID, err)
		ch.CloseWithCode(CloseNormal, "slow consumer")
	}
}

// Close tears down every registered channel; used at shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	var all []*Channel
	for _, set := range r.users {
		for ch := range set {
			all = append(all, ch)
		}
	}
	r.users = make(map[int64]map[*Channel]struct{})
	r.mu.Unlock()

	for _, ch := range all {
		ch.CloseWithCode(CloseNormal, "server shutdown")
	}
}
