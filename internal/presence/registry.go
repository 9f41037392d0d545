package presence

import (
	"sort"
	"sync"
)

// Registry maps each online user to its current connection handle. The last
// connection wins; a handle->user index keeps removal on close O(1).
type Registry struct {
	mu       sync.RWMutex
	byUser   map[string]string
	byHandle map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		byUser:   make(map[string]string),
		byHandle: make(map[string]string),
	}
}

// SetOnline binds userID to handle, replacing any earlier handle for that
// user. The replaced handle no longer resolves to anyone.
func (r *Registry) SetOnline(userID, handle string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.byUser[userID]; ok && old != handle {
		delete(r.byHandle, old)
	}
	if prev, ok := r.byHandle[handle]; ok && prev != userID {
		delete(r.byUser, prev)
	}
	r.byUser[userID] = handle
	r.byHandle[handle] = userID
}

func (r *Registry) Handle(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byUser[userID]
	return h, ok
}

// RemoveByHandle drops the entry owned by handle. It returns the freed user,
// or false when the handle was never bound or has since been replaced.
func (r *Registry) RemoveByHandle(handle string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	userID, ok := r.byHandle[handle]
	if !ok {
		return "", false
	}
	delete(r.byHandle, handle)
	if r.byUser[userID] == handle {
		delete(r.byUser, userID)
	}
	return userID, true
}

func (r *Registry) IsOnline(userID string) bool {
	_, ok := r.Handle(userID)
	return ok
}

// OnlineUserIDs returns a sorted snapshot of online users.
func (r *Registry) OnlineUserIDs() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.byUser))
	for id := range r.byUser {
		out = append(out, id)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}
