// Package registry implements the process-wide session registry: a map from user id to the set of that user's live
// connections, used to route push notifications and force logouts across a user's devices.
package registry

import (
	"sync"

	"github.com/google/uuid"
)

// Pusher is anything that can receive a push frame. *conn.Conn implements this; tests use a fake.
type Pusher interface {
	Push(kind string, data any)
	ForceLogout()
}

// Registry is the process-wide userId -> set<connection> map, guarded by a single mutex.
type Registry struct {
	mu      sync.RWMutex
	byUser  map[uuid.UUID]map[Pusher]struct{}
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{byUser: make(map[uuid.UUID]map[Pusher]struct{})}
}

// Login registers conn as one of userID's live sessions.
func (r *Registry) Login(userID uuid.UUID, conn Pusher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.byUser[userID]
	if !ok {
		set = make(map[Pusher]struct{})
		r.byUser[userID] = set
	}
	set[conn] = struct{}{}
}

// Logout removes conn from userID's live sessions. The map entry is deleted once it becomes empty so the registry
// only tracks online users.
func (r *Registry) Logout(userID uuid.UUID, conn Pusher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.byUser[userID]
	if !ok {
		return
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(r.byUser, userID)
	}
}

// Forward sends a push frame to every connection registered to userID except exceptFor (pass nil to include all).
func (r *Registry) Forward(userID uuid.UUID, kind string, data any, exceptFor Pusher) {
	r.mu.RLock()
	set := r.byUser[userID]
	targets := make([]Pusher, 0, len(set))
	for c := range set {
		if c != exceptFor {
			targets = append(targets, c)
		}
	}
	r.mu.RUnlock()

	for _, c := range targets {
		c.Push(kind, data)
	}
}

// ForwardMany calls Forward for every user id in userIDs; the connection's group push delivery uses it once it has
// resolved group membership via the Store.
func (r *Registry) ForwardMany(userIDs []uuid.UUID, kind string, data any, exceptFor Pusher) {
	for _, id := range userIDs {
		r.Forward(id, kind, data, exceptFor)
	}
}

// ForceLogout transitions every connection of userID other than exceptFor back to LoggedOut and pushes a logout
// frame to it, then removes it from the registry.
func (r *Registry) ForceLogout(userID uuid.UUID, exceptFor Pusher) {
	r.mu.Lock()
	set := r.byUser[userID]
	targets := make([]Pusher, 0, len(set))
	for c := range set {
		if c != exceptFor {
			targets = append(targets, c)
			delete(set, c)
		}
	}
	if len(set) == 0 {
		delete(r.byUser, userID)
	}
	r.mu.Unlock()

	for _, c := range targets {
		c.ForceLogout()
	}
}

// Online reports whether userID currently has at least one live connection.
func (r *Registry) Online(userID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byUser[userID]
	return ok
}
