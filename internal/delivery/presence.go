package delivery

import (
	"sync"

	"github.com/graybeam/relaypoint/internal/model"
)

// PresenceRegistry tracks which recipients currently have a poll in flight.
// Absence means "not currently engaged", not "unknown user". The flag is
// advisory only: dispatch never gates delivery on it.
type PresenceRegistry struct {
	mu      sync.RWMutex
	engaged map[model.Username]struct{}
}

func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{
		engaged: map[model.Username]struct{}{},
	}
}

func (r *PresenceRegistry) MarkEngaged(user model.Username) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engaged[user] = struct{}{}
}

func (r *PresenceRegistry) MarkDisengaged(user model.Username) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.engaged, user)
}

func (r *PresenceRegistry) IsEngaged(user model.Username) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.engaged[user]
	return ok
}
