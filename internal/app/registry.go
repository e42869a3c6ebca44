package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/drossen/confer/internal/domain"
)

// Registry is the derived peer→room index. The session maintains it
// transactionally on join and leave, so disconnect cleanup needs only a
// user id. It never holds truth the store doesn't.
type Registry struct {
	mu    sync.RWMutex
	rooms map[domain.UserID]domain.RoomID
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[domain.UserID]domain.RoomID)}
}

func (r *Registry) Bind(userID domain.UserID, roomID domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms[userID] = roomID
	log.Debug().Str("module", "app.registry").Str("user", string(userID)).Str("room", string(roomID)).Msg("bound user to room")
}

func (r *Registry) Unbind(userID domain.UserID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms, userID)
}

func (r *Registry) RoomOf(userID domain.UserID) (domain.RoomID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.rooms[userID]
	return id, ok
}
