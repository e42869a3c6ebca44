package core

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/drossen/confer/internal/domain"
)

// RoomInfo is a read-only view for the listing API.
type RoomInfo struct {
	ID        domain.RoomID `json:"id"`
	PeerCount int           `json:"peerCount"`
}

// Store maps room ids to rooms. Its lock only covers map lookup,
// insert and delete; everything inside a room is serialized by the
// room's own mutex, so operations on different rooms never block each
// other.
type Store struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*Room
}

func NewStore() *Store {
	return &Store{rooms: make(map[domain.RoomID]*Room)}
}

// GetOrCreateRoom is idempotent: it returns the existing room or
// creates an empty one.
func (s *Store) GetOrCreateRoom(id domain.RoomID) *Room {
	s.mu.RLock()
	room, ok := s.rooms[id]
	s.mu.RUnlock()
	if ok {
		return room
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if room, ok = s.rooms[id]; ok {
		return room
	}
	room = newRoom(id)
	s.rooms[id] = room
	log.Info().Str("module", "core.store").Str("room", string(id)).Msg("room created")
	return room
}

func (s *Store) Room(id domain.RoomID) (*Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[id]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return room, nil
}

// RemovePeer runs the cascading close for one peer and, when the peer
// set ends up empty, tears the room down and releases its router.
func (s *Store) RemovePeer(roomID domain.RoomID, userID domain.UserID) (RemovePeerResult, error) {
	room, err := s.Room(roomID)
	if err != nil {
		return RemovePeerResult{}, err
	}
	res, err := room.removePeer(userID)
	if err != nil {
		return RemovePeerResult{}, err
	}
	if res.Empty {
		s.deleteRoom(room)
	}
	return res, nil
}

// DropIfIdle removes the room when nothing ever joined it, undoing a
// speculative create after a failed engine call. A room that gained a
// router or a peer meanwhile is left alone.
func (s *Store) DropIfIdle(room *Room) {
	room.mu.Lock()
	if room.closed || room.router != nil || len(room.peers) > 0 {
		room.mu.Unlock()
		return
	}
	room.closed = true
	room.mu.Unlock()
	s.mu.Lock()
	if current, ok := s.rooms[room.id]; ok && current == room {
		delete(s.rooms, room.id)
	}
	s.mu.Unlock()
}

func (s *Store) deleteRoom(room *Room) {
	s.mu.Lock()
	if current, ok := s.rooms[room.id]; ok && current == room {
		delete(s.rooms, room.id)
	}
	s.mu.Unlock()
	if router := room.Router(); router != nil {
		router.Close()
	}
	log.Info().Str("module", "core.store").Str("room", string(room.id)).Msg("room torn down")
}

func (s *Store) Rooms() []RoomInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RoomInfo, 0, len(s.rooms))
	for id, r := range s.rooms {
		out = append(out, RoomInfo{ID: id, PeerCount: r.PeerCount()})
	}
	return out
}

// Close tears down every room. Used on service shutdown.
func (s *Store) Close() {
	s.mu.Lock()
	rooms := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, r)
	}
	s.rooms = make(map[domain.RoomID]*Room)
	s.mu.Unlock()
	for _, r := range rooms {
		r.Close()
	}
}
