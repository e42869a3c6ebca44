// Package core is the authoritative in-memory registry of rooms,
// peers, transports, producers and consumers. It owns entity lifecycle
// and the cascading close rules; it performs no network I/O of its own,
// only triggering Close on engine handles it is dropping.
package core

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/drossen/confer/internal/domain"
	"github.com/drossen/confer/internal/media"
)

type transportEntry struct {
	owner     domain.UserID
	direction domain.Direction
	state     domain.TransportState
	handle    media.Transport
}

type producerEntry struct {
	owner     domain.UserID
	transport domain.TransportID
	kind      domain.MediaKind
	handle    media.Producer
}

type consumerEntry struct {
	owner     domain.UserID
	transport domain.TransportID
	producer  domain.ProducerID
	state     domain.ConsumerState
	handle    media.Consumer
}

// PeerProducer identifies one producer together with its owning peer,
// the unit of the new-producer notification fan-out.
type PeerProducer struct {
	UserID     domain.UserID     `json:"userId"`
	ProducerID domain.ProducerID `json:"producerId"`
}

// Room holds one conference's entity registries. All mutation goes
// through methods holding r.mu, so intra-room operations are serialized
// while different rooms stay independent.
type Room struct {
	id domain.RoomID

	mu         sync.Mutex
	closed     bool
	router     media.Router
	peers      map[domain.UserID]struct{}
	transports map[domain.TransportID]*transportEntry
	producers  map[domain.ProducerID]*producerEntry
	consumers  map[domain.ConsumerID]*consumerEntry
}

func newRoom(id domain.RoomID) *Room {
	return &Room{
		id:         id,
		peers:      make(map[domain.UserID]struct{}),
		transports: make(map[domain.TransportID]*transportEntry),
		producers:  make(map[domain.ProducerID]*producerEntry),
		consumers:  make(map[domain.ConsumerID]*consumerEntry),
	}
}

func (r *Room) ID() domain.RoomID { return r.id }

// Router returns the room's router handle, nil before the first join
// finished installing one.
func (r *Room) Router() media.Router {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.router
}

// AdoptRouter installs router unless another goroutine already won the
// race, and returns the router actually in place. The caller must close
// its own handle when the returned one differs. A nil return means the
// room was torn down meanwhile; the caller starts over with a fresh
// room.
func (r *Room) AdoptRouter(router media.Router) media.Router {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	if r.router != nil {
		return r.router
	}
	r.router = router
	return router
}

// AddPeer inserts the peer into the room's peer set. Duplicate joins
// are deduped: a reconnecting client must not create a second entry.
// It reports false when the room has already been torn down, in which
// case the caller must fetch a fresh room from the store.
func (r *Room) AddPeer(userID domain.UserID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	if _, ok := r.peers[userID]; ok {
		log.Debug().Str("module", "core.room").Str("room", string(r.id)).Str("user", string(userID)).Msg("duplicate join ignored")
		return true
	}
	r.peers[userID] = struct{}{}
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("user", string(userID)).Int("peers", len(r.peers)).Msg("peer joined")
	return true
}

func (r *Room) HasPeer(userID domain.UserID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.peers[userID]
	return ok
}

func (r *Room) PeerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

func (r *Room) peersExceptLocked(userID domain.UserID) []domain.UserID {
	out := make([]domain.UserID, 0, len(r.peers))
	for id := range r.peers {
		if id != userID {
			out = append(out, id)
		}
	}
	return out
}

// AddTransport registers a freshly created transport under its owner.
func (r *Room) AddTransport(userID domain.UserID, direction domain.Direction, t media.Transport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.peers[userID]; !ok {
		return domain.ErrPeerNotFound
	}
	r.transports[t.ID()] = &transportEntry{
		owner:     userID,
		direction: direction,
		state:     domain.TransportCreated,
		handle:    t,
	}
	return nil
}

// FindTransport resolves a transport by id, owner and direction.
func (r *Room) FindTransport(userID domain.UserID, id domain.TransportID, direction domain.Direction) (media.Transport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.transports[id]
	if !ok || e.owner != userID || e.direction != direction || e.state == domain.TransportClosed {
		return nil, domain.ErrTransportNotFound
	}
	return e.handle, nil
}

func (r *Room) MarkTransportConnected(id domain.TransportID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.transports[id]; ok {
		e.state = domain.TransportConnected
	}
}

// AddProducer registers a new producer and atomically returns every
// other peer's existing producers, so the caller can tell the new
// producer's owner what to consume and notify exactly those owners.
func (r *Room) AddProducer(userID domain.UserID, transportID domain.TransportID, p media.Producer) ([]PeerProducer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.peers[userID]; !ok {
		return nil, domain.ErrPeerNotFound
	}
	existing := make([]PeerProducer, 0, len(r.producers))
	for id, e := range r.producers {
		if e.owner != userID {
			existing = append(existing, PeerProducer{UserID: e.owner, ProducerID: id})
		}
	}
	r.producers[p.ID()] = &producerEntry{
		owner:     userID,
		transport: transportID,
		kind:      p.Kind(),
		handle:    p,
	}
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("user", string(userID)).Str("producer", string(p.ID())).Str("kind", string(p.Kind())).Msg("producer added")
	return existing, nil
}

func (r *Room) HasProducer(id domain.ProducerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.producers[id]
	return ok
}

// AddConsumer registers a paused consumer bound to its source producer.
// The producer must still be registered: a consumer committed after its
// source's cascade already ran would never be cleaned up.
func (r *Room) AddConsumer(userID domain.UserID, transportID domain.TransportID, c media.Consumer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.peers[userID]; !ok {
		return domain.ErrPeerNotFound
	}
	if _, ok := r.producers[c.ProducerID()]; !ok {
		return domain.ErrNotCapable
	}
	r.consumers[c.ID()] = &consumerEntry{
		owner:     userID,
		transport: transportID,
		producer:  c.ProducerID(),
		state:     domain.ConsumerPaused,
		handle:    c,
	}
	return nil
}

func (r *Room) FindConsumer(userID domain.UserID, id domain.ConsumerID) (media.Consumer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.consumers[id]
	if !ok || e.owner != userID || e.state == domain.ConsumerClosed {
		return nil, domain.ErrConsumerNotFound
	}
	return e.handle, nil
}

func (r *Room) MarkConsumerActive(id domain.ConsumerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.consumers[id]; ok {
		e.state = domain.ConsumerActive
	}
}
