package core

import (
	"github.com/rs/zerolog/log"

	"github.com/drossen/confer/internal/domain"
)

// RemovePeerResult carries what the caller needs for the notification
// fan-out after a cascading close.
type RemovePeerResult struct {
	ClosedProducerIDs []domain.ProducerID
	Remaining         []domain.UserID
	Empty             bool
}

// removePeer runs the cascading close for one peer: its consumers, its
// producers (which cascades into other peers' consumers of those
// producers), its transports, then the peer itself. Engine-side close
// failures are ignored; the registry entries go away regardless.
func (r *Room) removePeer(userID domain.UserID) (RemovePeerResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.peers[userID]; !ok {
		return RemovePeerResult{}, domain.ErrPeerNotFound
	}

	for id, e := range r.consumers {
		if e.owner == userID {
			r.closeConsumerLocked(id, e)
		}
	}

	var closedProducers []domain.ProducerID
	for id, e := range r.producers {
		if e.owner == userID {
			closedProducers = append(closedProducers, id)
			r.closeProducerLocked(id, e)
		}
	}

	for id, e := range r.transports {
		if e.owner == userID {
			r.closeTransportLocked(id, e)
		}
	}

	delete(r.peers, userID)

	res := RemovePeerResult{
		ClosedProducerIDs: closedProducers,
		Remaining:         r.peersExceptLocked(userID),
		Empty:             len(r.peers) == 0,
	}
	if res.Empty {
		r.closed = true
	}
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("user", string(userID)).Int("closed_producers", len(closedProducers)).Int("remaining", len(res.Remaining)).Msg("peer removed")
	return res, nil
}

// CloseTransport tears one transport down together with everything that
// depends on it. It is the reaction to a DTLS-closed signal or an
// explicit close, funneled through the store's single mutation path.
func (r *Room) CloseTransport(userID domain.UserID, transportID domain.TransportID) (RemovePeerResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.transports[transportID]
	if !ok || e.owner != userID {
		return RemovePeerResult{}, domain.ErrTransportNotFound
	}

	var closedProducers []domain.ProducerID
	for id, pe := range r.producers {
		if pe.transport == transportID {
			closedProducers = append(closedProducers, id)
			r.closeProducerLocked(id, pe)
		}
	}
	for id, ce := range r.consumers {
		if ce.transport == transportID {
			r.closeConsumerLocked(id, ce)
		}
	}
	r.closeTransportLocked(transportID, e)

	return RemovePeerResult{
		ClosedProducerIDs: closedProducers,
		Remaining:         r.peersExceptLocked(userID),
	}, nil
}

// closeProducerLocked closes one producer and every consumer in the
// room that was fed by it.
func (r *Room) closeProducerLocked(id domain.ProducerID, e *producerEntry) {
	for cid, ce := range r.consumers {
		if ce.producer == id {
			r.closeConsumerLocked(cid, ce)
		}
	}
	e.handle.Close()
	delete(r.producers, id)
}

func (r *Room) closeConsumerLocked(id domain.ConsumerID, e *consumerEntry) {
	e.state = domain.ConsumerClosed
	e.handle.Close()
	delete(r.consumers, id)
}

func (r *Room) closeTransportLocked(id domain.TransportID, e *transportEntry) {
	e.state = domain.TransportClosed
	e.handle.Close()
	delete(r.transports, id)
}

// Close tears down everything in the room unconditionally. Used when
// the whole service shuts down.
func (r *Room) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.consumers {
		r.closeConsumerLocked(id, e)
	}
	for id, e := range r.producers {
		e.handle.Close()
		delete(r.producers, id)
	}
	for id, e := range r.transports {
		r.closeTransportLocked(id, e)
	}
	r.peers = make(map[domain.UserID]struct{})
	r.closed = true
	if r.router != nil {
		r.router.Close()
		r.router = nil
	}
}
