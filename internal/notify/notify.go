// Package notify delivers best-effort push events to specific peers'
// live signaling channels. Events for a peer without a live channel are
// silently dropped; there is no queueing or retry.
package notify

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/drossen/confer/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

// Conn is one peer's signaling channel. TrySend must not block: a full
// send buffer is reported as ErrBackpressure and the event is dropped.
// Per-target ordering is the connection's FIFO buffer.
type Conn interface {
	TrySend([]byte) error
	Close()
}

const (
	EventNewProducer    = "new-producer"
	EventProducerClosed = "producer-closed"
)

type NewProducerEvent struct {
	ProducerID domain.ProducerID `json:"producerId"`
}

type ProducerClosedEvent struct {
	RemoteProducerIDs []domain.ProducerID `json:"remoteProducerIds"`
}

type envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Router maps peers to their current channel. Channels are ephemeral:
// binding a new one replaces (and closes) the previous.
type Router struct {
	mu    sync.RWMutex
	conns map[domain.UserID]Conn
}

func NewRouter() *Router {
	return &Router{conns: make(map[domain.UserID]Conn)}
}

func (r *Router) Bind(userID domain.UserID, c Conn) {
	r.mu.Lock()
	old := r.conns[userID]
	r.conns[userID] = c
	r.mu.Unlock()
	if old != nil && old != c {
		old.Close()
	}
	log.Info().Str("module", "notify").Str("user", string(userID)).Msg("channel bound")
}

// Unbind drops the binding only if it still points at c, so a stale
// disconnect cannot tear down a newer connection. It reports whether c
// was the active binding; callers must not treat the peer as gone when
// it was not.
func (r *Router) Unbind(userID domain.UserID, c Conn) bool {
	r.mu.Lock()
	cur, ok := r.conns[userID]
	if !ok || cur != c {
		r.mu.Unlock()
		return false
	}
	delete(r.conns, userID)
	r.mu.Unlock()
	log.Info().Str("module", "notify").Str("user", string(userID)).Msg("channel unbound")
	return true
}

func (r *Router) Notify(userID domain.UserID, event string, payload any) {
	r.mu.RLock()
	c, ok := r.conns[userID]
	r.mu.RUnlock()
	if !ok {
		log.Debug().Str("module", "notify").Str("user", string(userID)).Str("event", event).Msg("no live channel, dropped")
		return
	}
	b, err := json.Marshal(envelope{Event: event, Data: payload})
	if err != nil {
		log.Error().Err(err).Str("module", "notify").Str("event", event).Msg("marshal event")
		return
	}
	if err := c.TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "notify").Str("user", string(userID)).Str("event", event).Msg("dropped event")
	}
}

// NotifyAll fans one event out to each target. Delivery across targets
// is independent; only per-target ordering is guaranteed.
func (r *Router) NotifyAll(targets []domain.UserID, event string, payload any) {
	for _, t := range targets {
		r.Notify(t, event, payload)
	}
}
