// Package app orchestrates client operations against the room store
// and the media engine. Every operation validates first, awaits the
// engine, and only then commits the store mutation, so the store never
// references an entity the engine did not actually create.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/drossen/confer/internal/core"
	"github.com/drossen/confer/internal/domain"
	"github.com/drossen/confer/internal/media"
	"github.com/drossen/confer/internal/notify"
)

const defaultEngineTimeout = 10 * time.Second

type Session struct {
	store    *core.Store
	engine   media.Engine
	notifier *notify.Router
	registry *Registry
	codecs   []media.RtpCodec
	timeout  time.Duration
}

func NewSession(store *core.Store, engine media.Engine, notifier *notify.Router, codecs []media.RtpCodec, timeout time.Duration) *Session {
	if timeout <= 0 {
		timeout = defaultEngineTimeout
	}
	if len(codecs) == 0 {
		codecs = media.DefaultCodecs
	}
	return &Session{
		store:    store,
		engine:   engine,
		notifier: notifier,
		registry: NewRegistry(),
		codecs:   codecs,
		timeout:  timeout,
	}
}

func (s *Session) Store() *core.Store { return s.store }

// engineCall bounds one engine round-trip. A call that never completes
// surfaces as an engine rejection; the client retries the whole
// operation, never just the engine half.
func (s *Session) engineCall(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func engineErr(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrEngineRejected, err)
}

// JoinRoom registers the peer and returns the room router's
// capabilities. The router is created lazily on the first join.
func (s *Session) JoinRoom(ctx context.Context, roomID domain.RoomID, userID domain.UserID) (media.RtpCapabilities, error) {
	if err := roomID.Validate(); err != nil {
		return media.RtpCapabilities{}, err
	}
	if err := userID.Validate(); err != nil {
		return media.RtpCapabilities{}, err
	}

	for {
		room := s.store.GetOrCreateRoom(roomID)

		router := room.Router()
		if router == nil {
			callCtx, cancel := s.engineCall(ctx)
			created, err := s.engine.CreateRouter(callCtx, s.codecs)
			cancel()
			if err != nil {
				s.store.DropIfIdle(room)
				return media.RtpCapabilities{}, engineErr(err)
			}
			router = room.AdoptRouter(created)
			if router == nil {
				// Room torn down while we negotiated; start over.
				created.Close()
				continue
			}
			if router != created {
				created.Close()
			}
		}

		if !room.AddPeer(userID) {
			continue
		}
		s.registry.Bind(userID, roomID)
		return router.RtpCapabilities(), nil
	}
}

// CreateTransport asks the engine for a new transport on the room's
// router and registers it under the peer. The DTLS-closed rule is
// attached before registration so a racing teardown is never missed.
func (s *Session) CreateTransport(ctx context.Context, roomID domain.RoomID, userID domain.UserID, direction domain.Direction) (media.TransportInfo, error) {
	if !direction.Valid() {
		return media.TransportInfo{}, fmt.Errorf("%w: bad direction %q", domain.ErrTransportNotFound, direction)
	}
	room, err := s.store.Room(roomID)
	if err != nil {
		return media.TransportInfo{}, err
	}
	if !room.HasPeer(userID) {
		return media.TransportInfo{}, domain.ErrPeerNotFound
	}
	router := room.Router()
	if router == nil {
		return media.TransportInfo{}, domain.ErrRoomNotFound
	}

	callCtx, cancel := s.engineCall(ctx)
	transport, err := router.CreateTransport(callCtx)
	cancel()
	if err != nil {
		return media.TransportInfo{}, engineErr(err)
	}

	transport.OnDtlsClosed(func() {
		s.onTransportGone(roomID, userID, transport.ID())
	})

	if err := room.AddTransport(userID, direction, transport); err != nil {
		transport.Close()
		return media.TransportInfo{}, err
	}
	return transport.Info(), nil
}

// onTransportGone reacts to an engine-side DTLS-closed signal: the
// transport and its dependents leave the store, and peers consuming a
// producer that went with it hear about it.
func (s *Session) onTransportGone(roomID domain.RoomID, userID domain.UserID, transportID domain.TransportID) {
	room, err := s.store.Room(roomID)
	if err != nil {
		return
	}
	res, err := room.CloseTransport(userID, transportID)
	if err != nil {
		return
	}
	log.Info().Str("module", "app.session").Str("room", string(roomID)).Str("user", string(userID)).Str("transport", string(transportID)).Msg("transport closed by dtls signal")
	if len(res.ClosedProducerIDs) > 0 {
		s.notifier.NotifyAll(res.Remaining, notify.EventProducerClosed,
			notify.ProducerClosedEvent{RemoteProducerIDs: res.ClosedProducerIDs})
	}
}

// ConnectTransport forwards the client's DTLS parameters to finish the
// handshake.
func (s *Session) ConnectTransport(ctx context.Context, roomID domain.RoomID, userID domain.UserID, transportID domain.TransportID, direction domain.Direction, params media.ConnectParams) error {
	room, err := s.store.Room(roomID)
	if err != nil {
		return err
	}
	transport, err := room.FindTransport(userID, transportID, direction)
	if err != nil {
		return err
	}
	callCtx, cancel := s.engineCall(ctx)
	err = transport.Connect(callCtx, params)
	cancel()
	if err != nil {
		return engineErr(err)
	}
	room.MarkTransportConnected(transportID)
	return nil
}

type ProduceResult struct {
	ProducerID        domain.ProducerID   `json:"producerId"`
	ExistingProducers []core.PeerProducer `json:"existingProducers"`
}

// Produce starts publishing a stream over the peer's send transport.
// The returned list holds the other peers' producers the new publisher
// can consume; their owners are notified that a new producer exists.
func (s *Session) Produce(ctx context.Context, roomID domain.RoomID, userID domain.UserID, transportID domain.TransportID, kind domain.MediaKind, params media.RtpParameters) (ProduceResult, error) {
	if !kind.Valid() {
		return ProduceResult{}, fmt.Errorf("%w: bad media kind %q", domain.ErrEngineRejected, kind)
	}
	room, err := s.store.Room(roomID)
	if err != nil {
		return ProduceResult{}, err
	}
	transport, err := room.FindTransport(userID, transportID, domain.DirectionSend)
	if err != nil {
		return ProduceResult{}, err
	}

	callCtx, cancel := s.engineCall(ctx)
	producer, err := transport.Produce(callCtx, kind, params)
	cancel()
	if err != nil {
		return ProduceResult{}, engineErr(err)
	}

	existing, err := room.AddProducer(userID, transportID, producer)
	if err != nil {
		producer.Close()
		return ProduceResult{}, err
	}

	for _, owner := range producerOwners(existing) {
		s.notifier.Notify(owner, notify.EventNewProducer,
			notify.NewProducerEvent{ProducerID: producer.ID()})
	}

	return ProduceResult{ProducerID: producer.ID(), ExistingProducers: existing}, nil
}

// producerOwners dedupes the owner set so a peer with several producers
// hears about a new one exactly once.
func producerOwners(producers []core.PeerProducer) []domain.UserID {
	seen := make(map[domain.UserID]struct{}, len(producers))
	out := make([]domain.UserID, 0, len(producers))
	for _, p := range producers {
		if _, ok := seen[p.UserID]; ok {
			continue
		}
		seen[p.UserID] = struct{}{}
		out = append(out, p.UserID)
	}
	return out
}

type ConsumeResult struct {
	ID            domain.ConsumerID   `json:"id"`
	ProducerID    domain.ProducerID   `json:"producerId"`
	Kind          domain.MediaKind    `json:"kind"`
	RtpParameters media.RtpParameters `json:"rtpParameters"`
}

// Consume subscribes the peer to a remote producer. A capability
// mismatch yields ErrNotCapable, which callers must treat as a valid
// empty result, not a fault. The consumer starts paused.
func (s *Session) Consume(ctx context.Context, roomID domain.RoomID, userID domain.UserID, transportID domain.TransportID, caps media.RtpCapabilities, remoteProducerID domain.ProducerID) (ConsumeResult, error) {
	room, err := s.store.Room(roomID)
	if err != nil {
		return ConsumeResult{}, err
	}
	transport, err := room.FindTransport(userID, transportID, domain.DirectionRecv)
	if err != nil {
		return ConsumeResult{}, err
	}
	router := room.Router()
	if router == nil {
		return ConsumeResult{}, domain.ErrRoomNotFound
	}

	if !router.CanConsume(remoteProducerID, caps) {
		log.Debug().Str("module", "app.session").Str("room", string(roomID)).Str("user", string(userID)).Str("producer", string(remoteProducerID)).Msg("consume refused: not capable")
		return ConsumeResult{}, domain.ErrNotCapable
	}

	callCtx, cancel := s.engineCall(ctx)
	consumer, err := transport.Consume(callCtx, remoteProducerID, caps)
	cancel()
	if err != nil {
		return ConsumeResult{}, engineErr(err)
	}

	if err := room.AddConsumer(userID, transportID, consumer); err != nil {
		consumer.Close()
		return ConsumeResult{}, err
	}

	return ConsumeResult{
		ID:            consumer.ID(),
		ProducerID:    consumer.ProducerID(),
		Kind:          consumer.Kind(),
		RtpParameters: consumer.RtpParameters(),
	}, nil
}

// ResumeConsumer unpauses a consumer so media starts flowing.
func (s *Session) ResumeConsumer(ctx context.Context, roomID domain.RoomID, userID domain.UserID, consumerID domain.ConsumerID) error {
	room, err := s.store.Room(roomID)
	if err != nil {
		return err
	}
	consumer, err := room.FindConsumer(userID, consumerID)
	if err != nil {
		return err
	}
	callCtx, cancel := s.engineCall(ctx)
	err = consumer.Resume(callCtx)
	cancel()
	if err != nil {
		return engineErr(err)
	}
	room.MarkConsumerActive(consumerID)
	return nil
}

// Leave removes the peer with the full cascading close and pushes
// producer-closed to every remaining peer that could have been
// consuming the departed peer's streams.
func (s *Session) Leave(roomID domain.RoomID, userID domain.UserID) (core.RemovePeerResult, error) {
	res, err := s.store.RemovePeer(roomID, userID)
	if err != nil {
		return core.RemovePeerResult{}, err
	}
	s.registry.Unbind(userID)
	if len(res.ClosedProducerIDs) > 0 {
		s.notifier.NotifyAll(res.Remaining, notify.EventProducerClosed,
			notify.ProducerClosedEvent{RemoteProducerIDs: res.ClosedProducerIDs})
	}
	return res, nil
}

// Disconnect handles a dropped signaling channel: look the room up in
// the derived index and run the normal leave cascade.
func (s *Session) Disconnect(userID domain.UserID) {
	roomID, ok := s.registry.RoomOf(userID)
	if !ok {
		return
	}
	if _, err := s.Leave(roomID, userID); err != nil {
		log.Debug().Err(err).Str("module", "app.session").Str("user", string(userID)).Msg("disconnect cleanup")
	}
}
