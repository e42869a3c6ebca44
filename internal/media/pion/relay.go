package pion

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/drossen/confer/internal/domain"
	"github.com/drossen/confer/internal/media"
)

type trackState int32

const (
	trackStatePaused trackState = iota
	trackStateActive
	trackStateDelete
)

// outTrack is one consumer's outgoing leg of a producer's stream. It
// starts paused; Resume on the consumer activates it.
type outTrack struct {
	track *webrtc.TrackLocalStaticRTP
	state atomic.Int32 // zero value is trackStatePaused
}

func (ot *outTrack) getState() trackState { return trackState(ot.state.Load()) }
func (ot *outTrack) markActive()          { ot.state.Store(int32(trackStateActive)) }
func (ot *outTrack) markDelete()          { ot.state.Store(int32(trackStateDelete)) }

type producer struct {
	router   *router
	id       domain.ProducerID
	kind     domain.MediaKind
	params   media.RtpParameters
	receiver *webrtc.RTPReceiver
	cancel   context.CancelFunc

	mu        sync.RWMutex
	closed    bool
	outTracks map[*outTrack]struct{}
}

func newProducer(r *router, id domain.ProducerID, kind domain.MediaKind, params media.RtpParameters, receiver *webrtc.RTPReceiver) *producer {
	return &producer{
		router:    r,
		id:        id,
		kind:      kind,
		params:    params,
		receiver:  receiver,
		outTracks: make(map[*outTrack]struct{}),
	}
}

func (p *producer) ID() domain.ProducerID  { return p.id }
func (p *producer) Kind() domain.MediaKind { return p.kind }

func (p *producer) addOutTrack(ot *outTrack) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		ot.markDelete()
		return
	}
	p.outTracks[ot] = struct{}{}
}

func (p *producer) startRelay() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go p.loop(ctx)
}

// loop reads RTP from the producer's remote track and forwards each
// packet to every active out track.
func (p *producer) loop(ctx context.Context) {
	track := p.receiver.Track()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		pkt, _, err := track.ReadRTP()
		if err != nil {
			log.Debug().Err(err).Str("module", "media.pion").Str("producer", string(p.id)).Msg("relay read ended")
			return
		}
		p.forward(pkt)
	}
}

func (p *producer) forward(pkt *rtp.Packet) {
	p.mu.RLock()
	snapshot := make(map[*outTrack]struct{}, len(p.outTracks))
	maps.Copy(snapshot, p.outTracks)
	p.mu.RUnlock()

	var dirty []*outTrack
	for ot := range snapshot {
		switch ot.getState() {
		case trackStateDelete:
			dirty = append(dirty, ot)
		case trackStatePaused:
		case trackStateActive:
			if err := ot.track.WriteRTP(pkt); err != nil {
				ot.markDelete()
				dirty = append(dirty, ot)
			}
		}
	}
	if len(dirty) > 0 {
		p.mu.Lock()
		for _, ot := range dirty {
			delete(p.outTracks, ot)
		}
		p.mu.Unlock()
	}
}

func (p *producer) removeOutTrack(ot *outTrack) {
	ot.markDelete()
	p.mu.Lock()
	delete(p.outTracks, ot)
	p.mu.Unlock()
}

func (p *producer) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for ot := range p.outTracks {
		ot.markDelete()
	}
	p.outTracks = make(map[*outTrack]struct{})
	p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}
	_ = p.receiver.Stop()
	p.router.unregisterProducer(p.id)
}

type consumer struct {
	id       domain.ConsumerID
	producer *producer
	sender   *webrtc.RTPSender
	out      *outTrack

	once sync.Once
}

func newConsumer(id domain.ConsumerID, p *producer, sender *webrtc.RTPSender, local *webrtc.TrackLocalStaticRTP) *consumer {
	return &consumer{
		id:       id,
		producer: p,
		sender:   sender,
		out:      &outTrack{track: local},
	}
}

func (c *consumer) ID() domain.ConsumerID              { return c.id }
func (c *consumer) ProducerID() domain.ProducerID      { return c.producer.id }
func (c *consumer) Kind() domain.MediaKind             { return c.producer.kind }
func (c *consumer) RtpParameters() media.RtpParameters { return c.producer.params }

func (c *consumer) Resume(ctx context.Context) error {
	c.out.markActive()
	return nil
}

func (c *consumer) Close() {
	c.once.Do(func() {
		c.producer.removeOutTrack(c.out)
		_ = c.sender.Stop()
	})
}
