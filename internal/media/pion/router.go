package pion

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/drossen/confer/internal/domain"
	"github.com/drossen/confer/internal/media"
)

type router struct {
	engine *Engine
	api    *webrtc.API
	caps   media.RtpCapabilities

	mu        sync.Mutex
	closed    bool
	producers map[domain.ProducerID]*producer
}

func (r *router) RtpCapabilities() media.RtpCapabilities { return r.caps }

func (r *router) CreateTransport(ctx context.Context) (media.Transport, error) {
	var servers []webrtc.ICEServer
	for _, u := range r.engine.cfg.STUNServers {
		servers = append(servers, webrtc.ICEServer{URLs: []string{u}})
	}

	gatherer, err := r.api.NewICEGatherer(webrtc.ICEGatherOptions{ICEServers: servers})
	if err != nil {
		return nil, err
	}
	ice := r.api.NewICETransport(gatherer)
	dtls, err := r.api.NewDTLSTransport(ice, nil)
	if err != nil {
		return nil, err
	}

	gatherDone := make(chan struct{})
	gatherer.OnLocalCandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			close(gatherDone)
		}
	})
	if err := gatherer.Gather(); err != nil {
		return nil, err
	}
	select {
	case <-gatherDone:
	case <-ctx.Done():
		_ = gatherer.Close()
		return nil, ctx.Err()
	}

	t := &transport{
		router:   r,
		id:       domain.TransportID(uuid.NewString()),
		gatherer: gatherer,
		ice:      ice,
		dtls:     dtls,
	}
	dtls.OnStateChange(func(state webrtc.DTLSTransportState) {
		if state == webrtc.DTLSTransportStateClosed || state == webrtc.DTLSTransportStateFailed {
			t.fireDtlsClosed()
		}
	})
	return t, nil
}

func (r *router) CanConsume(producerID domain.ProducerID, caps media.RtpCapabilities) bool {
	r.mu.Lock()
	p, ok := r.producers[producerID]
	r.mu.Unlock()
	return ok && media.CanConsume(p.params, caps)
}

func (r *router) registerProducer(p *producer) {
	r.mu.Lock()
	r.producers[p.id] = p
	r.mu.Unlock()
}

func (r *router) unregisterProducer(id domain.ProducerID) {
	r.mu.Lock()
	delete(r.producers, id)
	r.mu.Unlock()
}

func (r *router) producerByID(id domain.ProducerID) (*producer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.producers[id]
	return p, ok
}

func (r *router) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	producers := make([]*producer, 0, len(r.producers))
	for _, p := range r.producers {
		producers = append(producers, p)
	}
	r.producers = make(map[domain.ProducerID]*producer)
	r.mu.Unlock()
	for _, p := range producers {
		p.Close()
	}
}
