// Package mediatest is an in-memory media engine used by tests. It
// implements the full media port surface deterministically and lets a
// test inject engine-side failures.
package mediatest

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/drossen/confer/internal/domain"
	"github.com/drossen/confer/internal/media"
)

type Engine struct {
	mu   sync.Mutex
	done chan struct{}

	// Failure injection: when set, the corresponding call fails.
	RouterErr    error
	TransportErr error
	ConnectErr   error
	ProduceErr   error
	ConsumeErr   error
	ResumeErr    error

	Routers []*Router
}

func NewEngine() *Engine {
	return &Engine{done: make(chan struct{})}
}

func (e *Engine) CreateRouter(ctx context.Context, codecs []media.RtpCodec) (media.Router, error) {
	if e.RouterErr != nil {
		return nil, e.RouterErr
	}
	r := &Router{
		engine:    e,
		caps:      media.RtpCapabilities{Codecs: codecs},
		producers: make(map[domain.ProducerID]media.RtpParameters),
	}
	e.mu.Lock()
	e.Routers = append(e.Routers, r)
	e.mu.Unlock()
	return r, nil
}

func (e *Engine) Done() <-chan struct{} { return e.done }

// Die simulates an unexpected engine termination.
func (e *Engine) Die() { close(e.done) }

func (e *Engine) Close() {}

type Router struct {
	engine *Engine
	caps   media.RtpCapabilities

	mu        sync.Mutex
	closed    bool
	producers map[domain.ProducerID]media.RtpParameters
}

func (r *Router) RtpCapabilities() media.RtpCapabilities { return r.caps }

func (r *Router) CreateTransport(ctx context.Context) (media.Transport, error) {
	if r.engine.TransportErr != nil {
		return nil, r.engine.TransportErr
	}
	return &Transport{
		router: r,
		id:     domain.TransportID(uuid.NewString()),
	}, nil
}

func (r *Router) CanConsume(producerID domain.ProducerID, caps media.RtpCapabilities) bool {
	r.mu.Lock()
	params, ok := r.producers[producerID]
	r.mu.Unlock()
	return ok && media.CanConsume(params, caps)
}

func (r *Router) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

func (r *Router) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

type Transport struct {
	router *Router
	id     domain.TransportID

	mu           sync.Mutex
	closed       bool
	connected    bool
	onDtlsClosed func()
}

func (t *Transport) ID() domain.TransportID { return t.id }

func (t *Transport) Info() media.TransportInfo {
	return media.TransportInfo{
		ID: t.id,
		IceParameters: media.IceParameters{
			UsernameFragment: "ufrag-" + string(t.id)[:8],
			Password:         "pwd-" + string(t.id)[:8],
		},
		IceCandidates: []media.IceCandidate{
			{Foundation: "1", Priority: 1, IP: "127.0.0.1", Protocol: "udp", Port: 40000, Type: "host"},
		},
		DtlsParameters: media.DtlsParameters{
			Role:         "auto",
			Fingerprints: []media.DtlsFingerprint{{Algorithm: "sha-256", Value: "00:11:22"}},
		},
	}
}

func (t *Transport) Connect(ctx context.Context, params media.ConnectParams) error {
	if t.router.engine.ConnectErr != nil {
		return t.router.engine.ConnectErr
	}
	t.mu.Lock()
	t.connected = true
	t.mu.Unlock()
	return nil
}

func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *Transport) Produce(ctx context.Context, kind domain.MediaKind, params media.RtpParameters) (media.Producer, error) {
	if t.router.engine.ProduceErr != nil {
		return nil, t.router.engine.ProduceErr
	}
	p := &Producer{
		router: t.router,
		id:     domain.ProducerID(uuid.NewString()),
		kind:   kind,
	}
	t.router.mu.Lock()
	t.router.producers[p.id] = params
	t.router.mu.Unlock()
	return p, nil
}

func (t *Transport) Consume(ctx context.Context, producerID domain.ProducerID, caps media.RtpCapabilities) (media.Consumer, error) {
	if t.router.engine.ConsumeErr != nil {
		return nil, t.router.engine.ConsumeErr
	}
	t.router.mu.Lock()
	params, ok := t.router.producers[producerID]
	t.router.mu.Unlock()
	if !ok {
		return nil, errors.New("unknown producer")
	}
	return &Consumer{
		engine:     t.router.engine,
		id:         domain.ConsumerID(uuid.NewString()),
		producerID: producerID,
		params:     params,
	}, nil
}

func (t *Transport) OnDtlsClosed(f func()) {
	t.mu.Lock()
	t.onDtlsClosed = f
	t.mu.Unlock()
}

// FireDtlsClosed triggers the registered DTLS-closed handler, the way
// a real engine signals a torn-down association.
func (t *Transport) FireDtlsClosed() {
	t.mu.Lock()
	f := t.onDtlsClosed
	t.mu.Unlock()
	if f != nil {
		f()
	}
}

func (t *Transport) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

type Producer struct {
	router *Router
	id     domain.ProducerID
	kind   domain.MediaKind

	mu     sync.Mutex
	closed bool
}

func (p *Producer) ID() domain.ProducerID  { return p.id }
func (p *Producer) Kind() domain.MediaKind { return p.kind }

// Close deregisters the producer so CanConsume stops matching it, the
// way the real engine drops it from its router.
func (p *Producer) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.router.mu.Lock()
	delete(p.router.producers, p.id)
	p.router.mu.Unlock()
}

func (p *Producer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type Consumer struct {
	engine     *Engine
	id         domain.ConsumerID
	producerID domain.ProducerID
	params     media.RtpParameters

	mu      sync.Mutex
	closed  bool
	resumed bool
}

func (c *Consumer) ID() domain.ConsumerID              { return c.id }
func (c *Consumer) ProducerID() domain.ProducerID      { return c.producerID }
func (c *Consumer) RtpParameters() media.RtpParameters { return c.params }

func (c *Consumer) Kind() domain.MediaKind {
	if len(c.params.Codecs) > 0 && len(c.params.Codecs[0].MimeType) > 5 && c.params.Codecs[0].MimeType[:5] == "audio" {
		return domain.MediaAudio
	}
	return domain.MediaVideo
}

func (c *Consumer) Resume(ctx context.Context) error {
	if c.engine.ResumeErr != nil {
		return c.engine.ResumeErr
	}
	c.mu.Lock()
	c.resumed = true
	c.mu.Unlock()
	return nil
}

func (c *Consumer) Resumed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resumed
}

func (c *Consumer) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *Consumer) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
