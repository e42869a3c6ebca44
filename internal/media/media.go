// Package media defines the typed interface to the media engine. The
// session layer only ever talks to these ports; the pion implementation
// lives in media/pion, a deterministic fake in media/mediatest.
package media

import (
	"context"

	"github.com/drossen/confer/internal/domain"
)

// Engine is one running media-engine handle. Done is closed if the
// engine terminates unexpectedly, which is fatal for the whole service.
type Engine interface {
	CreateRouter(ctx context.Context, codecs []RtpCodec) (Router, error)
	Done() <-chan struct{}
	Close()
}

// Router scopes which producers and consumers can exchange media. One
// router per room.
type Router interface {
	RtpCapabilities() RtpCapabilities
	CreateTransport(ctx context.Context) (Transport, error)
	CanConsume(producerID domain.ProducerID, caps RtpCapabilities) bool
	Close()
}

// Transport is one negotiated ICE/DTLS endpoint for one peer and one
// direction.
type Transport interface {
	ID() domain.TransportID
	Info() TransportInfo
	Connect(ctx context.Context, params ConnectParams) error
	Produce(ctx context.Context, kind domain.MediaKind, params RtpParameters) (Producer, error)
	// Consume creates a paused consumer for the given remote producer.
	Consume(ctx context.Context, producerID domain.ProducerID, caps RtpCapabilities) (Consumer, error)
	// OnDtlsClosed registers the handler invoked when the remote end
	// tears the DTLS association down.
	OnDtlsClosed(func())
	Close()
}

type Producer interface {
	ID() domain.ProducerID
	Kind() domain.MediaKind
	Close()
}

type Consumer interface {
	ID() domain.ConsumerID
	ProducerID() domain.ProducerID
	Kind() domain.MediaKind
	RtpParameters() RtpParameters
	Resume(ctx context.Context) error
	Close()
}
