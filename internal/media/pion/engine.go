// Package pion implements the media engine ports on pion/webrtc's ORTC
// API. Each router gets its own webrtc.API with the room's codec table
// registered; transports are ICE+DTLS transport pairs, producers are
// RTP receivers, consumers are RTP senders fed by a per-producer relay.
package pion

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/drossen/confer/internal/domain"
	"github.com/drossen/confer/internal/media"
)

// Config carries the engine-level network settings.
type Config struct {
	MinPort     uint16
	MaxPort     uint16
	AnnouncedIP string
	STUNServers []string
}

type Engine struct {
	cfg  Config
	se   webrtc.SettingEngine
	done chan struct{}

	mu      sync.Mutex
	closed  bool
	routers []*router
}

func NewEngine(cfg Config) (*Engine, error) {
	se := webrtc.SettingEngine{}
	if cfg.MinPort != 0 || cfg.MaxPort != 0 {
		if err := se.SetEphemeralUDPPortRange(cfg.MinPort, cfg.MaxPort); err != nil {
			return nil, err
		}
	}
	if cfg.AnnouncedIP != "" {
		se.SetNAT1To1IPs([]string{cfg.AnnouncedIP}, webrtc.ICECandidateTypeHost)
	}
	return &Engine{
		cfg:  cfg,
		se:   se,
		done: make(chan struct{}),
	}, nil
}

// Done never fires for the in-process engine except through Close; it
// exists so callers treat this engine like an external process handle.
func (e *Engine) Done() <-chan struct{} { return e.done }

func (e *Engine) CreateRouter(ctx context.Context, codecs []media.RtpCodec) (media.Router, error) {
	me := &webrtc.MediaEngine{}
	for i, c := range codecs {
		typ := webrtc.RTPCodecTypeVideo
		if kindOf(c.MimeType) == domain.MediaAudio {
			typ = webrtc.RTPCodecTypeAudio
		}
		err := me.RegisterCodec(webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:  c.MimeType,
				ClockRate: c.ClockRate,
				Channels:  c.Channels,
			},
			PayloadType: payloadTypeFor(c.MimeType, i),
		}, typ)
		if err != nil {
			return nil, err
		}
	}

	r := &router{
		engine:    e,
		api:       webrtc.NewAPI(webrtc.WithMediaEngine(me), webrtc.WithSettingEngine(e.se)),
		caps:      media.RtpCapabilities{Codecs: codecs},
		producers: make(map[domain.ProducerID]*producer),
	}
	e.mu.Lock()
	e.routers = append(e.routers, r)
	e.mu.Unlock()
	log.Info().Str("module", "media.pion").Int("codecs", len(codecs)).Msg("router created")
	return r, nil
}

func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	routers := e.routers
	e.routers = nil
	e.mu.Unlock()
	for _, r := range routers {
		r.Close()
	}
	close(e.done)
}

// Well-known payload types for the default codec table; anything else
// gets a dynamic one offset from 96.
func payloadTypeFor(mimeType string, i int) webrtc.PayloadType {
	switch mimeType {
	case webrtc.MimeTypeOpus:
		return 111
	case webrtc.MimeTypeVP8:
		return 96
	case webrtc.MimeTypeVP9:
		return 98
	case webrtc.MimeTypeH264:
		return 102
	default:
		return webrtc.PayloadType(96 + i)
	}
}

func kindOf(mimeType string) domain.MediaKind {
	if len(mimeType) >= 6 && mimeType[:6] == "audio/" {
		return domain.MediaAudio
	}
	return domain.MediaVideo
}
