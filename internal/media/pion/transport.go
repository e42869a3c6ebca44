package pion

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/drossen/confer/internal/domain"
	"github.com/drossen/confer/internal/media"
)

type transport struct {
	router   *router
	id       domain.TransportID
	gatherer *webrtc.ICEGatherer
	ice      *webrtc.ICETransport
	dtls     *webrtc.DTLSTransport

	mu           sync.Mutex
	closed       bool
	onDtlsClosed func()
}

func (t *transport) ID() domain.TransportID { return t.id }

func (t *transport) Info() media.TransportInfo {
	iceParams, _ := t.gatherer.GetLocalParameters()
	candidates, _ := t.gatherer.GetLocalCandidates()
	dtlsParams, _ := t.dtls.GetLocalParameters()

	info := media.TransportInfo{
		ID: t.id,
		IceParameters: media.IceParameters{
			UsernameFragment: iceParams.UsernameFragment,
			Password:         iceParams.Password,
			IceLite:          iceParams.ICELite,
		},
		DtlsParameters: media.DtlsParameters{
			Role: dtlsRoleString(dtlsParams.Role),
		},
	}
	for _, c := range candidates {
		info.IceCandidates = append(info.IceCandidates, media.IceCandidate{
			Foundation: c.Foundation,
			Priority:   c.Priority,
			IP:         c.Address,
			Protocol:   c.Protocol.String(),
			Port:       c.Port,
			Type:       c.Typ.String(),
		})
	}
	for _, f := range dtlsParams.Fingerprints {
		info.DtlsParameters.Fingerprints = append(info.DtlsParameters.Fingerprints, media.DtlsFingerprint{
			Algorithm: f.Algorithm,
			Value:     f.Value,
		})
	}
	return info
}

// Connect starts ICE and DTLS against the client's parameters. The
// server always takes the controlled ICE role.
func (t *transport) Connect(ctx context.Context, params media.ConnectParams) error {
	if params.Ice == nil {
		return fmt.Errorf("transport %s: missing remote ice parameters", t.id)
	}

	var remoteCandidates []webrtc.ICECandidate
	for _, c := range params.IceCandidates {
		proto, err := webrtc.NewICEProtocol(c.Protocol)
		if err != nil {
			return fmt.Errorf("transport %s: %w", t.id, err)
		}
		typ, err := webrtc.NewICECandidateType(c.Type)
		if err != nil {
			return fmt.Errorf("transport %s: %w", t.id, err)
		}
		remoteCandidates = append(remoteCandidates, webrtc.ICECandidate{
			Foundation: c.Foundation,
			Priority:   c.Priority,
			Address:    c.IP,
			Protocol:   proto,
			Port:       c.Port,
			Typ:        typ,
		})
	}
	remoteIce := webrtc.ICEParameters{
		UsernameFragment: params.Ice.UsernameFragment,
		Password:         params.Ice.Password,
		ICELite:          params.Ice.IceLite,
	}
	dtlsParams := webrtc.DTLSParameters{Role: dtlsRoleFromString(params.Dtls.Role)}
	for _, f := range params.Dtls.Fingerprints {
		dtlsParams.Fingerprints = append(dtlsParams.Fingerprints, webrtc.DTLSFingerprint{
			Algorithm: f.Algorithm,
			Value:     f.Value,
		})
	}

	// Both Start calls block until the handshake settles, so they run
	// off the calling goroutine; a transport whose handshake outlived
	// the deadline is useless and gets torn down.
	errCh := make(chan error, 1)
	go func() {
		if err := t.ice.SetRemoteCandidates(remoteCandidates); err != nil {
			errCh <- err
			return
		}
		iceRole := webrtc.ICERoleControlled
		if err := t.ice.Start(nil, remoteIce, &iceRole); err != nil {
			errCh <- err
			return
		}
		errCh <- t.dtls.Start(dtlsParams)
	}()
	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		t.Close()
		return ctx.Err()
	}
	log.Info().Str("module", "media.pion").Str("transport", string(t.id)).Msg("transport connected")
	return nil
}

func (t *transport) Produce(ctx context.Context, kind domain.MediaKind, params media.RtpParameters) (media.Producer, error) {
	codecType := webrtc.RTPCodecTypeVideo
	if kind == domain.MediaAudio {
		codecType = webrtc.RTPCodecTypeAudio
	}
	receiver, err := t.router.api.NewRTPReceiver(codecType, t.dtls)
	if err != nil {
		return nil, err
	}

	recvParams := webrtc.RTPReceiveParameters{}
	for _, enc := range params.Encodings {
		recvParams.Encodings = append(recvParams.Encodings, webrtc.RTPDecodingParameters{
			RTPCodingParameters: webrtc.RTPCodingParameters{SSRC: webrtc.SSRC(enc.SSRC)},
		})
	}
	errCh := make(chan error, 1)
	go func() { errCh <- receiver.Receive(recvParams) }()
	select {
	case err := <-errCh:
		if err != nil {
			return nil, err
		}
	case <-ctx.Done():
		go func() {
			if <-errCh == nil {
				_ = receiver.Stop()
			}
		}()
		return nil, ctx.Err()
	}

	p := newProducer(t.router, domain.ProducerID(uuid.NewString()), kind, params, receiver)
	t.router.registerProducer(p)
	p.startRelay()
	return p, nil
}

func (t *transport) Consume(ctx context.Context, producerID domain.ProducerID, caps media.RtpCapabilities) (media.Consumer, error) {
	p, ok := t.router.producerByID(producerID)
	if !ok {
		return nil, fmt.Errorf("producer %s not found on router", producerID)
	}

	var codec media.RtpCodec
	for _, pc := range p.params.Codecs {
		for _, cc := range caps.Codecs {
			if media.CodecMatch(pc, cc) {
				codec = pc
			}
		}
	}
	if codec.MimeType == "" {
		return nil, fmt.Errorf("no compatible codec for producer %s", producerID)
	}

	id := domain.ConsumerID(uuid.NewString())
	local, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{
		MimeType:  codec.MimeType,
		ClockRate: codec.ClockRate,
		Channels:  codec.Channels,
	}, string(id), "confer")
	if err != nil {
		return nil, err
	}
	sender, err := t.router.api.NewRTPSender(local, t.dtls)
	if err != nil {
		return nil, err
	}
	errCh := make(chan error, 1)
	go func() { errCh <- sender.Send(sender.GetParameters()) }()
	select {
	case err := <-errCh:
		if err != nil {
			return nil, err
		}
	case <-ctx.Done():
		go func() {
			if <-errCh == nil {
				_ = sender.Stop()
			}
		}()
		return nil, ctx.Err()
	}

	c := newConsumer(id, p, sender, local)
	p.addOutTrack(c.out)
	return c, nil
}

func (t *transport) OnDtlsClosed(f func()) {
	t.mu.Lock()
	t.onDtlsClosed = f
	t.mu.Unlock()
}

func (t *transport) fireDtlsClosed() {
	t.mu.Lock()
	f := t.onDtlsClosed
	t.mu.Unlock()
	if f != nil {
		f()
	}
}

func (t *transport) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.mu.Unlock()
	_ = t.dtls.Stop()
	_ = t.ice.Stop()
	_ = t.gatherer.Close()
}

func dtlsRoleString(r webrtc.DTLSRole) string {
	switch r {
	case webrtc.DTLSRoleClient:
		return "client"
	case webrtc.DTLSRoleServer:
		return "server"
	default:
		return "auto"
	}
}

func dtlsRoleFromString(s string) webrtc.DTLSRole {
	switch s {
	case "client":
		return webrtc.DTLSRoleClient
	case "server":
		return webrtc.DTLSRoleServer
	default:
		return webrtc.DTLSRoleAuto
	}
}
