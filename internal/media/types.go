package media

import "github.com/drossen/confer/internal/domain"

// Wire types exchanged with clients during negotiation. These mirror the
// parameters the engine hands out; the session layer treats them as opaque.

type IceParameters struct {
	UsernameFragment string `json:"usernameFragment"`
	Password         string `json:"password"`
	IceLite          bool   `json:"iceLite,omitempty"`
}

type IceCandidate struct {
	Foundation string `json:"foundation"`
	Priority   uint32 `json:"priority"`
	IP         string `json:"ip"`
	Protocol   string `json:"protocol"`
	Port       uint16 `json:"port"`
	Type       string `json:"type"`
}

type DtlsFingerprint struct {
	Algorithm string `json:"algorithm"`
	Value     string `json:"value"`
}

type DtlsParameters struct {
	Role         string            `json:"role,omitempty"`
	Fingerprints []DtlsFingerprint `json:"fingerprints"`
}

type RtpCodec struct {
	MimeType  string `json:"mimeType"`
	ClockRate uint32 `json:"clockRate"`
	Channels  uint16 `json:"channels,omitempty"`
	// PayloadType is assigned when the codec appears inside RtpParameters;
	// it is zero in a capability declaration.
	PayloadType uint8 `json:"payloadType,omitempty"`
}

// RtpCapabilities declares the codecs a router or client can handle.
type RtpCapabilities struct {
	Codecs []RtpCodec `json:"codecs"`
}

type RtpEncoding struct {
	SSRC uint32 `json:"ssrc"`
}

// RtpParameters describes one actual stream: negotiated codecs plus
// encodings with concrete SSRCs.
type RtpParameters struct {
	Codecs    []RtpCodec    `json:"codecs"`
	Encodings []RtpEncoding `json:"encodings"`
}

// ConnectParams is the client's half of the transport negotiation.
// Dtls is always required. The ICE section is only needed by engines
// that run full ICE; an ICE-lite engine learns the remote side from
// incoming binding requests and ignores it.
type ConnectParams struct {
	Dtls          DtlsParameters `json:"dtlsParameters"`
	Ice           *IceParameters `json:"iceParameters,omitempty"`
	IceCandidates []IceCandidate `json:"iceCandidates,omitempty"`
}

// TransportInfo is what a client needs to finish ICE/DTLS negotiation
// against a freshly created transport.
type TransportInfo struct {
	ID             domain.TransportID `json:"id"`
	IceParameters  IceParameters      `json:"iceParameters"`
	IceCandidates  []IceCandidate     `json:"iceCandidates"`
	DtlsParameters DtlsParameters     `json:"dtlsParameters"`
}
