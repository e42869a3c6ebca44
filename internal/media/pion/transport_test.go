package pion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drossen/confer/internal/media"
)

func TestConnectHonorsContext(t *testing.T) {
	engine, err := NewEngine(Config{})
	require.NoError(t, err)
	defer engine.Close()

	router, err := engine.CreateRouter(context.Background(), media.DefaultCodecs)
	require.NoError(t, err)

	transport, err := router.CreateTransport(context.Background())
	require.NoError(t, err)
	info := transport.Info()
	assert.NotEmpty(t, info.IceParameters.UsernameFragment)
	assert.NotEmpty(t, info.DtlsParameters.Fingerprints)

	// The remote side is unreachable, so the handshake can only end via
	// the context.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = transport.Connect(ctx, media.ConnectParams{
		Dtls: media.DtlsParameters{
			Role:         "client",
			Fingerprints: []media.DtlsFingerprint{{Algorithm: "sha-256", Value: "00:11:22:33:44:55:66:77:88:99:AA:BB:CC:DD:EE:FF:00:11:22:33:44:55:66:77:88:99:AA:BB:CC:DD:EE:FF"}},
		},
		Ice: &media.IceParameters{
			UsernameFragment: "remoteufrag",
			Password:         "remotepasswordremotepassword",
		},
		IceCandidates: []media.IceCandidate{
			{Foundation: "1", Priority: 1, IP: "203.0.113.1", Protocol: "udp", Port: 40000, Type: "host"},
		},
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConnectRequiresIceParameters(t *testing.T) {
	engine, err := NewEngine(Config{})
	require.NoError(t, err)
	defer engine.Close()

	router, err := engine.CreateRouter(context.Background(), media.DefaultCodecs)
	require.NoError(t, err)
	transport, err := router.CreateTransport(context.Background())
	require.NoError(t, err)
	defer transport.Close()

	err = transport.Connect(context.Background(), media.ConnectParams{
		Dtls: media.DtlsParameters{Fingerprints: []media.DtlsFingerprint{{Algorithm: "sha-256", Value: "00"}}},
	})
	assert.Error(t, err)
}
