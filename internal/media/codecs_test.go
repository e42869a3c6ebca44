package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodecMatch(t *testing.T) {
	opus := RtpCodec{MimeType: "audio/opus", ClockRate: 48000, Channels: 2}

	assert.True(t, CodecMatch(opus, RtpCodec{MimeType: "audio/OPUS", ClockRate: 48000, Channels: 2}),
		"mime comparison is case-insensitive")
	assert.False(t, CodecMatch(opus, RtpCodec{MimeType: "audio/opus", ClockRate: 24000, Channels: 2}),
		"clock rate must match")
	assert.False(t, CodecMatch(opus, RtpCodec{MimeType: "audio/opus", ClockRate: 48000, Channels: 1}),
		"audio channel count must match")

	vp8 := RtpCodec{MimeType: "video/VP8", ClockRate: 90000}
	assert.True(t, CodecMatch(vp8, RtpCodec{MimeType: "video/vp8", ClockRate: 90000, Channels: 4}),
		"channels are ignored for video")
	assert.False(t, CodecMatch(vp8, RtpCodec{MimeType: "video/VP9", ClockRate: 90000}))
}

func TestCanConsume(t *testing.T) {
	params := RtpParameters{
		Codecs:    []RtpCodec{{MimeType: "audio/opus", ClockRate: 48000, Channels: 2}},
		Encodings: []RtpEncoding{{SSRC: 1111}},
	}

	full := RtpCapabilities{Codecs: DefaultCodecs}
	assert.True(t, CanConsume(params, full))

	videoOnly := RtpCapabilities{Codecs: []RtpCodec{{MimeType: "video/VP8", ClockRate: 90000}}}
	assert.False(t, CanConsume(params, videoOnly))

	assert.False(t, CanConsume(RtpParameters{}, full), "a stream without codecs is never consumable")
}
