package media

import "strings"

// DefaultCodecs is the fixed codec configuration every room's router is
// created with: opus for audio, VP8/VP9/H264 for video.
var DefaultCodecs = []RtpCodec{
	{MimeType: "audio/opus", ClockRate: 48000, Channels: 2},
	{MimeType: "video/VP8", ClockRate: 90000},
	{MimeType: "video/VP9", ClockRate: 90000},
	{MimeType: "video/H264", ClockRate: 90000},
}

// CodecMatch reports whether two codec descriptions are compatible:
// same mime type (case-insensitive), same clock rate, and for audio the
// same channel count.
func CodecMatch(a, b RtpCodec) bool {
	if !strings.EqualFold(a.MimeType, b.MimeType) {
		return false
	}
	if a.ClockRate != b.ClockRate {
		return false
	}
	if strings.HasPrefix(strings.ToLower(a.MimeType), "audio/") && a.Channels != b.Channels {
		return false
	}
	return true
}

// CanConsume reports whether a consumer declaring caps can receive a
// stream described by params: every codec of the stream must have a
// compatible entry in the consumer's capabilities.
func CanConsume(params RtpParameters, caps RtpCapabilities) bool {
	if len(params.Codecs) == 0 {
		return false
	}
	for _, pc := range params.Codecs {
		matched := false
		for _, cc := range caps.Codecs {
			if CodecMatch(pc, cc) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}
