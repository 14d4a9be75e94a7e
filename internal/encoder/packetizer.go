package encoder

import (
	"strings"

	"github.com/AlexxIT/go2rtc/pkg/core"

	"github.com/Gateworks/gst-gateworks-apps/internal/pipeline"
)

// payloaders maps RTP payloader factories to the codec they carry.
var payloaders = map[string]string{
	"rtph264pay": core.CodecH264,
	"rtph265pay": core.CodecH265,
	"rtpvp8pay":  core.CodecVP8,
	"rtpvp9pay":  core.CodecVP9,
	"rtpjpegpay": core.CodecJPEG,
}

// IsPacketizer reports whether a factory name is an RTP payloader.
func IsPacketizer(typeName string) bool {
	return pipeline.IsPacketizerFactory(strings.ToLower(typeName))
}

// PayloadCodec returns the go2rtc codec name carried by a payloader.
func PayloadCodec(typeName string) (string, bool) {
	codec, ok := payloaders[strings.ToLower(typeName)]
	return codec, ok
}

// DefaultPayloadType is the dynamic RTP payload type used by the pipelines.
const DefaultPayloadType = 96

// PayloadType returns the "pt" property of a packetizer element, or the default.
func PayloadType(el pipeline.Element) uint8 {
	if el != nil {
		if v, ok := el.Property("pt"); ok {
			if pt, ok := pipeline.AsInt(v); ok && pt >= 96 && pt <= 127 {
				return uint8(pt)
			}
		}
	}
	return DefaultPayloadType
}
