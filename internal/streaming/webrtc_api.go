package streaming

import (
	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/nack"
	"github.com/pion/interceptor/pkg/report"
	"github.com/pion/interceptor/pkg/twcc"
	"github.com/pion/rtcp"
	pion "github.com/pion/webrtc/v4"

	"github.com/Gateworks/gst-gateworks-apps/internal/metrics"
)

// nackBufferPackets covers roughly 1.5s of video at the 10 Mbit/s default
// ceiling. pion requires a power of two.
const nackBufferPackets = 2048

// The SRTP replay window must not be smaller than the NACK history or
// retransmissions get rejected as replays.
const srtpReplayWindow = 2 * nackBufferPackets

// h264Fmtp lists the profile-level-ids offered to browsers, baseline
// through high. Encoders emit either depending on caps.
var h264Fmtp = []string{
	"level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42001f",
	"level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
	"level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=4d001f",
	"level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=64001f",
	"level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=640028",
}

const firstH264PayloadType = 96

var videoFeedback = []pion.RTCPFeedback{
	{Type: "goog-remb"},
	{Type: "ccm", Parameter: "fir"},
	{Type: "nack"},
	{Type: "nack", Parameter: "pli"},
	{Type: pion.TypeRTCPFBTransportCC},
}

// NewWebRTCAPI builds the pion API used for one viewer's peer connection.
// Only H264 is negotiated since the relay carries nothing else.
func NewWebRTCAPI() (*pion.API, error) {
	m := &pion.MediaEngine{}
	for i, fmtp := range h264Fmtp {
		codec := pion.RTPCodecParameters{
			RTPCodecCapability: pion.RTPCodecCapability{
				MimeType:     pion.MimeTypeH264,
				ClockRate:    90000,
				SDPFmtpLine:  fmtp,
				RTCPFeedback: videoFeedback,
			},
			PayloadType: pion.PayloadType(firstH264PayloadType + i),
		}
		if err := m.RegisterCodec(codec, pion.RTPCodecTypeVideo); err != nil {
			return nil, err
		}
	}

	registry := &interceptor.Registry{}
	if err := addInterceptors(registry); err != nil {
		return nil, err
	}

	s := pion.SettingEngine{}
	s.SetDTLSInsecureSkipHelloVerify(true)
	s.SetSRTPReplayProtectionWindow(srtpReplayWindow)

	return pion.NewAPI(
		pion.WithMediaEngine(m),
		pion.WithInterceptorRegistry(registry),
		pion.WithSettingEngine(s),
	), nil
}

func addInterceptors(registry *interceptor.Registry) error {
	responder, err := nack.NewResponderInterceptor(nack.ResponderSize(nackBufferPackets))
	if err != nil {
		return err
	}
	generator, err := nack.NewGeneratorInterceptor()
	if err != nil {
		return err
	}
	receiverReports, err := report.NewReceiverInterceptor()
	if err != nil {
		return err
	}
	senderReports, err := report.NewSenderInterceptor()
	if err != nil {
		return err
	}
	transportCC, err := twcc.NewSenderInterceptor()
	if err != nil {
		return err
	}

	registry.Add(responder)
	registry.Add(generator)
	registry.Add(receiverReports)
	registry.Add(senderReports)
	registry.Add(transportCC)
	registry.Add(feedbackCounterFactory{})
	return nil
}

type feedbackCounterFactory struct{}

func (feedbackCounterFactory) NewInterceptor(string) (interceptor.Interceptor, error) {
	return &feedbackCounter{}, nil
}

// feedbackCounter exports the NACK, PLI and FIR requests peers send back.
type feedbackCounter struct {
	interceptor.NoOp
}

func (*feedbackCounter) BindRTCPReader(reader interceptor.RTCPReader) interceptor.RTCPReader {
	return interceptor.RTCPReaderFunc(func(b []byte, a interceptor.Attributes) (int, interceptor.Attributes, error) {
		n, attr, err := reader.Read(b, a)
		if err == nil {
			for kind, count := range countFeedback(b[:n]) {
				metrics.IncFeedback(kind, count)
			}
		}
		return n, attr, err
	})
}

// countFeedback tallies a compound RTCP packet by feedback kind. Each lost
// packet a NACK names counts once. Undecodable input yields nothing.
func countFeedback(raw []byte) map[string]int {
	packets, err := rtcp.Unmarshal(raw)
	if err != nil {
		return nil
	}
	counts := make(map[string]int)
	for _, pkt := range packets {
		switch p := pkt.(type) {
		case *rtcp.TransportLayerNack:
			for _, pair := range p.Nacks {
				counts[metrics.FeedbackNACK] += len(pair.PacketList())
			}
		case *rtcp.PictureLossIndication:
			counts[metrics.FeedbackPLI]++
		case *rtcp.FullIntraRequest:
			counts[metrics.FeedbackFIR]++
		case *rtcp.ReceiverReport, *rtcp.SenderReport, *rtcp.SourceDescription:
		default:
			counts[metrics.FeedbackOther]++
		}
	}
	return counts
}
