package streaming

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

const sdpContentType = "application/sdp"

// WebRTCOfferInput carries a browser's SDP offer.
type WebRTCOfferInput struct {
	StreamID string `query:"stream" doc:"Mount to connect to, defaults to the served mount"`
	RawBody  []byte `contentType:"application/sdp" doc:"SDP offer from browser"`
}

// WebRTCAnswerOutput carries the SDP answer.
type WebRTCAnswerOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

// StreamInfo describes the served stream.
type StreamInfo struct {
	Mount     string `json:"mount" example:"/stream" doc:"RTSP mount point"`
	Codec     string `json:"codec" example:"H264" doc:"Relayed video codec"`
	RTPPort   int    `json:"rtp_port" example:"40412" doc:"Loopback UDP port the pipeline sends to"`
	Consumers int    `json:"consumers" example:"2" doc:"Attached RTSP and WebRTC consumers"`
	Peers     int    `json:"webrtc_peers" example:"1" doc:"Attached WebRTC peers"`
}

// StreamInfoOutput wraps StreamInfo.
type StreamInfoOutput struct {
	Body StreamInfo
}

type streamRoutes struct {
	peers *WebRTCManager
}

// RegisterWebRTCAPI adds the WebRTC signaling and stream info routes.
func RegisterWebRTCAPI(api huma.API, peers *WebRTCManager) {
	r := streamRoutes{peers: peers}

	huma.Register(api, huma.Operation{
		OperationID: "webrtc-offer",
		Method:      http.MethodPost,
		Path:        "/api/webrtc",
		Summary:     "WebRTC signaling",
		Description: "Answers an SDP offer for browser playback. The peer counts as a viewer until it disconnects.",
		Tags:        []string{"streaming"},
	}, r.offer)

	huma.Register(api, huma.Operation{
		OperationID: "get-stream",
		Method:      http.MethodGet,
		Path:        "/api/stream",
		Summary:     "Stream info",
		Description: "Returns the served mount and attached consumers",
		Tags:        []string{"streaming"},
	}, r.info)
}

func (r streamRoutes) offer(_ context.Context, in *WebRTCOfferInput) (*WebRTCAnswerOutput, error) {
	answer, err := r.peers.CreateConsumer(in.StreamID, string(in.RawBody))
	switch {
	case errors.Is(err, ErrStreamNotFound):
		return nil, huma.Error404NotFound("stream not found", err)
	case err != nil:
		return nil, huma.Error503ServiceUnavailable("connection failed", err)
	}
	return &WebRTCAnswerOutput{ContentType: sdpContentType, Body: []byte(answer)}, nil
}

func (r streamRoutes) info(context.Context, *struct{}) (*StreamInfoOutput, error) {
	hub := r.peers.hub
	return &StreamInfoOutput{Body: StreamInfo{
		Mount:     hub.Mount(),
		Codec:     hub.relay.Codec().Name,
		RTPPort:   hub.relay.Port(),
		Consumers: hub.Consumers(),
		Peers:     r.peers.PeerCount(),
	}}, nil
}
