package streaming

import (
	"errors"
	"strings"
	"sync"

	"github.com/AlexxIT/go2rtc/pkg/core"
	"github.com/AlexxIT/go2rtc/pkg/webrtc"
	"github.com/pion/rtp"

	"github.com/Gateworks/gst-gateworks-apps/internal/logging"
	"github.com/Gateworks/gst-gateworks-apps/internal/metrics"
)

// ErrStreamNotFound is returned when a consumer asks for another mount,
// or offers nothing the relay can feed.
var ErrStreamNotFound = errors.New("stream not found")

// Viewers admits and releases viewers of the shared pipeline.
type Viewers interface {
	Join() error
	Leave()
}

// consumer is the part of a go2rtc consumer the hub wires tracks into.
type consumer interface {
	GetMedias() []*core.Media
	AddTrack(media *core.Media, codec *core.Codec, track *core.Receiver) error
}

// Hub routes consumers to the relay's tracks. Every attached consumer is
// one viewer: Join on attach, Leave exactly once on release.
type Hub struct {
	relay   *Relay
	viewers Viewers
	mount   string
	logger  logging.Logger

	mu        sync.Mutex
	consumers int
}

// NewHub creates a hub serving relay at mount (e.g. "/stream").
func NewHub(relay *Relay, viewers Viewers, mount string, logger logging.Logger) *Hub {
	return &Hub{
		relay:   relay,
		viewers: viewers,
		mount:   normalizeMount(mount),
		logger:  logger,
	}
}

func normalizeMount(p string) string {
	return "/" + strings.Trim(p, "/")
}

// Mount is the mount point with a leading slash.
func (h *Hub) Mount() string { return h.mount }

// Matches reports whether path addresses this hub's mount.
func (h *Hub) Matches(path string) bool {
	return normalizeMount(path) == h.mount
}

// Consumers is the number of attached consumers.
func (h *Hub) Consumers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.consumers
}

// Attach admits a viewer and wires the consumer. The returned release
// may be called any number of times; only the first leaves.
func (h *Hub) Attach(cons consumer) (func(), error) {
	if err := h.viewers.Join(); err != nil {
		return nil, err
	}
	if err := h.wire(cons); err != nil {
		h.viewers.Leave()
		return nil, err
	}

	h.adjust(1)
	var once sync.Once
	return func() {
		once.Do(func() {
			h.adjust(-1)
			h.viewers.Leave()
		})
	}, nil
}

func (h *Hub) adjust(delta int) {
	h.mu.Lock()
	h.consumers += delta
	h.mu.Unlock()
}

// wire feeds the relay's receivers to cons. A consumer without medias
// (RTSP PLAY) takes every track; otherwise each receiver goes to the
// first sendonly media of its kind that lists its codec.
func (h *Hub) wire(cons consumer) error {
	offered := cons.GetMedias()
	h.logger.Debug("Wiring consumer", "medias", len(offered))

	added := 0
	for _, recv := range h.relay.Receivers() {
		var err error
		if len(offered) == 0 {
			err = h.wireAll(cons, recv)
		} else {
			var ok bool
			ok, err = h.wireNegotiated(cons, offered, recv)
			if !ok {
				continue
			}
		}
		if err != nil {
			h.logger.Warn("Failed to add track", "codec", recv.Codec.Name, "error", err)
			continue
		}
		added++
	}

	if added == 0 {
		return ErrStreamNotFound
	}
	return nil
}

func (h *Hub) wireAll(cons consumer, recv *core.Receiver) error {
	media := &core.Media{
		Kind:      core.GetKind(recv.Codec.Name),
		Direction: core.DirectionRecvonly,
		Codecs:    []*core.Codec{recv.Codec},
	}
	return cons.AddTrack(media, recv.Codec, recv)
}

// wireNegotiated reports false when the consumer offered nothing for recv.
func (h *Hub) wireNegotiated(cons consumer, offered []*core.Media, recv *core.Receiver) (bool, error) {
	media, codec := matchMedia(offered, recv.Codec)
	if media == nil {
		return false, nil
	}
	if codec == nil {
		h.logger.Warn("No matching codec", "codec", recv.Codec.Name)
		return false, nil
	}

	pc, isWebRTC := cons.(*webrtc.Conn)
	before := 0
	if isWebRTC {
		before = len(pc.Senders)
	}
	if err := cons.AddTrack(media, codec, recv); err != nil {
		return true, err
	}
	if isWebRTC && len(pc.Senders) > before {
		h.passthrough(pc, media, codec, recv)
	}
	return true, nil
}

func matchMedia(offered []*core.Media, want *core.Codec) (*core.Media, *core.Codec) {
	kind := core.GetKind(want.Name)
	for _, m := range offered {
		if m.Kind != kind || m.Direction != core.DirectionSendonly {
			continue
		}
		for _, c := range m.Codecs {
			if c.Name == want.Name {
				return m, c
			}
		}
		return m, nil
	}
	return nil, nil
}

// passthrough forwards H264 RTP straight to the peer's track with the
// payload type it negotiated, re-inserting parameter sets at keyframes.
func (h *Hub) passthrough(pc *webrtc.Conn, media *core.Media, codec *core.Codec, recv *core.Receiver) {
	if !recv.Codec.IsRTP() || recv.Codec.Name != core.CodecH264 {
		return
	}
	track := pc.GetSenderTrack(media.ID)
	if track == nil {
		return
	}
	sender := pc.Senders[len(pc.Senders)-1]
	pt := codec.PayloadType
	injector := newPSInjector(recv.Codec, func(pkt *rtp.Packet) {
		size := pkt.MarshalSize()
		pc.Send += size
		metrics.AddWebRTCSent(size)
		_ = track.WriteRTP(pt, pkt)
	})
	sender.Handler = injector.write
}
