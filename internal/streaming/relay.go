package streaming

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/AlexxIT/go2rtc/pkg/core"
	"github.com/pion/rtp"

	"github.com/Gateworks/gst-gateworks-apps/internal/logging"
	"github.com/Gateworks/gst-gateworks-apps/internal/metrics"
	"github.com/Gateworks/gst-gateworks-apps/internal/pipeline"
)

// StatsStructureName matches the structure name rtpbasepayload uses.
const StatsStructureName = "application/x-rtp-payload-stats"

const maxDatagram = 65536

// Relay receives the pipeline's RTP over loopback UDP and fans it out
// through a go2rtc receiver. The receiver outlives pipeline restarts, so
// consumers stay wired while the pipeline is relaunched.
type Relay struct {
	codec    *core.Codec
	receiver *core.Receiver
	logger   logging.Logger

	conn *net.UDPConn
	wg   sync.WaitGroup

	mu        sync.Mutex
	packets   uint64
	bytes     uint64
	dropped   uint64
	seqnum    uint16
	timestamp uint32
	ssrc      uint32
	last      time.Time
}

// NewRelay creates a relay for one video codec.
func NewRelay(codecName string, payloadType uint8, logger logging.Logger) *Relay {
	codec := &core.Codec{
		Name:        codecName,
		ClockRate:   90000,
		PayloadType: payloadType,
	}
	if codecName == core.CodecH264 {
		codec.FmtpLine = "packetization-mode=1"
	}

	media := &core.Media{
		Kind:      core.KindVideo,
		Direction: core.DirectionRecvonly,
		Codecs:    []*core.Codec{codec},
	}

	return &Relay{
		codec:    codec,
		receiver: core.NewReceiver(media, codec),
		logger:   logger,
	}
}

// Listen binds the UDP socket and starts the read loop. Use port 0 to let
// the kernel pick one.
func (r *Relay) Listen(addr string) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return err
	}
	// Keyframes at high bitrates arrive as bursts of datagrams.
	_ = conn.SetReadBuffer(4 << 20)

	r.conn = conn
	r.logger.Info("RTP relay listening", "addr", conn.LocalAddr().String(), "codec", r.codec.Name)

	r.wg.Add(1)
	go r.readLoop()
	return nil
}

// Port returns the bound UDP port, or 0 before Listen.
func (r *Relay) Port() int {
	if r.conn == nil {
		return 0
	}
	return r.conn.LocalAddr().(*net.UDPAddr).Port
}

// Sink returns the sink element description that feeds this relay.
func (r *Relay) Sink() string {
	return fmt.Sprintf("udpsink host=127.0.0.1 port=%d sync=false async=false", r.Port())
}

// Codec returns the relayed codec.
func (r *Relay) Codec() *core.Codec {
	return r.codec
}

// Receivers returns the receivers consumers attach to.
func (r *Relay) Receivers() []*core.Receiver {
	return []*core.Receiver{r.receiver}
}

func (r *Relay) readLoop() {
	defer r.wg.Done()

	buf := make([]byte, maxDatagram)
	for {
		n, _, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				r.logger.Error("RTP relay read failed", "error", err)
			}
			return
		}

		// Consumers may queue packets, so each one gets its own buffer.
		data := make([]byte, n)
		copy(data, buf[:n])

		packet := &rtp.Packet{}
		if err := packet.Unmarshal(data); err != nil {
			r.drop("malformed", err)
			continue
		}
		if packet.PayloadType != r.codec.PayloadType {
			r.drop("payload_type", fmt.Errorf("pt %d", packet.PayloadType))
			continue
		}

		r.mu.Lock()
		r.packets++
		r.bytes += uint64(n)
		r.seqnum = packet.SequenceNumber
		r.timestamp = packet.Timestamp
		r.ssrc = packet.SSRC
		r.last = time.Now()
		r.mu.Unlock()

		r.receiver.WriteRTP(packet)
	}
}

func (r *Relay) drop(reason string, err error) {
	r.mu.Lock()
	r.dropped++
	count := r.dropped
	r.mu.Unlock()
	metrics.IncRelayDropped(reason)

	// One line per 100 drops is enough to spot a misconfigured payloader.
	if count%100 == 1 {
		r.logger.Debug("Dropping RTP datagram", "reason", reason, "error", err, "dropped", count)
	}
}

// Stats returns the payloader statistics seen on the wire.
func (r *Relay) Stats() *pipeline.Structure {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := pipeline.NewStructure(StatsStructureName)
	st.SetInt("clock-rate", int(r.codec.ClockRate))
	st.SetInt("pt", int(r.codec.PayloadType))
	st.Set("ssrc", fmt.Sprintf("%d", r.ssrc))
	st.SetInt("seqnum", int(r.seqnum))
	st.Set("timestamp", fmt.Sprintf("%d", r.timestamp))
	st.Set("packets", fmt.Sprintf("%d", r.packets))
	st.Set("bytes", fmt.Sprintf("%d", r.bytes))
	st.Set("dropped", fmt.Sprintf("%d", r.dropped))
	if !r.last.IsZero() {
		st.Set("idle-ms", fmt.Sprintf("%d", time.Since(r.last).Milliseconds()))
	}
	return st
}

// Close stops the read loop and detaches consumers.
func (r *Relay) Close() error {
	var err error
	if r.conn != nil {
		err = r.conn.Close()
	}
	r.wg.Wait()
	r.receiver.Close()
	return err
}
