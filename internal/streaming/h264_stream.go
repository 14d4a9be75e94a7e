package streaming

import (
	"encoding/base64"
	"encoding/binary"
	"strings"

	"github.com/AlexxIT/go2rtc/pkg/core"
	"github.com/pion/rtp"
)

// H264 NAL unit types seen in RTP payloads (RFC 6184).
const (
	nalIDR   = 5
	nalSPS   = 7
	nalPPS   = 8
	nalSTAPA = 24
	nalFUA   = 28
)

// psInjector forwards H264 RTP packets untouched and puts the latest SPS and
// PPS in front of every IDR that did not bring its own. The encoder is
// relaunched whenever quality changes, so the sets learned in-band replace
// the ones from the fmtp line as they arrive.
type psInjector struct {
	out      func(*rtp.Packet)
	pt       uint8
	sps, pps []byte

	// fresh is set when parameter sets passed since the last IDR.
	fresh bool
}

func newPSInjector(codec *core.Codec, out func(*rtp.Packet)) *psInjector {
	sps, pps := spropParameterSets(codec.FmtpLine)
	return &psInjector{out: out, pt: codec.PayloadType, sps: sps, pps: pps}
}

func (p *psInjector) write(pkt *rtp.Packet) {
	if len(pkt.Payload) == 0 {
		return
	}

	switch {
	case p.remember(pkt.Payload):
		p.fresh = true
	case startsIDR(pkt.Payload):
		if !p.fresh {
			p.inject(pkt)
		}
		p.fresh = false
	}
	p.out(pkt)
}

// startsIDR reports whether payload is an IDR slice or the first fragment
// of one.
func startsIDR(payload []byte) bool {
	switch payload[0] & 0x1F {
	case nalIDR:
		return true
	case nalFUA:
		return len(payload) >= 2 && payload[1]&0x80 != 0 && payload[1]&0x1F == nalIDR
	}
	return false
}

// remember stores every SPS and PPS in payload, single or aggregated, and
// reports whether there was one.
func (p *psInjector) remember(payload []byte) bool {
	switch payload[0] & 0x1F {
	case nalSPS, nalPPS:
		p.store(payload)
		return true
	case nalSTAPA:
		found := false
		for rest := payload[1:]; len(rest) >= 2; {
			size := int(binary.BigEndian.Uint16(rest))
			rest = rest[2:]
			if size == 0 || size > len(rest) {
				break
			}
			if t := rest[0] & 0x1F; t == nalSPS || t == nalPPS {
				p.store(rest[:size])
				found = true
			}
			rest = rest[size:]
		}
		return found
	}
	return false
}

func (p *psInjector) store(nal []byte) {
	dup := append([]byte(nil), nal...)
	if nal[0]&0x1F == nalSPS {
		p.sps = dup
	} else {
		p.pps = dup
	}
}

// inject sends the known parameter sets with the IDR's timestamp.
func (p *psInjector) inject(idr *rtp.Packet) {
	for _, nal := range [][]byte{p.sps, p.pps} {
		if len(nal) == 0 {
			continue
		}
		p.out(&rtp.Packet{
			Header: rtp.Header{
				Version:     2,
				PayloadType: p.pt,
				Timestamp:   idr.Timestamp,
				SSRC:        idr.SSRC,
			},
			Payload: nal,
		})
	}
}

// spropParameterSets decodes sprop-parameter-sets from an fmtp line.
func spropParameterSets(fmtp string) (sps, pps []byte) {
	for _, param := range strings.Split(fmtp, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || key != "sprop-parameter-sets" {
			continue
		}
		first, second, ok := strings.Cut(value, ",")
		if !ok {
			return nil, nil
		}
		sps, _ = base64.StdEncoding.DecodeString(first)
		pps, _ = base64.StdEncoding.DecodeString(second)
		return sps, pps
	}
	return nil, nil
}
