package streaming

import (
	"bytes"
	"testing"

	"github.com/AlexxIT/go2rtc/pkg/core"
	"github.com/pion/rtp"
)

const testFmtp = "profile-level-id=42e01f;packetization-mode=1;sprop-parameter-sets=Z0IAKeKQFAe2AtwEBAaQeJEV,aM48gA=="

var (
	inbandSPS = []byte{0x67, 0x42, 0x00, 0x1f, 0xaa}
	inbandPPS = []byte{0x68, 0xce, 0x3c, 0x80, 0xbb}
)

func TestSpropParameterSets(t *testing.T) {
	tests := []struct {
		name    string
		fmtp    string
		wantSPS byte
		wantPPS byte
	}{
		{"camera fmtp", testFmtp, 7, 8},
		{"only parameter sets", "sprop-parameter-sets=Z0IAKeKQFAe2AtwEBAaQeJEV,aM48gA==", 7, 8},
		{"spaces after separators", "packetization-mode=1; sprop-parameter-sets=Z0IAKeKQFAe2AtwEBAaQeJEV,aM48gA==", 7, 8},
		{"missing", "packetization-mode=1", 0, 0},
		{"single set", "sprop-parameter-sets=Z0IAKeKQFAe2AtwEBAaQeJEV", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sps, pps := spropParameterSets(tt.fmtp)
			if tt.wantSPS == 0 {
				if sps != nil || pps != nil {
					t.Fatalf("expected no parameter sets, got %x %x", sps, pps)
				}
				return
			}
			if len(sps) == 0 || sps[0]&0x1F != tt.wantSPS {
				t.Errorf("SPS = %x", sps)
			}
			if len(pps) == 0 || pps[0]&0x1F != tt.wantPPS {
				t.Errorf("PPS = %x", pps)
			}
		})
	}
}

// recordInjector returns an injector for fmtp and the payloads it emits,
// in order.
func recordInjector(fmtp string) (*psInjector, *[][]byte) {
	var out [][]byte
	codec := &core.Codec{Name: core.CodecH264, PayloadType: 96, FmtpLine: fmtp}
	inj := newPSInjector(codec, func(pkt *rtp.Packet) {
		out = append(out, append([]byte(nil), pkt.Payload...))
	})
	return inj, &out
}

func nalTypes(payloads [][]byte) []byte {
	types := make([]byte, len(payloads))
	for i, p := range payloads {
		types[i] = p[0] & 0x1F
	}
	return types
}

func packet(ts uint32, payload ...byte) *rtp.Packet {
	return &rtp.Packet{Header: rtp.Header{PayloadType: 96, Timestamp: ts, SSRC: 1}, Payload: payload}
}

func stapA(nals ...[]byte) []byte {
	out := []byte{0x78}
	for _, n := range nals {
		out = append(out, byte(len(n)>>8), byte(len(n)))
		out = append(out, n...)
	}
	return out
}

func TestPSInjectorSequences(t *testing.T) {
	idr := []byte{0x65, 0x88, 0x84}
	pframe := []byte{0x41, 0x9a}
	fuaIDRStart := []byte{0x7c, 0x85, 0x88}
	fuaIDREnd := []byte{0x7c, 0x45, 0x00}
	fuaPStart := []byte{0x7c, 0x81, 0x9a}

	tests := []struct {
		name    string
		packets [][]byte
		want    []byte
	}{
		{"p-frame passes through", [][]byte{pframe}, []byte{1}},
		{"every IDR gets parameter sets", [][]byte{idr, pframe, idr}, []byte{7, 8, 5, 1, 7, 8, 5}},
		{"in-band sets suppress one injection", [][]byte{inbandSPS, inbandPPS, idr, idr}, []byte{7, 8, 5, 7, 8, 5}},
		{"fragmented IDR start", [][]byte{fuaIDRStart, fuaIDREnd}, []byte{7, 8, 28, 28}},
		{"fragmented P start", [][]byte{fuaPStart}, []byte{28}},
		{"STAP-A with sets", [][]byte{stapA(inbandSPS, inbandPPS), idr}, []byte{24, 5}},
		{"empty payload dropped", [][]byte{{}}, []byte{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inj, out := recordInjector(testFmtp)
			for i, p := range tt.packets {
				inj.write(packet(uint32(1000*(i+1)), p...))
			}
			if got := nalTypes(*out); !bytes.Equal(got, tt.want) {
				t.Errorf("emitted NAL types %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPSInjectorUsesInbandSets(t *testing.T) {
	inj, out := recordInjector(testFmtp)

	inj.write(packet(1000, inbandSPS...))
	inj.write(packet(1000, inbandPPS...))
	inj.write(packet(1000, 0x65, 0x01))
	*out = nil

	inj.write(packet(2000, 0x65, 0x02))
	if len(*out) != 3 {
		t.Fatalf("expected SPS, PPS and IDR, got %d packets", len(*out))
	}
	if !bytes.Equal((*out)[0], inbandSPS) || !bytes.Equal((*out)[1], inbandPPS) {
		t.Errorf("injected %x %x, want the in-band sets", (*out)[0], (*out)[1])
	}
}

func TestPSInjectorLearnsFromSTAPA(t *testing.T) {
	inj, out := recordInjector("")

	inj.write(packet(1000, stapA(inbandSPS, inbandPPS)...))
	inj.write(packet(1000, 0x65, 0x01))
	*out = nil

	inj.write(packet(2000, 0x65, 0x02))
	if got := nalTypes(*out); !bytes.Equal(got, []byte{7, 8, 5}) {
		t.Fatalf("emitted %v, want [7 8 5]", got)
	}
	if !bytes.Equal((*out)[0], inbandSPS) {
		t.Errorf("SPS = %x, want %x", (*out)[0], inbandSPS)
	}
}

func TestPSInjectorWithoutSets(t *testing.T) {
	inj, out := recordInjector("")
	inj.write(packet(1000, 0x65, 0x01))
	if got := nalTypes(*out); !bytes.Equal(got, []byte{5}) {
		t.Errorf("emitted %v, want only the IDR", got)
	}
}

func TestPSInjectorTruncatedSTAPA(t *testing.T) {
	inj, out := recordInjector("")
	// Length prefix claims more bytes than remain.
	inj.write(packet(1000, 0x78, 0x00, 0x20, 0x67, 0x42))
	if len(*out) != 1 || inj.sps != nil {
		t.Errorf("truncated aggregate should pass through without learning, sps=%x", inj.sps)
	}
}
