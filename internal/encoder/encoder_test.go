package encoder

import (
	"errors"
	"math"
	"testing"

	"github.com/Gateworks/gst-gateworks-apps/internal/pipeline"
	"github.com/Gateworks/gst-gateworks-apps/internal/quality"
)

// fakeElement counts property writes.
type fakeElement struct {
	name    string
	factory string
	props   map[string]any
	writes  []string
}

func newFake(factory string) *fakeElement {
	return &fakeElement{name: "enc0", factory: factory, props: make(map[string]any)}
}

func (f *fakeElement) Name() string     { return f.name }
func (f *fakeElement) TypeName() string { return f.factory }

func (f *fakeElement) Property(key string) (any, bool) {
	v, ok := f.props[key]
	if st, isStruct := v.(*pipeline.Structure); isStruct {
		return st.Clone(), true
	}
	return v, ok
}

func (f *fakeElement) SetProperty(key string, value any) error {
	f.writes = append(f.writes, key)
	f.props[key] = value
	return nil
}

func TestIdentify(t *testing.T) {
	tests := []struct {
		factory string
		want    Kind
	}{
		{"imxvpuenc_h264", IMXVPU},
		{"x264enc", X264},
		{"vaapih264enc", VAAPI},
		{"v4l2h264enc", V4L2},
		{"omxh264enc", OMX},
		{"OMXH264Enc", OMX},
		{"nvh264enc", Unknown},
		{"v4l2src", Unknown},
		{"rtph264pay", Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.factory, func(t *testing.T) {
			if got := Identify(newFake(tt.factory)); got != tt.want {
				t.Errorf("Identify(%s) = %s, want %s", tt.factory, got, tt.want)
			}
		})
	}

	if got := Identify(nil); got != Unknown {
		t.Errorf("Identify(nil) = %s, want unknown", got)
	}
}

func TestApplyScalar(t *testing.T) {
	tests := []struct {
		factory  string
		kind     Kind
		target   Target
		wantKey  string
		wantUnit int
	}{
		{"imxvpuenc_h264", IMXVPU, Target{quality.ModeBitrate, 7750}, "bitrate", 7750},
		{"imxvpuenc_h264", IMXVPU, Target{quality.ModeQuant, 24}, "quant-param", 24},
		{"x264enc", X264, Target{quality.ModeBitrate, 5500}, "bitrate", 5500},
		{"x264enc", X264, Target{quality.ModeQuant, 30}, "quantizer", 30},
		{"vaapih264enc", VAAPI, Target{quality.ModeQuant, 12}, "init-qp", 12},
		{"omxh264enc", OMX, Target{quality.ModeBitrate, 3250}, "target-bitrate", 3250000},
	}

	for _, tt := range tests {
		t.Run(tt.factory+"/"+tt.target.String(), func(t *testing.T) {
			el := newFake(tt.factory)
			if err := Apply(el, tt.kind, tt.target); err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if len(el.writes) != 1 || el.writes[0] != tt.wantKey {
				t.Fatalf("writes = %v, want [%s]", el.writes, tt.wantKey)
			}
			if got := el.props[tt.wantKey]; got != tt.wantUnit {
				t.Errorf("%s = %v, want %d", tt.wantKey, got, tt.wantUnit)
			}
		})
	}
}

func TestApplyAggregatePreservesUnrelatedKeys(t *testing.T) {
	el := newFake("v4l2h264enc")
	st, _ := pipeline.ParseStructure("controls,h264_profile=4,video_bitrate=1")
	el.props["extra-controls"] = st

	if err := Apply(el, V4L2, Target{quality.ModeBitrate, 2000}); err != nil {
		t.Fatal(err)
	}
	if err := Apply(el, V4L2, Target{quality.ModeQuant, 28}); err != nil {
		t.Fatal(err)
	}

	if len(el.writes) != 2 {
		t.Fatalf("writes = %v, want one per Apply", el.writes)
	}
	got := el.props["extra-controls"].(*pipeline.Structure)
	want := "controls,h264_profile=4,video_bitrate=2000000,h264_i_frame_qp=28,h264_p_frame_qp=28"
	if got.String() != want {
		t.Errorf("extra-controls = %q, want %q", got.String(), want)
	}
}

func TestApplyAggregateFromString(t *testing.T) {
	el := newFake("v4l2h264enc")
	el.props["extra-controls"] = "controls,video_gop_size=30"

	if err := Apply(el, V4L2, Target{quality.ModeBitrate, 1000}); err != nil {
		t.Fatal(err)
	}
	got := el.props["extra-controls"].(*pipeline.Structure)
	if v, _ := got.Get("video_gop_size"); v != "30" {
		t.Errorf("video_gop_size = %q, want 30", v)
	}
}

func TestApplyErrors(t *testing.T) {
	tests := []struct {
		name    string
		el      *fakeElement
		kind    Kind
		target  Target
		wantErr error
	}{
		{"omx quant", newFake("omxh264enc"), OMX, Target{quality.ModeQuant, 10}, ErrUnsupportedAxis},
		{"v4l2 no aggregate", newFake("v4l2h264enc"), V4L2, Target{quality.ModeBitrate, 10}, ErrNoAggregate},
		{"unknown", newFake("nvh264enc"), Unknown, Target{quality.ModeBitrate, 10}, ErrUnknownBackend},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Apply(tt.el, tt.kind, tt.target)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Apply error = %v, want %v", err, tt.wantErr)
			}
			if len(tt.el.writes) != 0 {
				t.Errorf("failed Apply wrote %v", tt.el.writes)
			}
		})
	}
}

func TestApplyAggregateNotAStructure(t *testing.T) {
	el := newFake("v4l2h264enc")
	el.props["extra-controls"] = 5

	if err := Apply(el, V4L2, Target{quality.ModeBitrate, 10}); !errors.Is(err, ErrNoAggregate) {
		t.Errorf("Apply error = %v, want ErrNoAggregate", err)
	}
}

func TestScaleBitrateSaturates(t *testing.T) {
	if got := scaleBitrate(math.MaxInt32, 1000); got != math.MaxInt32 {
		t.Errorf("scaleBitrate = %d, want MaxInt32", got)
	}
	if got := scaleBitrate(10000, 1000); got != 10000000 {
		t.Errorf("scaleBitrate = %d, want 10000000", got)
	}
}

func TestPrepare(t *testing.T) {
	tests := []struct {
		name    string
		factory string
		kind    Kind
		mode    quality.Mode
		idr     int
		want    map[string]any
	}{
		{"imxvpu quant", "imxvpuenc_h264", IMXVPU, quality.ModeQuant, 0, map[string]any{"bitrate": 0, "idr-interval": 0}},
		{"imxvpu bitrate", "imxvpuenc_h264", IMXVPU, quality.ModeBitrate, 30, map[string]any{"idr-interval": 30}},
		{"x264 quant", "x264enc", X264, quality.ModeQuant, 0, map[string]any{"pass": "quant"}},
		{"x264 bitrate idr", "x264enc", X264, quality.ModeBitrate, 60, map[string]any{"key-int-max": 60}},
		{"vaapi quant", "vaapih264enc", VAAPI, quality.ModeQuant, 0, map[string]any{"rate-control": "cqp"}},
		{"omx bitrate", "omxh264enc", OMX, quality.ModeBitrate, 0, map[string]any{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			el := newFake(tt.factory)
			if err := Prepare(el, tt.kind, tt.mode, tt.idr); err != nil {
				t.Fatal(err)
			}
			if len(el.props) != len(tt.want) {
				t.Fatalf("props = %v, want %v", el.props, tt.want)
			}
			for k, v := range tt.want {
				if el.props[k] != v {
					t.Errorf("%s = %v, want %v", k, el.props[k], v)
				}
			}
		})
	}
}

func TestPrepareSeedsAggregate(t *testing.T) {
	el := newFake("v4l2h264enc")
	if err := Prepare(el, V4L2, quality.ModeBitrate, 0); err != nil {
		t.Fatal(err)
	}
	if err := Apply(el, V4L2, Target{quality.ModeBitrate, 500}); err != nil {
		t.Fatalf("Apply after Prepare: %v", err)
	}

	existing := newFake("v4l2h264enc")
	existing.props["extra-controls"] = "controls,h264_profile=4"
	if err := Prepare(existing, V4L2, quality.ModeBitrate, 0); err != nil {
		t.Fatal(err)
	}
	if len(existing.writes) != 0 {
		t.Errorf("Prepare overwrote existing aggregate: %v", existing.writes)
	}
}

func TestDescribe(t *testing.T) {
	omx := Describe(OMX)
	if len(omx.Axes) != 1 || omx.Axes[0] != quality.ModeBitrate || omx.BitrateUnit != "bps" {
		t.Errorf("Describe(OMX) = %+v", omx)
	}

	v4l2 := Describe(V4L2)
	if v4l2.Aggregate != "extra-controls" || len(v4l2.AggregateKeys) != 3 || len(v4l2.Axes) != 2 {
		t.Errorf("Describe(V4L2) = %+v", v4l2)
	}

	imx := Describe(IMXVPU)
	if imx.BitrateProperty != "bitrate" || imx.QuantProperty != "quant-param" || imx.BitrateUnit != "kbps" {
		t.Errorf("Describe(IMXVPU) = %+v", imx)
	}

	if u := Describe(Unknown); u.Kind != Unknown || len(u.Axes) != 0 {
		t.Errorf("Describe(Unknown) = %+v", u)
	}
}

func TestPacketizerHelpers(t *testing.T) {
	for name, want := range map[string]bool{
		"rtph264pay":   true,
		"RTPH265Pay":   true,
		"rtph264depay": false,
		"x264enc":      false,
	} {
		if got := IsPacketizer(name); got != want {
			t.Errorf("IsPacketizer(%q) = %v, want %v", name, got, want)
		}
	}
	if codec, ok := PayloadCodec("rtph265pay"); !ok || codec != "H265" {
		t.Errorf("PayloadCodec(rtph265pay) = %q,%v", codec, ok)
	}
	if _, ok := PayloadCodec("rtpmp4apay"); ok {
		t.Error("PayloadCodec accepted an audio payloader")
	}

	pay := newFake("rtph264pay")
	if pt := PayloadType(pay); pt != DefaultPayloadType {
		t.Errorf("PayloadType default = %d", pt)
	}
	pay.props["pt"] = 100
	if pt := PayloadType(pay); pt != 100 {
		t.Errorf("PayloadType = %d, want 100", pt)
	}
}
