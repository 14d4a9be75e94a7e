// Package encoder normalizes "set target quality" across H.264 encoder
// elements with different control surfaces: some take a single scalar
// property, others a structured aggregate of sub-controls that must be read,
// patched and written back.
package encoder

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/Gateworks/gst-gateworks-apps/internal/pipeline"
	"github.com/Gateworks/gst-gateworks-apps/internal/quality"
)

// Recoverable adapter errors. The caller logs them and keeps the previous
// quality.
var (
	ErrUnsupportedAxis = errors.New("encoder does not support control axis")
	ErrNoAggregate     = errors.New("encoder aggregate control absent")
	ErrUnknownBackend  = errors.New("unknown encoder backend")
)

// Kind identifies an encoder backend.
type Kind string

// Supported backends.
const (
	IMXVPU  Kind = "imxvpu"
	X264    Kind = "x264"
	VAAPI   Kind = "vaapi"
	V4L2    Kind = "v4l2"
	OMX     Kind = "omx"
	Unknown Kind = "unknown"
)

// Kinds lists the known backends in identification order.
var Kinds = []Kind{IMXVPU, X264, VAAPI, V4L2, OMX}

// Target is a quality value on one control axis. Bitrate values are kbps.
type Target struct {
	Mode  quality.Mode
	Value int
}

func (t Target) String() string {
	if t.Mode == quality.ModeBitrate {
		return fmt.Sprintf("bitrate=%dkbps", t.Value)
	}
	return fmt.Sprintf("quant=%d", t.Value)
}

// backend describes one encoder's control surface.
type backend struct {
	kind     Kind
	match    []string // lower-case factory substrings
	factory  string   // canonical factory name
	bitrate  string   // scalar bitrate property
	bpsScale int      // 1 for kbps properties, 1000 for bps
	quant    string   // scalar quantizer property

	aggregate     string   // aggregate property name
	aggregateName string   // structure name written when seeding
	aggBitrate    string   // bitrate key inside the aggregate (bps)
	aggQuant      []string // quantizer keys inside the aggregate

	idr string // IDR/keyframe interval property

	// quantMode are writes that select constant-quantizer operation.
	quantMode map[string]any
}

var backends = map[Kind]backend{
	IMXVPU: {
		kind:     IMXVPU,
		match:    []string{"imxvpuenc"},
		factory:  "imxvpuenc_h264",
		bitrate:  "bitrate",
		bpsScale: 1,
		quant:    "quant-param",
		idr:      "idr-interval",
		// bitrate 0 turns rate control off and quant-param takes effect
		quantMode: map[string]any{"bitrate": 0},
	},
	X264: {
		kind:      X264,
		match:     []string{"x264enc"},
		factory:   "x264enc",
		bitrate:   "bitrate",
		bpsScale:  1,
		quant:     "quantizer",
		idr:       "key-int-max",
		quantMode: map[string]any{"pass": "quant"},
	},
	VAAPI: {
		kind:      VAAPI,
		match:     []string{"vaapih264enc", "vaapi"},
		factory:   "vaapih264enc",
		bitrate:   "bitrate",
		bpsScale:  1,
		quant:     "init-qp",
		idr:       "keyframe-period",
		quantMode: map[string]any{"rate-control": "cqp"},
	},
	V4L2: {
		kind:          V4L2,
		match:         []string{"v4l2h264enc", "v4l2"},
		factory:       "v4l2h264enc",
		aggregate:     "extra-controls",
		aggregateName: "controls",
		aggBitrate:    "video_bitrate",
		aggQuant:      []string{"h264_i_frame_qp", "h264_p_frame_qp"},
	},
	OMX: {
		kind:     OMX,
		match:    []string{"omxh264enc", "omx"},
		factory:  "omxh264enc",
		bitrate:  "target-bitrate",
		bpsScale: 1000,
		idr:      "periodicity-idr",
	},
}

// Identify classifies an element by its factory name.
func Identify(el pipeline.Element) Kind {
	if el == nil {
		return Unknown
	}
	return KindOf(el.TypeName())
}

// KindOf classifies a factory name.
func KindOf(typeName string) Kind {
	name := strings.ToLower(typeName)
	if !strings.Contains(name, "enc") {
		return Unknown
	}
	for _, k := range Kinds {
		for _, m := range backends[k].match {
			if strings.Contains(name, m) {
				return k
			}
		}
	}
	return Unknown
}

// IsEncoder reports whether a factory name looks like a video encoder.
func IsEncoder(typeName string) bool {
	name := strings.ToLower(typeName)
	return KindOf(name) != Unknown || strings.HasSuffix(name, "enc") || strings.Contains(name, "enc_")
}

// Supports reports whether kind can be driven on the given axis.
func Supports(kind Kind, mode quality.Mode) bool {
	b, ok := backends[kind]
	if !ok {
		return false
	}
	if mode == quality.ModeBitrate {
		return b.bitrate != "" || b.aggBitrate != ""
	}
	return b.quant != "" || len(b.aggQuant) > 0
}

// Apply writes target to the encoder element: exactly one scalar property
// write, or one read-merge-write of the aggregate control.
func Apply(el pipeline.Element, kind Kind, target Target) error {
	b, ok := backends[kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBackend, kind)
	}
	if !Supports(kind, target.Mode) {
		return fmt.Errorf("%w: %s has no %s control", ErrUnsupportedAxis, kind, target.Mode)
	}

	if b.aggregate != "" {
		return applyAggregate(el, b, target)
	}

	if target.Mode == quality.ModeBitrate {
		return el.SetProperty(b.bitrate, scaleBitrate(target.Value, b.bpsScale))
	}
	return el.SetProperty(b.quant, target.Value)
}

func applyAggregate(el pipeline.Element, b backend, target Target) error {
	raw, ok := el.Property(b.aggregate)
	if !ok {
		return fmt.Errorf("%w: %s on %s", ErrNoAggregate, b.aggregate, el.Name())
	}
	current, ok := pipeline.AsStructure(raw)
	if !ok {
		return fmt.Errorf("%w: %s on %s is not a structure", ErrNoAggregate, b.aggregate, el.Name())
	}

	patch := pipeline.NewStructure(current.Name())
	if target.Mode == quality.ModeBitrate {
		patch.SetInt(b.aggBitrate, scaleBitrate(target.Value, 1000))
	} else {
		for _, key := range b.aggQuant {
			patch.SetInt(key, target.Value)
		}
	}
	current.Merge(patch)

	return el.SetProperty(b.aggregate, current)
}

// scaleBitrate converts kbps to the property unit, saturating at the int32
// range every encoder property uses.
func scaleBitrate(kbps, scale int) int {
	v := int64(kbps) * int64(scale)
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(v)
}

// Prepare writes the static settings for the selected axis before the
// pipeline starts: constant-quantizer selection in quant mode, an empty
// aggregate where the backend needs one, and the IDR interval when idr > 0
// (always for IMXVPU, whose default pipeline sets it unconditionally).
func Prepare(el pipeline.Element, kind Kind, mode quality.Mode, idr int) error {
	b, ok := backends[kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBackend, kind)
	}

	if b.aggregate != "" {
		if _, exists := el.Property(b.aggregate); !exists {
			if err := el.SetProperty(b.aggregate, pipeline.NewStructure(b.aggregateName)); err != nil {
				return err
			}
		}
	}

	if mode == quality.ModeQuant {
		for key, value := range b.quantMode {
			if err := el.SetProperty(key, value); err != nil {
				return err
			}
		}
	}

	if b.idr != "" && (idr > 0 || kind == IMXVPU) {
		if err := el.SetProperty(b.idr, idr); err != nil {
			return err
		}
	}
	return nil
}

// Surface describes an encoder's control surface.
type Surface struct {
	Kind            Kind           `json:"kind"`
	Factory         string         `json:"factory,omitempty"`
	Axes            []quality.Mode `json:"axes"`
	BitrateProperty string         `json:"bitrate_property,omitempty"`
	BitrateUnit     string         `json:"bitrate_unit,omitempty"`
	QuantProperty   string         `json:"quant_property,omitempty"`
	Aggregate       string         `json:"aggregate,omitempty"`
	AggregateKeys   []string       `json:"aggregate_keys,omitempty"`
}

// Describe returns the control surface of kind.
func Describe(kind Kind) Surface {
	b, ok := backends[kind]
	if !ok {
		return Surface{Kind: Unknown, Axes: []quality.Mode{}}
	}

	s := Surface{Kind: kind, Factory: b.factory, Axes: []quality.Mode{}}
	for _, m := range []quality.Mode{quality.ModeBitrate, quality.ModeQuant} {
		if Supports(kind, m) {
			s.Axes = append(s.Axes, m)
		}
	}

	if b.aggregate != "" {
		s.Aggregate = b.aggregate
		s.AggregateKeys = append([]string{b.aggBitrate}, b.aggQuant...)
		s.BitrateUnit = "bps"
		return s
	}

	s.BitrateProperty = b.bitrate
	s.QuantProperty = b.quant
	s.BitrateUnit = "kbps"
	if b.bpsScale == 1000 {
		s.BitrateUnit = "bps"
	}
	return s
}
