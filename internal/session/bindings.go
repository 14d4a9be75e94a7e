package session

import (
	"fmt"

	"github.com/Gateworks/gst-gateworks-apps/internal/encoder"
	"github.com/Gateworks/gst-gateworks-apps/internal/pipeline"
	"github.com/Gateworks/gst-gateworks-apps/internal/types"
)

// Role is a logical pipeline stage.
type Role string

// Required roles.
const (
	RoleSource     Role = "source"
	RoleTransform  Role = "transform"
	RoleEncoder    Role = "encoder"
	RolePacketizer Role = "packetizer"
)

// Roles lists every required role in chain order.
var Roles = []Role{RoleSource, RoleTransform, RoleEncoder, RolePacketizer}

// RoleNames are the element names bound to each role.
type RoleNames struct {
	Source     string `json:"source"`
	Transform  string `json:"transform"`
	Encoder    string `json:"encoder"`
	Packetizer string `json:"packetizer"`
}

// DefaultRoleNames matches the stock pipeline.
func DefaultRoleNames() RoleNames {
	return RoleNames{
		Source:     "source0",
		Transform:  "caps0",
		Encoder:    "enc0",
		Packetizer: "pay0",
	}
}

func (n RoleNames) name(r Role) string {
	switch r {
	case RoleSource:
		return n.Source
	case RoleTransform:
		return n.Transform
	case RoleEncoder:
		return n.Encoder
	case RolePacketizer:
		return n.Packetizer
	}
	return ""
}

// Bindings holds the element bound to every role. A Bindings value is
// always complete; partial results are never stored.
type Bindings struct {
	Source      pipeline.Element
	Transform   pipeline.Element
	Encoder     pipeline.Element
	Packetizer  pipeline.Element
	EncoderKind encoder.Kind
}

// Element returns the element bound to r.
func (b *Bindings) Element(r Role) pipeline.Element {
	switch r {
	case RoleSource:
		return b.Source
	case RoleTransform:
		return b.Transform
	case RoleEncoder:
		return b.Encoder
	case RolePacketizer:
		return b.Packetizer
	}
	return nil
}

// Bind locates every role: by configured name first, then by introspected
// type. Encoder and packetizer fall back to backend name matching; the source
// falls back to the first element; the transform falls back to the element
// right before the encoder when that is not the source. A missing role is a
// MISSING_ELEMENT config error.
func Bind(p pipeline.Pipeline, names RoleNames) (*Bindings, error) {
	elements := p.Elements()
	b := &Bindings{}

	byName := func(r Role) pipeline.Element {
		if name := names.name(r); name != "" {
			if el, ok := p.ElementByName(name); ok {
				return el
			}
		}
		return nil
	}

	b.Encoder = byName(RoleEncoder)
	if b.Encoder == nil {
		b.Encoder = findByType(elements, func(el pipeline.Element) bool {
			return encoder.IsEncoder(el.TypeName())
		})
	}

	b.Packetizer = byName(RolePacketizer)
	if b.Packetizer == nil {
		b.Packetizer = findByType(elements, func(el pipeline.Element) bool {
			return encoder.IsPacketizer(el.TypeName())
		})
	}

	b.Source = byName(RoleSource)
	if b.Source == nil && len(elements) > 0 && !isRole(elements[0], b) {
		b.Source = elements[0]
	}

	b.Transform = byName(RoleTransform)
	if b.Transform == nil && b.Encoder != nil {
		if prev := previous(elements, b.Encoder); prev != nil && !isRole(prev, b) {
			b.Transform = prev
		}
	}

	for _, r := range Roles {
		if b.Element(r) == nil {
			return nil, &types.ConfigError{
				Code:    types.ErrCodeMissingElement,
				Field:   string(r),
				Message: missingMessage(r, names),
			}
		}
	}

	b.EncoderKind = encoder.Identify(b.Encoder)
	return b, nil
}

func missingMessage(r Role, names RoleNames) string {
	if name := names.name(r); name != "" {
		return fmt.Sprintf("pipeline has no %s element (looked for %q)", r, name)
	}
	return fmt.Sprintf("pipeline has no %s element", r)
}

func findByType(elements []pipeline.Element, match func(pipeline.Element) bool) pipeline.Element {
	for _, el := range elements {
		if match(el) {
			return el
		}
	}
	return nil
}

func previous(elements []pipeline.Element, target pipeline.Element) pipeline.Element {
	for i, el := range elements {
		if el == target && i > 0 {
			return elements[i-1]
		}
	}
	return nil
}

func isRole(el pipeline.Element, b *Bindings) bool {
	return el == b.Source || el == b.Transform || el == b.Encoder || el == b.Packetizer
}
