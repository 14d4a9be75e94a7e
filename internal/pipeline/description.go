package pipeline

import (
	"fmt"
	"strconv"
	"strings"
)

// capsFactory is the element type implied by a bare caps segment such as
// "video/x-raw,width=1280".
const capsFactory = "capsfilter"

// Parse builds an inert graph from a gst-launch style description:
// segments separated by '!', each a factory name followed by key=value
// properties, or a bare caps string. Elements without a name= property get
// "<factory><n>" names the way gst-launch assigns them.
func Parse(description string) (*Graph, error) {
	desc := strings.TrimSpace(description)
	desc = strings.TrimPrefix(desc, "(")
	desc = strings.TrimSuffix(desc, ")")
	if strings.TrimSpace(desc) == "" {
		return nil, fmt.Errorf("empty pipeline description")
	}

	segments, err := splitSegments(desc)
	if err != nil {
		return nil, err
	}

	g := &Graph{state: StateInert}
	counters := make(map[string]int)
	names := make(map[string]bool)

	for i, seg := range segments {
		tokens, err := tokenize(seg)
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", i+1, err)
		}
		if len(tokens) == 0 {
			return nil, fmt.Errorf("segment %d is empty", i+1)
		}

		n := &node{graph: g, props: make(map[string]any)}
		if isCaps(tokens[0]) {
			n.factory = capsFactory
			n.caps = true
			n.setLocked("caps", strings.Join(tokens, " "))
		} else {
			n.factory = tokens[0]
			for _, tok := range tokens[1:] {
				key, value, ok := strings.Cut(tok, "=")
				if !ok || key == "" {
					return nil, fmt.Errorf("element %s: malformed property %q", n.factory, tok)
				}
				n.setLocked(key, parseValue(value))
			}
		}

		if v, ok := n.props["name"]; ok {
			n.name = fmt.Sprint(v)
			n.removeLocked("name")
		} else {
			n.name = fmt.Sprintf("%s%d", n.factory, counters[n.factory])
			counters[n.factory]++
		}
		if names[n.name] {
			return nil, fmt.Errorf("duplicate element name %q", n.name)
		}
		names[n.name] = true

		g.nodes = append(g.nodes, n)
	}

	return g, nil
}

// isCaps reports whether a segment's first token is a media type.
func isCaps(token string) bool {
	head, _, _ := strings.Cut(token, ",")
	return strings.Contains(head, "/") && !strings.Contains(head, "=")
}

// parseValue converts integers and booleans; everything else stays a string.
// Casts such as "(int)5" are accepted.
func parseValue(v string) any {
	v = stripCast(v)
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	switch v {
	case "true":
		return true
	case "false":
		return false
	}
	return v
}

// splitSegments splits on '!' outside quotes.
func splitSegments(desc string) ([]string, error) {
	var segments []string
	var current strings.Builder
	var quote rune

	for _, r := range desc {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
			current.WriteRune(r)
		case r == '"' || r == '\'':
			quote = r
			current.WriteRune(r)
		case r == '!':
			segments = append(segments, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unclosed quote in pipeline description")
	}
	segments = append(segments, strings.TrimSpace(current.String()))
	return segments, nil
}

// tokenize splits a segment on whitespace, removing quotes around values.
func tokenize(segment string) ([]string, error) {
	var tokens []string
	var current strings.Builder
	var quote rune
	inToken := false

	for _, r := range segment {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
				continue
			}
			current.WriteRune(r)
		case r == '"' || r == '\'':
			quote = r
			inToken = true
		case r == ' ' || r == '\t' || r == '\n':
			if inToken {
				tokens = append(tokens, current.String())
				current.Reset()
				inToken = false
			}
		default:
			current.WriteRune(r)
			inToken = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unclosed quote")
	}
	if inToken {
		tokens = append(tokens, current.String())
	}
	return tokens, nil
}

// DefaultDescription returns the stock i.MX6 capture pipeline. An empty caps
// filter is left out.
func DefaultDescription(sourceElement, capsFilter string) string {
	var b strings.Builder
	b.WriteString(sourceElement)
	b.WriteString(" name=source0 ! ")
	if capsFilter != "" {
		b.WriteString(capsFilter)
		b.WriteString(" ! ")
	}
	b.WriteString("imxipuvideotransform name=caps0 ! imxvpuenc_h264 name=enc0 ! rtph264pay name=pay0 pt=96")
	return b.String()
}
