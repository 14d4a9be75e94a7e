package pipeline

import (
	"fmt"
	"strconv"
	"strings"
)

// Structure is a named bundle of key/value fields, serialized as
// "name,key=value,key=value". Encoders use it for aggregate controls such as
// v4l2h264enc's extra-controls. Field order is preserved.
type Structure struct {
	name   string
	keys   []string
	fields map[string]string
}

// NewStructure creates an empty structure.
func NewStructure(name string) *Structure {
	return &Structure{
		name:   name,
		fields: make(map[string]string),
	}
}

// ParseStructure parses a serialized structure. Type casts such as "(int)5"
// and a trailing ';' are accepted.
func ParseStructure(s string) (*Structure, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ";")
	if s == "" {
		return nil, fmt.Errorf("empty structure")
	}

	parts := strings.Split(s, ",")
	name := strings.TrimSpace(parts[0])
	if name == "" || strings.Contains(name, "=") {
		return nil, fmt.Errorf("structure %q has no name", s)
	}

	st := NewStructure(name)
	for _, part := range parts[1:] {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("structure field %q has no value", part)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("structure field %q has no key", part)
		}
		st.Set(key, stripCast(strings.TrimSpace(value)))
	}
	return st, nil
}

// stripCast removes a leading "(type)" cast.
func stripCast(v string) string {
	if strings.HasPrefix(v, "(") {
		if end := strings.Index(v, ")"); end > 0 {
			return strings.TrimSpace(v[end+1:])
		}
	}
	return v
}

// Name returns the structure name.
func (s *Structure) Name() string {
	return s.name
}

// Get returns a field value.
func (s *Structure) Get(key string) (string, bool) {
	v, ok := s.fields[key]
	return v, ok
}

// GetInt returns a field parsed as an integer.
func (s *Structure) GetInt(key string) (int, bool) {
	v, ok := s.fields[key]
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return i, true
}

// Set sets a field, appending it if new.
func (s *Structure) Set(key, value string) {
	if _, exists := s.fields[key]; !exists {
		s.keys = append(s.keys, key)
	}
	s.fields[key] = value
}

// SetInt sets an integer field.
func (s *Structure) SetInt(key string, value int) {
	s.Set(key, strconv.Itoa(value))
}

// Keys returns field names in insertion order.
func (s *Structure) Keys() []string {
	return append([]string(nil), s.keys...)
}

// Len returns the number of fields.
func (s *Structure) Len() int {
	return len(s.keys)
}

// Merge copies every field of other into s, overwriting existing keys and
// leaving the rest untouched.
func (s *Structure) Merge(other *Structure) {
	if other == nil {
		return
	}
	for _, k := range other.keys {
		s.Set(k, other.fields[k])
	}
}

// Clone returns a deep copy.
func (s *Structure) Clone() *Structure {
	c := NewStructure(s.name)
	c.Merge(s)
	return c
}

// Map returns the fields as a plain map.
func (s *Structure) Map() map[string]string {
	m := make(map[string]string, len(s.fields))
	for k, v := range s.fields {
		m[k] = v
	}
	return m
}

// String serializes the structure.
func (s *Structure) String() string {
	var b strings.Builder
	b.WriteString(s.name)
	for _, k := range s.keys {
		b.WriteByte(',')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(s.fields[k])
	}
	return b.String()
}

// AsStructure converts a property value to a structure. Strings are parsed.
func AsStructure(v any) (*Structure, bool) {
	switch t := v.(type) {
	case *Structure:
		if t == nil {
			return nil, false
		}
		return t, true
	case string:
		st, err := ParseStructure(t)
		if err != nil {
			return nil, false
		}
		return st, true
	default:
		return nil, false
	}
}

// AsInt converts a property value to an integer. Strings are parsed.
func AsInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case uint:
		return int(t), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}
