package pipeline

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// driver runs a graph somewhere. Graphs without a driver only record state.
type driver interface {
	start(g *Graph) error
	stop(g *Graph)
	changed(g *Graph)
}

// Graph is an ordered chain of elements that can be rendered back into a
// launch description.
type Graph struct {
	mu       sync.RWMutex
	nodes    []*node
	state    State
	released bool
	driver   driver
	stats    func() *Structure
}

// ElementByName returns the element with the given name.
func (g *Graph) ElementByName(name string) (Element, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, n := range g.nodes {
		if n.name == name {
			return n, true
		}
	}
	return nil, false
}

// Elements returns all elements in chain order.
func (g *Graph) Elements() []Element {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Element, len(g.nodes))
	for i, n := range g.nodes {
		out[i] = n
	}
	return out
}

// State returns the current run state.
func (g *Graph) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// SetState moves the graph between inert and running.
func (g *Graph) SetState(state State) error {
	if state != StateInert && state != StateRunning {
		return fmt.Errorf("unknown pipeline state %q", state)
	}

	g.mu.Lock()
	if g.released {
		g.mu.Unlock()
		return ErrReleased
	}
	if g.state == state {
		g.mu.Unlock()
		return nil
	}
	prev := g.state
	g.state = state
	d := g.driver
	g.mu.Unlock()

	if d == nil {
		return nil
	}
	if state == StateRunning {
		if err := d.start(g); err != nil {
			g.mu.Lock()
			g.state = prev
			g.mu.Unlock()
			return err
		}
		return nil
	}
	d.stop(g)
	return nil
}

// Release drops the graph. Release is idempotent.
func (g *Graph) Release() {
	g.mu.Lock()
	if g.released {
		g.mu.Unlock()
		return
	}
	running := g.state == StateRunning
	g.released = true
	g.state = StateInert
	d := g.driver
	g.driver = nil
	g.mu.Unlock()

	if running && d != nil {
		d.stop(g)
	}
}

// Released reports whether Release has been called.
func (g *Graph) Released() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.released
}

// Render returns the launch description for the current property values.
func (g *Graph) Render() string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	segments := make([]string, len(g.nodes))
	for i, n := range g.nodes {
		segments[i] = n.render()
	}
	return strings.Join(segments, " ! ")
}

// SetStatsSource installs the provider for the packetizer "stats" property.
func (g *Graph) SetStatsSource(fn func() *Structure) {
	g.mu.Lock()
	g.stats = fn
	g.mu.Unlock()
}

func (g *Graph) setDriver(d driver) {
	g.mu.Lock()
	g.driver = d
	g.mu.Unlock()
}

// node is a single element of a Graph.
type node struct {
	graph   *Graph
	factory string
	name    string
	caps    bool
	keys    []string
	props   map[string]any
}

func (n *node) Name() string     { return n.name }
func (n *node) TypeName() string { return n.factory }

// Property returns a copy of aggregate values so callers cannot mutate the
// graph behind its lock.
func (n *node) Property(key string) (any, bool) {
	n.graph.mu.RLock()
	v, ok := n.props[key]
	stats := n.graph.stats
	n.graph.mu.RUnlock()

	if !ok && key == "stats" && stats != nil && IsPacketizerFactory(n.factory) {
		if st := stats(); st != nil {
			return st, true
		}
	}
	if st, isStruct := v.(*Structure); isStruct && st != nil {
		return st.Clone(), true
	}
	return v, ok
}

// SetProperty stores a value. Writes to a running graph notify its driver.
func (n *node) SetProperty(key string, value any) error {
	switch v := value.(type) {
	case int, bool, string:
	case *Structure:
		if v == nil {
			return fmt.Errorf("%s: nil structure for %s", n.name, key)
		}
		value = v.Clone()
	default:
		return fmt.Errorf("%s: unsupported value type %T for %s", n.name, value, key)
	}
	if key == "name" {
		return fmt.Errorf("%s: name is read-only", n.name)
	}

	g := n.graph
	g.mu.Lock()
	if g.released {
		g.mu.Unlock()
		return ErrReleased
	}
	n.setLocked(key, value)
	notify := g.state == StateRunning && g.driver != nil
	d := g.driver
	g.mu.Unlock()

	if notify {
		d.changed(g)
	}
	return nil
}

func (n *node) setLocked(key string, value any) {
	if _, exists := n.props[key]; !exists {
		n.keys = append(n.keys, key)
	}
	n.props[key] = value
}

func (n *node) removeLocked(key string) {
	delete(n.props, key)
	for i, k := range n.keys {
		if k == key {
			n.keys = append(n.keys[:i], n.keys[i+1:]...)
			return
		}
	}
}

func (n *node) render() string {
	if n.caps {
		return fmt.Sprint(n.props["caps"])
	}

	parts := []string{n.factory, "name=" + n.name}
	for _, k := range n.keys {
		parts = append(parts, k+"="+renderValue(n.props[k]))
	}
	return strings.Join(parts, " ")
}

func renderValue(v any) string {
	switch t := v.(type) {
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	case *Structure:
		return quote(t.String())
	case string:
		if strings.ContainsAny(t, " \t,;\"'!") {
			return quote(t)
		}
		return t
	default:
		return fmt.Sprint(t)
	}
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

// IsPacketizerFactory reports whether a factory name is an RTP payloader.
// Depayloaders (rtph264depay) share the prefix and suffix and are not.
func IsPacketizerFactory(factory string) bool {
	return strings.HasPrefix(factory, "rtp") && strings.HasSuffix(factory, "pay") &&
		!strings.HasSuffix(factory, "depay")
}
