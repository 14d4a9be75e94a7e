package led

import "github.com/Gateworks/gst-gateworks-apps/internal/logging"

// noop is used on boards without controllable LEDs.
type noop struct {
	logger logging.Logger
}

func newNoop(logger logging.Logger) *noop {
	return &noop{logger: logger}
}

func (n *noop) Set(name string, enabled bool, pattern string) error {
	if n.logger != nil {
		n.logger.Debug("LED control not available", "led", name, "enabled", enabled, "pattern", pattern)
	}
	return nil
}

func (n *noop) Available() []string { return []string{} }

func (n *noop) Patterns() []string { return []string{} }
