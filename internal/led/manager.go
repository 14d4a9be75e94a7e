package led

import (
	"sync"

	"github.com/Gateworks/gst-gateworks-apps/internal/events"
	"github.com/Gateworks/gst-gateworks-apps/internal/logging"
)

// DefaultLED is the indicator driven by the manager.
const DefaultLED = "user1"

const (
	patternLive = "solid"
	patternIdle = "heartbeat"
)

// Manager mirrors the pipeline state on one LED: solid while a viewer
// keeps the pipeline live, heartbeat while it is idle.
type Manager struct {
	ctrl   Controller
	bus    *events.Bus
	led    string
	logger logging.Logger

	mu     sync.Mutex
	active bool
	unsub  func()
}

// NewManager returns a manager for led, or DefaultLED when led is empty.
func NewManager(ctrl Controller, bus *events.Bus, led string, logger logging.Logger) *Manager {
	if led == "" {
		led = DefaultLED
	}
	return &Manager{ctrl: ctrl, bus: bus, led: led, logger: logger}
}

// Start shows the idle pattern and follows pipeline state events.
func (m *Manager) Start() {
	m.show(false)
	unsub := m.bus.Subscribe(m.onState)

	m.mu.Lock()
	m.unsub = unsub
	m.mu.Unlock()
	m.logger.Info("LED manager started", "led", m.led)
}

// Stop stops following events and switches the LED off.
func (m *Manager) Stop() {
	m.mu.Lock()
	unsub := m.unsub
	m.unsub = nil
	m.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if err := m.ctrl.Set(m.led, false, "none"); err != nil {
		m.logger.Warn("Failed to turn LED off", "led", m.led, "error", err)
	}
	m.logger.Info("LED manager stopped", "led", m.led)
}

func (m *Manager) onState(ev events.PipelineStateChangedEvent) {
	active := ev.IsActive()

	m.mu.Lock()
	changed := active != m.active
	m.active = active
	m.mu.Unlock()

	if changed {
		m.logger.Debug("Pipeline activity changed", "active", active, "clients", ev.Clients)
		m.show(active)
	}
}

func (m *Manager) show(active bool) {
	pattern := patternIdle
	if active {
		pattern = patternLive
	}
	if err := m.ctrl.Set(m.led, true, pattern); err != nil {
		m.logger.Warn("Failed to set LED", "led", m.led, "pattern", pattern, "error", err)
	}
}

// Active reports the state last shown on the LED.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Controller returns the controller the manager drives.
func (m *Manager) Controller() Controller {
	return m.ctrl
}
