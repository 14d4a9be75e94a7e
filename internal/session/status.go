package session

import (
	"time"

	"github.com/Gateworks/gst-gateworks-apps/internal/encoder"
	"github.com/Gateworks/gst-gateworks-apps/internal/quality"
)

// Status is a point-in-time view of the controller.
type Status struct {
	Clients     int              `json:"clients"`
	Active      bool             `json:"active"`
	Mode        quality.Mode     `json:"mode"`
	Policy      quality.Policy   `json:"policy"`
	Quality     int              `json:"quality"`
	Bounds      quality.Bounds   `json:"bounds"`
	StepFactor  int              `json:"step_factor"`
	Roles       map[Role]string  `json:"roles,omitempty"`
	Encoder     *encoder.Surface `json:"encoder,omitempty"`
	Sessions    int              `json:"sessions"`
	ApplyErrors int              `json:"apply_errors"`
	ActiveSince *time.Time       `json:"active_since,omitempty"`
	LastReport  *Snapshot        `json:"last_report,omitempty"`
}

// Status returns the current state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		Clients:     c.clients,
		Active:      c.active,
		Mode:        c.stepper.Mode,
		Policy:      c.stepper.Policy,
		Quality:     c.quality,
		Bounds:      c.stepper.Bounds,
		StepFactor:  c.stepper.StepFactor(),
		Sessions:    c.sessions,
		ApplyErrors: c.applyErrors,
	}

	if c.bindings != nil {
		st.Roles = make(map[Role]string, len(Roles))
		for _, r := range Roles {
			st.Roles[r] = c.bindings.Element(r).Name()
		}
		surface := encoder.Describe(c.bindings.EncoderKind)
		st.Encoder = &surface
	}
	if !c.activeSince.IsZero() {
		since := c.activeSince
		st.ActiveSince = &since
	}
	if c.lastReport != nil && c.active {
		report := *c.lastReport
		st.LastReport = &report
	}
	return st
}

// Clients returns the number of connected viewers.
func (c *Controller) Clients() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clients
}

// Stepper returns the quality stepper in use.
func (c *Controller) Stepper() quality.Stepper {
	return c.stepper
}
