package session

import (
	"time"

	"github.com/Gateworks/gst-gateworks-apps/internal/events"
	"github.com/Gateworks/gst-gateworks-apps/internal/metrics"
	"github.com/Gateworks/gst-gateworks-apps/internal/pipeline"
)

// Snapshot is one telemetry sample.
type Snapshot struct {
	Clients    int               `json:"clients"`
	Mode       string            `json:"mode"`
	Quality    int               `json:"quality"`
	StepFactor int               `json:"step_factor"`
	Encoder    string            `json:"encoder"`
	Stats      map[string]string `json:"stats,omitempty"`
	Time       time.Time         `json:"time"`
}

type tickResult int

const (
	reschedule tickResult = iota
	stop
)

// armReporter starts the reporter unless one is already running. Must hold mu.
func (c *Controller) armReporter() {
	if c.opts.ReportInterval <= 0 || c.reporterArmed {
		return
	}
	c.reporterArmed = true
	go c.report(c.opts.ReportInterval)
}

func (c *Controller) report(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			c.mu.Lock()
			c.reporterArmed = false
			c.mu.Unlock()
			return
		case <-ticker.C:
			if c.tick() == stop {
				return
			}
		}
	}
}

// tick takes one sample. It stops the reporter once no pipeline is active.
func (c *Controller) tick() tickResult {
	c.mu.Lock()
	if !c.active {
		c.reporterArmed = false
		c.mu.Unlock()
		return stop
	}
	snap := c.snapshot()
	c.lastReport = &snap
	c.mu.Unlock()

	c.logger.Info("Stream status",
		"clients", snap.Clients,
		snap.Mode, snap.Quality,
		"step_factor", snap.StepFactor,
		"encoder", snap.Encoder,
		"stats", snap.Stats)

	if snap.Stats != nil {
		metrics.SetPacketizerStats(snap.Stats)
	}

	c.publish(events.TelemetryEvent{
		Clients:    snap.Clients,
		Mode:       snap.Mode,
		Quality:    snap.Quality,
		StepFactor: snap.StepFactor,
		Encoder:    snap.Encoder,
		Stats:      snap.Stats,
		Timestamp:  snap.Time.UTC().Format(time.RFC3339),
	})
	return reschedule
}

// snapshot must hold mu.
func (c *Controller) snapshot() Snapshot {
	snap := Snapshot{
		Clients:    c.clients,
		Mode:       string(c.stepper.Mode),
		Quality:    c.quality,
		StepFactor: c.stepper.StepFactor(),
		Time:       time.Now(),
	}
	if c.bindings == nil {
		return snap
	}

	snap.Encoder = string(c.bindings.EncoderKind)
	if raw, ok := c.bindings.Packetizer.Property("stats"); ok {
		if st, ok := pipeline.AsStructure(raw); ok {
			snap.Stats = st.Map()
		}
	}
	return snap
}
