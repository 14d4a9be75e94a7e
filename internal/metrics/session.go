// Package metrics provides Prometheus metrics for the shared stream session.
package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gstvrs"

var (
	viewers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "viewers",
		Help:      "Connected viewers",
	})

	pipelineActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "pipeline_active",
		Help:      "1 while the shared pipeline exists",
	})

	qualityValue = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "encoder",
		Name:      "quality",
		Help:      "Current encoder target (kbps for bitrate, level for quant)",
	}, []string{"mode"})

	stepFactor = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "encoder",
		Name:      "step_factor",
		Help:      "Quality distance per additional viewer",
	})

	joins = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "joins_total",
		Help:      "Viewer joins",
	})

	leaves = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "leaves_total",
		Help:      "Viewer leaves",
	})

	qualityChanges = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "encoder",
		Name:      "quality_changes_total",
		Help:      "Applied quality changes",
	})

	applyErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "encoder",
		Name:      "apply_errors_total",
		Help:      "Failed encoder control writes",
	})

	packetizerStats = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "rtp",
		Name:      "stat",
		Help:      "Numeric fields of the packetizer stats structure",
	}, []string{"field"})

	// Local cache for the status API.
	cache   Session
	cacheMu sync.RWMutex
)

// Session holds the last recorded values.
type Session struct {
	Viewers        int
	PipelineActive bool
	Mode           string
	Quality        int
	StepFactor     int
	Joins          int
	Leaves         int
	QualityChanges int
	ApplyErrors    int
	Packetizer     map[string]float64
}

// SetViewers records the viewer count.
func SetViewers(n int) {
	viewers.Set(float64(n))
	update(func(s *Session) { s.Viewers = n })
}

// SetPipelineActive records whether the pipeline exists. Going inactive
// clears the packetizer stats.
func SetPipelineActive(active bool) {
	v := 0.0
	if active {
		v = 1
	} else {
		packetizerStats.Reset()
	}
	pipelineActive.Set(v)
	update(func(s *Session) {
		s.PipelineActive = active
		if !active {
			s.Packetizer = nil
		}
	})
}

// SetQuality records the current quality for mode.
func SetQuality(mode string, value int) {
	qualityValue.WithLabelValues(mode).Set(float64(value))
	update(func(s *Session) {
		s.Mode = mode
		s.Quality = value
	})
}

// SetStepFactor records the linear step factor.
func SetStepFactor(v int) {
	stepFactor.Set(float64(v))
	update(func(s *Session) { s.StepFactor = v })
}

// IncJoins counts a viewer join.
func IncJoins() {
	joins.Inc()
	update(func(s *Session) { s.Joins++ })
}

// IncLeaves counts a viewer leave.
func IncLeaves() {
	leaves.Inc()
	update(func(s *Session) { s.Leaves++ })
}

// IncQualityChanges counts an applied quality change.
func IncQualityChanges() {
	qualityChanges.Inc()
	update(func(s *Session) { s.QualityChanges++ })
}

// IncApplyErrors counts a failed encoder write.
func IncApplyErrors() {
	applyErrors.Inc()
	update(func(s *Session) { s.ApplyErrors++ })
}

// SetPacketizerStats records the numeric fields of a stats map. Fields that
// do not parse as numbers are skipped.
func SetPacketizerStats(stats map[string]string) {
	parsed := make(map[string]float64, len(stats))
	for field, raw := range stats {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		parsed[field] = v
		packetizerStats.WithLabelValues(field).Set(v)
	}
	update(func(s *Session) { s.Packetizer = parsed })
}

// Current returns a copy of the recorded values.
func Current() Session {
	cacheMu.RLock()
	defer cacheMu.RUnlock()
	dup := cache
	if cache.Packetizer != nil {
		dup.Packetizer = make(map[string]float64, len(cache.Packetizer))
		for k, v := range cache.Packetizer {
			dup.Packetizer[k] = v
		}
	}
	return dup
}

func update(fn func(*Session)) {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	fn(&cache)
}
