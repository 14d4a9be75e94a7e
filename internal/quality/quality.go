// Package quality maps the number of connected viewers to an encoder control
// value. All functions are pure; callers own logging and state.
package quality

// Mode selects the encoder control axis.
type Mode string

const (
	ModeBitrate Mode = "bitrate" // kbps, higher is better
	ModeQuant   Mode = "quant"   // quantization level, lower is better
)

// Policy selects how viewer count is turned into a position between the bounds.
type Policy string

const (
	PolicyLinear Policy = "linear"
	PolicyTier   Policy = "tier"
)

// tierPercents are the fixed degradation positions for 1..5 viewers.
var tierPercents = [...]int{0, 25, 50, 75, 100}

// MaxTierClients is the highest viewer count with its own tier.
const MaxTierClients = len(tierPercents)

// Bounds holds the inclusive control range and the effective step count.
type Bounds struct {
	Min   int `json:"min"`
	Max   int `json:"max"`
	Steps int `json:"steps"`
}

// Stepper computes quality targets for a fixed mode, policy and bounds.
type Stepper struct {
	Mode   Mode
	Policy Policy
	Bounds Bounds
}

// Best returns the best-quality bound for the mode.
func (s Stepper) Best() int {
	if s.Mode == ModeQuant {
		return s.Bounds.Min
	}
	return s.Bounds.Max
}

// Worst returns the worst-quality bound for the mode.
func (s Stepper) Worst() int {
	if s.Mode == ModeQuant {
		return s.Bounds.Max
	}
	return s.Bounds.Min
}

// StepFactor returns the control distance between two adjacent viewer counts
// under the linear policy.
func (s Stepper) StepFactor() int {
	if s.Bounds.Steps < 1 {
		return 0
	}
	return (s.Bounds.Max - s.Bounds.Min) / s.Bounds.Steps
}

// Target returns the control value for the given number of viewers. The
// second result is true when the raw value fell outside the bounds (linear)
// or the viewer count is past the last tier (tier) and was clamped.
//
// clients below 1 yields Best; there is no pipeline to adjust in that case.
func (s Stepper) Target(clients int) (int, bool) {
	if clients < 1 {
		return s.Best(), false
	}
	if s.Policy == PolicyTier {
		return s.tier(clients)
	}
	return s.linear(clients)
}

func (s Stepper) linear(clients int) (int, bool) {
	// int64 keeps large viewer counts from overflowing on 32-bit boards.
	delta := int64(clients-1) * int64(s.StepFactor())

	var raw int64
	if s.Mode == ModeQuant {
		raw = int64(s.Bounds.Min) + delta
	} else {
		raw = int64(s.Bounds.Max) - delta
	}

	switch {
	case raw < int64(s.Bounds.Min):
		return s.Bounds.Min, true
	case raw > int64(s.Bounds.Max):
		return s.Bounds.Max, true
	}
	return int(raw), false
}

func (s Stepper) tier(clients int) (int, bool) {
	saturated := clients > MaxTierClients
	if saturated {
		clients = MaxTierClients
	}

	offset := int(roundHalfDown(int64(s.Bounds.Max-s.Bounds.Min)*int64(tierPercents[clients-1]), 100))
	if s.Mode == ModeQuant {
		return clamp(s.Bounds.Min+offset, s.Bounds.Min, s.Bounds.Max), saturated
	}
	return clamp(s.Bounds.Max-offset, s.Bounds.Min, s.Bounds.Max), saturated
}

// roundHalfDown divides num by den (both non-negative) rounding to the
// nearest integer, with exact halves rounded toward zero.
func roundHalfDown(num, den int64) int64 {
	q, r := num/den, num%den
	if 2*r > den {
		q++
	}
	return q
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
