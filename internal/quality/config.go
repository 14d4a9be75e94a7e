package quality

import (
	"fmt"
	"math"

	"github.com/Gateworks/gst-gateworks-apps/internal/types"
)

// Encoder limits for user supplied bounds.
const (
	BitrateFloor   = 1             // lowest usable target bitrate, kbps
	BitrateCeiling = math.MaxInt32 // largest value every supported encoder accepts, kbps
	QuantFloor     = 0             // best quality
	QuantCeiling   = 51            // worst H.264 quantization level

	// ModeAuto resolves to ModeQuant when MaxBitrate is 0, ModeBitrate otherwise.
	ModeAuto Mode = "auto"
)

// Config holds the user supplied quality options. Steps is the number of
// quality levels from best to worst as the user counts them; the effective
// step count used for division is Steps-1.
type Config struct {
	Mode       Mode
	Policy     Policy
	Steps      int
	MinBitrate int
	MaxBitrate int
	MinQuant   int
	MaxQuant   int
}

// DefaultConfig returns the stock options: five levels from 10 Mbit/s down.
func DefaultConfig() Config {
	return Config{
		Mode:       ModeAuto,
		Policy:     PolicyLinear,
		Steps:      5,
		MinBitrate: BitrateFloor,
		MaxBitrate: 10000,
		MinQuant:   QuantFloor,
		MaxQuant:   QuantCeiling,
	}
}

// Warning describes an out-of-range option that was clamped.
type Warning struct {
	Field string
	Given int
	Used  int
}

func (w Warning) String() string {
	return fmt.Sprintf("%s %d out of range, using %d", w.Field, w.Given, w.Used)
}

// Normalize clamps out-of-range bounds and validates the result. Clamping is
// reported through warnings; inconsistent options are a *types.ConfigError.
func (c Config) Normalize() (Config, []Warning, error) {
	var warnings []Warning
	clampField := func(field string, v *int, lo, hi int) {
		if used := clamp(*v, lo, hi); used != *v {
			warnings = append(warnings, Warning{Field: field, Given: *v, Used: used})
			*v = used
		}
	}

	clampField("min-bitrate", &c.MinBitrate, BitrateFloor, BitrateCeiling)
	clampField("max-bitrate", &c.MaxBitrate, 0, BitrateCeiling)
	clampField("min-quant-lvl", &c.MinQuant, QuantFloor, QuantCeiling)
	clampField("max-quant-lvl", &c.MaxQuant, QuantFloor, QuantCeiling)

	switch c.Mode {
	case "", ModeAuto:
		c.Mode = ModeBitrate
		if c.MaxBitrate == 0 {
			c.Mode = ModeQuant
		}
	case ModeBitrate, ModeQuant:
	default:
		return c, warnings, types.NewConfigError(types.ErrCodeInvalidOption, "mode",
			fmt.Sprintf("unknown quality mode %q", c.Mode))
	}

	switch c.Policy {
	case "":
		c.Policy = PolicyLinear
	case PolicyLinear, PolicyTier:
	default:
		return c, warnings, types.NewConfigError(types.ErrCodeInvalidOption, "policy",
			fmt.Sprintf("unknown quality policy %q", c.Policy))
	}

	if c.MaxQuant < c.MinQuant {
		return c, warnings, types.NewConfigError(types.ErrCodeInvalidBounds, "max-quant-lvl",
			"max quant level must be greater than min quant level")
	}
	if c.Mode == ModeBitrate && c.MaxBitrate < c.MinBitrate {
		return c, warnings, types.NewConfigError(types.ErrCodeInvalidBounds, "max-bitrate",
			"max bitrate must be greater than min bitrate")
	}
	if c.Steps-1 < 1 {
		return c, warnings, types.NewConfigError(types.ErrCodeInvalidSteps, "steps",
			"steps must be 2 or greater")
	}

	return c, warnings, nil
}

// Stepper returns the stepper for a normalized config.
func (c Config) Stepper() Stepper {
	b := Bounds{Min: c.MinQuant, Max: c.MaxQuant, Steps: c.Steps - 1}
	if c.Mode == ModeBitrate {
		b = Bounds{Min: c.MinBitrate, Max: c.MaxBitrate, Steps: c.Steps - 1}
	}
	return Stepper{Mode: c.Mode, Policy: c.Policy, Bounds: b}
}
