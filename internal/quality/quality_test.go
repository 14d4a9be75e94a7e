package quality

import "testing"

func TestLinearBitrateScenario(t *testing.T) {
	s := Stepper{Mode: ModeBitrate, Policy: PolicyLinear, Bounds: Bounds{Min: 1000, Max: 10000, Steps: 4}}

	tests := []struct {
		clients int
		want    int
		clamped bool
	}{
		{1, 10000, false},
		{2, 7750, false},
		{3, 5500, false},
		{4, 3250, false},
		{5, 1000, false},
		{6, 1000, true},
		{40, 1000, true},
	}

	for _, tt := range tests {
		got, clamped := s.Target(tt.clients)
		if got != tt.want || clamped != tt.clamped {
			t.Errorf("Target(%d) = %d,%v, want %d,%v", tt.clients, got, clamped, tt.want, tt.clamped)
		}
	}
}

func TestLinearQuant(t *testing.T) {
	s := Stepper{Mode: ModeQuant, Policy: PolicyLinear, Bounds: Bounds{Min: 0, Max: 51, Steps: 4}}

	want := []int{0, 12, 24, 36, 48, 51, 51}
	for i, w := range want {
		if got, _ := s.Target(i + 1); got != w {
			t.Errorf("Target(%d) = %d, want %d", i+1, got, w)
		}
	}
}

func TestLinearWithinBoundsAndMonotonic(t *testing.T) {
	bounds := []Bounds{
		{Min: 1, Max: 10000, Steps: 4},
		{Min: 500, Max: 501, Steps: 7},
		{Min: 0, Max: 51, Steps: 1},
		{Min: 20, Max: 20, Steps: 3},
		{Min: 1, Max: BitrateCeiling, Steps: 9},
	}

	for _, b := range bounds {
		br := Stepper{Mode: ModeBitrate, Policy: PolicyLinear, Bounds: b}
		qp := Stepper{Mode: ModeQuant, Policy: PolicyLinear, Bounds: b}

		prevBR, prevQP := br.Best(), qp.Best()
		for clients := 1; clients <= 64; clients++ {
			vBR, _ := br.Target(clients)
			vQP, _ := qp.Target(clients)

			if vBR < b.Min || vBR > b.Max {
				t.Fatalf("bitrate %v clients=%d: %d outside bounds", b, clients, vBR)
			}
			if vQP < b.Min || vQP > b.Max {
				t.Fatalf("quant %v clients=%d: %d outside bounds", b, clients, vQP)
			}
			if vBR > prevBR {
				t.Fatalf("bitrate %v increased at clients=%d: %d > %d", b, clients, vBR, prevBR)
			}
			if vQP < prevQP {
				t.Fatalf("quant %v decreased at clients=%d: %d < %d", b, clients, vQP, prevQP)
			}
			prevBR, prevQP = vBR, vQP
		}
	}
}

func TestTargetDependsOnCountOnly(t *testing.T) {
	s := Stepper{Mode: ModeBitrate, Policy: PolicyLinear, Bounds: Bounds{Min: 1000, Max: 10000, Steps: 4}}

	before, _ := s.Target(1)
	s.Target(2)
	after, _ := s.Target(1)
	if before != after {
		t.Errorf("Target(1) changed from %d to %d", before, after)
	}
}

func TestTierQuantRounding(t *testing.T) {
	s := Stepper{Mode: ModeQuant, Policy: PolicyTier, Bounds: Bounds{Min: 0, Max: 51, Steps: 4}}

	// 51 * {0, 25, 50, 75, 100}% = 0, 12.75, 25.5, 38.25, 51
	tests := []struct {
		clients   int
		want      int
		saturated bool
	}{
		{1, 0, false},
		{2, 13, false},
		{3, 25, false},
		{4, 38, false},
		{5, 51, false},
		{6, 51, true},
		{100, 51, true},
	}

	for _, tt := range tests {
		got, saturated := s.Target(tt.clients)
		if got != tt.want || saturated != tt.saturated {
			t.Errorf("Target(%d) = %d,%v, want %d,%v", tt.clients, got, saturated, tt.want, tt.saturated)
		}
	}
}

func TestTierBitrate(t *testing.T) {
	s := Stepper{Mode: ModeBitrate, Policy: PolicyTier, Bounds: Bounds{Min: 1000, Max: 10000, Steps: 4}}

	want := []int{10000, 7750, 5500, 3250, 1000, 1000}
	for i, w := range want {
		if got, _ := s.Target(i + 1); got != w {
			t.Errorf("Target(%d) = %d, want %d", i+1, got, w)
		}
	}
}

func TestRoundHalfDown(t *testing.T) {
	tests := []struct {
		num, den, want int64
	}{
		{0, 100, 0},
		{1275, 100, 13},
		{2550, 100, 25},
		{2551, 100, 26},
		{3825, 100, 38},
		{5100, 100, 51},
		{49, 100, 0},
		{51, 100, 1},
	}

	for _, tt := range tests {
		if got := roundHalfDown(tt.num, tt.den); got != tt.want {
			t.Errorf("roundHalfDown(%d, %d) = %d, want %d", tt.num, tt.den, got, tt.want)
		}
	}
}

func TestTargetBelowOneClient(t *testing.T) {
	s := Stepper{Mode: ModeBitrate, Policy: PolicyLinear, Bounds: Bounds{Min: 1000, Max: 10000, Steps: 4}}
	if got, _ := s.Target(0); got != 10000 {
		t.Errorf("Target(0) = %d, want best bound 10000", got)
	}
}

func TestStepFactor(t *testing.T) {
	s := Stepper{Mode: ModeBitrate, Bounds: Bounds{Min: 1000, Max: 10000, Steps: 4}}
	if got := s.StepFactor(); got != 2250 {
		t.Errorf("StepFactor() = %d, want 2250", got)
	}

	s.Bounds.Steps = 0
	if got := s.StepFactor(); got != 0 {
		t.Errorf("StepFactor() with zero steps = %d, want 0", got)
	}
}
