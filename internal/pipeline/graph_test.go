package pipeline

import (
	"errors"
	"sync"
	"testing"
)

type recordingDriver struct {
	mu      sync.Mutex
	starts  int
	stops   int
	changes int
	failErr error
}

func (d *recordingDriver) start(*Graph) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.starts++
	return d.failErr
}

func (d *recordingDriver) stop(*Graph) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stops++
}

func (d *recordingDriver) changed(*Graph) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.changes++
}

func mustParse(t *testing.T, desc string) *Graph {
	t.Helper()
	g, err := Parse(desc)
	if err != nil {
		t.Fatalf("Parse(%q): %v", desc, err)
	}
	return g
}

func TestGraphPropertyWritesNotifyOnlyWhileRunning(t *testing.T) {
	g := mustParse(t, "videotestsrc ! x264enc name=enc0 ! rtph264pay name=pay0")
	d := &recordingDriver{}
	g.setDriver(d)

	enc, _ := g.ElementByName("enc0")
	if err := enc.SetProperty("bitrate", 1000); err != nil {
		t.Fatal(err)
	}
	if d.changes != 0 {
		t.Errorf("inert write notified driver %d times", d.changes)
	}

	if err := g.SetState(StateRunning); err != nil {
		t.Fatal(err)
	}
	if err := g.SetState(StateRunning); err != nil {
		t.Fatal(err)
	}
	if d.starts != 1 {
		t.Errorf("starts = %d, want 1", d.starts)
	}

	if err := enc.SetProperty("bitrate", 500); err != nil {
		t.Fatal(err)
	}
	if d.changes != 1 {
		t.Errorf("changes = %d, want 1", d.changes)
	}
	if v, _ := enc.Property("bitrate"); v != 500 {
		t.Errorf("bitrate = %v, want 500", v)
	}
}

func TestGraphStartFailureKeepsInert(t *testing.T) {
	g := mustParse(t, "videotestsrc ! fakesink")
	g.setDriver(&recordingDriver{failErr: errors.New("boom")})

	if err := g.SetState(StateRunning); err == nil {
		t.Fatal("expected start error")
	}
	if g.State() != StateInert {
		t.Errorf("State() = %s, want inert", g.State())
	}
}

func TestGraphRelease(t *testing.T) {
	g := mustParse(t, "videotestsrc ! x264enc name=enc0 ! rtph264pay name=pay0")
	d := &recordingDriver{}
	g.setDriver(d)
	if err := g.SetState(StateRunning); err != nil {
		t.Fatal(err)
	}

	enc, _ := g.ElementByName("enc0")
	g.Release()
	g.Release()

	if d.stops != 1 {
		t.Errorf("stops = %d, want 1", d.stops)
	}
	if !g.Released() || g.State() != StateInert {
		t.Errorf("Released()=%v State()=%s", g.Released(), g.State())
	}
	if err := enc.SetProperty("bitrate", 1); !errors.Is(err, ErrReleased) {
		t.Errorf("SetProperty after release = %v, want ErrReleased", err)
	}
	if err := g.SetState(StateRunning); !errors.Is(err, ErrReleased) {
		t.Errorf("SetState after release = %v, want ErrReleased", err)
	}
}

func TestSetPropertyRejects(t *testing.T) {
	g := mustParse(t, "videotestsrc name=src ! fakesink")
	src, _ := g.ElementByName("src")

	tests := []struct {
		name  string
		key   string
		value any
	}{
		{"float", "pattern", 1.5},
		{"nil structure", "extra", (*Structure)(nil)},
		{"name", "name", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := src.SetProperty(tt.key, tt.value); err == nil {
				t.Errorf("SetProperty(%q, %v) succeeded", tt.key, tt.value)
			}
		})
	}
}

func TestStructurePropertyIsCopied(t *testing.T) {
	g := mustParse(t, "videotestsrc ! v4l2h264enc name=enc0 ! rtph264pay")
	enc, _ := g.ElementByName("enc0")

	st := NewStructure("controls")
	st.SetInt("video_bitrate", 1)
	if err := enc.SetProperty("extra-controls", st); err != nil {
		t.Fatal(err)
	}
	st.SetInt("video_bitrate", 99)

	v, _ := enc.Property("extra-controls")
	got := v.(*Structure)
	got.SetInt("video_bitrate", 42)

	v, _ = enc.Property("extra-controls")
	if br, _ := v.(*Structure).GetInt("video_bitrate"); br != 1 {
		t.Errorf("video_bitrate = %d, want 1", br)
	}
}

func TestPacketizerStats(t *testing.T) {
	g := mustParse(t, "videotestsrc name=src ! x264enc ! rtph264pay name=pay0")
	g.SetStatsSource(func() *Structure {
		st := NewStructure("application/x-rtp-payload-stats")
		st.SetInt("clock-rate", 90000)
		return st
	})

	pay, _ := g.ElementByName("pay0")
	v, ok := pay.Property("stats")
	if !ok {
		t.Fatal("stats missing on packetizer")
	}
	if rate, _ := v.(*Structure).GetInt("clock-rate"); rate != 90000 {
		t.Errorf("clock-rate = %d", rate)
	}

	src, _ := g.ElementByName("src")
	if _, ok := src.Property("stats"); ok {
		t.Error("stats reported on non-packetizer")
	}
}

func TestIsPacketizerFactory(t *testing.T) {
	tests := map[string]bool{
		"rtph264pay":   true,
		"rtph265pay":   true,
		"rtpjpegpay":   true,
		"rtph264depay": false,
		"x264enc":      false,
		"rtpbin":       false,
	}
	for factory, want := range tests {
		if got := IsPacketizerFactory(factory); got != want {
			t.Errorf("IsPacketizerFactory(%q) = %v, want %v", factory, got, want)
		}
	}
}
