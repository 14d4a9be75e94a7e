package api

import (
	"bufio"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/Gateworks/gst-gateworks-apps/internal/api/models"
	"github.com/Gateworks/gst-gateworks-apps/internal/events"
	"github.com/Gateworks/gst-gateworks-apps/internal/process"
	"github.com/Gateworks/gst-gateworks-apps/internal/quality"
	"github.com/Gateworks/gst-gateworks-apps/internal/session"
	"github.com/Gateworks/gst-gateworks-apps/internal/version"
)

type fakeController struct {
	status  session.Status
	stepper quality.Stepper
}

func (f *fakeController) Status() session.Status { return f.status }
func (f *fakeController) Stepper() quality.Stepper { return f.stepper }

type fakeLEDs struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeLEDs) Set(ledType string, enabled bool, pattern string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	state := "off"
	if enabled {
		state = "on"
	}
	f.calls = append(f.calls, ledType+" "+state+" "+pattern)
	return nil
}

func (f *fakeLEDs) Available() []string { return []string{"user1", "user2"} }
func (f *fakeLEDs) Patterns() []string { return []string{"solid", "blink", "heartbeat"} }

func newTestServer(t *testing.T, opts *Options) *httptest.Server {
	t.Helper()
	if opts.Controller == nil {
		opts.Controller = &fakeController{
			status: session.Status{Clients: 2, Active: true, Mode: quality.ModeBitrate, Quality: 7501},
			stepper: quality.Stepper{
				Mode:   quality.ModeBitrate,
				Policy: quality.PolicyLinear,
				Bounds: quality.Bounds{Min: 1, Max: 10000, Steps: 4},
			},
		}
	}
	ts := httptest.NewServer(NewServer(opts).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, out any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}

func TestHealthAndVersion(t *testing.T) {
	tests := []struct {
		name         string
		pipeline     Pipeline
		wantStatus   string
		wantPipeline string
	}{
		{name: "no pipeline", wantStatus: "ok"},
		{name: "running", pipeline: &fakePipeline{info: process.Info{State: process.StateRunning}}, wantStatus: "ok", wantPipeline: "running"},
		{name: "crashed", pipeline: &fakePipeline{info: process.Info{State: process.StateError}}, wantStatus: "degraded", wantPipeline: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, &Options{Pipeline: tt.pipeline})

			var health models.HealthData
			getJSON(t, ts.URL+"/api/health", &health)
			if health.Status != tt.wantStatus || health.Pipeline != tt.wantPipeline || health.Uptime == "" {
				t.Errorf("health = %+v", health)
			}
		})
	}

	ts := newTestServer(t, &Options{})
	var ver version.Info
	getJSON(t, ts.URL+"/api/version", &ver)
	if ver.Version == "" || ver.GoVersion == "" || ver.Platform == "" {
		t.Errorf("version info incomplete: %+v", ver)
	}
}

func TestStatus(t *testing.T) {
	ts := newTestServer(t, &Options{})

	var st session.Status
	getJSON(t, ts.URL+"/api/status", &st)
	if st.Clients != 2 || !st.Active || st.Quality != 7501 || st.Mode != quality.ModeBitrate {
		t.Errorf("unexpected status: %+v", st)
	}
}

func TestQualityTable(t *testing.T) {
	ts := newTestServer(t, &Options{})

	tests := []struct {
		query    string
		wantRows int
		wantLast quality.Row
	}{
		{"", 10, quality.Row{Clients: 10, Value: 1, Clamped: true}},
		{"?clients=3", 3, quality.Row{Clients: 3, Value: 5002}},
	}

	for _, tt := range tests {
		t.Run("clients"+tt.query, func(t *testing.T) {
			var table models.QualityTableData
			getJSON(t, ts.URL+"/api/quality"+tt.query, &table)
			if table.StepFactor != 2499 {
				t.Errorf("step factor = %d, want 2499", table.StepFactor)
			}
			if len(table.Rows) != tt.wantRows {
				t.Fatalf("rows = %d, want %d", len(table.Rows), tt.wantRows)
			}
			if last := table.Rows[len(table.Rows)-1]; last != tt.wantLast {
				t.Errorf("last row = %+v, want %+v", last, tt.wantLast)
			}
		})
	}

	resp, err := http.Get(ts.URL + "/api/quality?clients=0")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("clients=0 status = %d, want 422", resp.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, &Options{})

	for _, path := range []string{"/api/webrtc", "/api/status", "/no/such/route"} {
		req, _ := http.NewRequest(http.MethodOptions, ts.URL+path, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()

		if resp.StatusCode != http.StatusNoContent {
			t.Errorf("OPTIONS %s status = %d, want 204", path, resp.StatusCode)
		}
		if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("OPTIONS %s Allow-Origin = %q", path, got)
		}
	}
}

func TestMetricsAndExtraRoutes(t *testing.T) {
	var registered bool
	ts := newTestServer(t, &Options{
		PrometheusHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("gstvrs_session_viewers 2\n"))
		}),
		RegisterRoutes: func(api huma.API) {
			registered = api != nil
		},
	})

	if !registered {
		t.Error("RegisterRoutes was not called")
	}

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body := new(strings.Builder)
	if _, err := bufio.NewReader(resp.Body).WriteTo(body); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(body.String(), "gstvrs_session_viewers 2") {
		t.Errorf("metrics body = %q", body.String())
	}
}

func doJSON(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestLEDRoutes(t *testing.T) {
	leds := &fakeLEDs{}
	ts := newTestServer(t, &Options{LEDController: leds})

	var caps models.LEDsData
	getJSON(t, ts.URL+"/api/leds", &caps)
	if len(caps.LEDs) != 2 || len(caps.Patterns) != 3 {
		t.Errorf("capabilities = %+v", caps)
	}

	tests := []struct {
		name       string
		led        string
		body       string
		wantStatus int
		wantCall   string
	}{
		{"pattern", "user2", `{"enabled":true,"pattern":"blink"}`, http.StatusNoContent, "user2 on blink"},
		{"off", "user1", `{"enabled":false}`, http.StatusNoContent, "user1 off "},
		{"unknown led", "user9", `{"enabled":true}`, http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			leds.mu.Lock()
			leds.calls = nil
			leds.mu.Unlock()

			resp := doJSON(t, http.MethodPut, ts.URL+"/api/leds/"+tt.led, tt.body)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}

			leds.mu.Lock()
			defer leds.mu.Unlock()
			if tt.wantCall == "" {
				if len(leds.calls) != 0 {
					t.Errorf("LED calls = %v, want none", leds.calls)
				}
				return
			}
			if len(leds.calls) != 1 || leds.calls[0] != tt.wantCall {
				t.Errorf("LED calls = %v, want [%s]", leds.calls, tt.wantCall)
			}
		})
	}
}

type fakeLevels struct {
	levels map[string]string
}

func (f *fakeLevels) Levels() map[string]string { return f.levels }

func (f *fakeLevels) SetLevel(module, level string) error {
	if level == "verbose" {
		return errors.New("unknown log level")
	}
	f.levels[module] = level
	return nil
}

func TestLoggingRoutes(t *testing.T) {
	levels := &fakeLevels{levels: map[string]string{"session": "info", "api": "info"}}
	ts := newTestServer(t, &Options{LogLevels: levels})

	var got models.LogLevelsData
	getJSON(t, ts.URL+"/api/logging", &got)
	if got.Modules["session"] != "info" {
		t.Errorf("levels = %v", got.Modules)
	}

	resp := doJSON(t, http.MethodPut, ts.URL+"/api/logging/session", `{"level":"debug"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Modules["session"] != "debug" {
		t.Errorf("levels after PUT = %v", got.Modules)
	}

	// Rejected by the schema before reaching SetLevel.
	if resp := doJSON(t, http.MethodPut, ts.URL+"/api/logging/session", `{"level":"verbose"}`); resp.StatusCode < 400 {
		t.Errorf("invalid level status = %d", resp.StatusCode)
	}
}

type fakePipeline struct {
	info process.Info
}

func (f *fakePipeline) Description() string { return "videotestsrc ! x264enc name=enc0 ! rtph264pay name=pay0" }
func (f *fakePipeline) Command() []string {
	if f.info.State != process.StateRunning {
		return nil
	}
	return []string{"gst-launch-1.0", "-e", "videotestsrc ! x264enc name=enc0 bitrate=2000 ! rtph264pay name=pay0"}
}
func (f *fakePipeline) ProcessStatus() process.Info { return f.info }

func TestPipelineStatus(t *testing.T) {
	tests := []struct {
		name      string
		info      process.Info
		wantState string
		wantCmd   int
		wantErr   string
		wantStart bool
	}{
		{
			name:      "idle",
			info:      process.Info{State: process.StateIdle},
			wantState: "idle",
		},
		{
			name:      "running",
			info:      process.Info{State: process.StateRunning, StartedAt: time.Now(), Restarts: 2},
			wantState: "running",
			wantCmd:   3,
			wantStart: true,
		},
		{
			name: "crashed",
			info: process.Info{
				State:     process.StateError,
				StartedAt: time.Now(),
				LastExit:  1,
				LastError: errors.New("exit status 1: no element \"x264enc\""),
			},
			wantState: "error",
			wantErr:   `exit status 1: no element "x264enc"`,
			wantStart: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, &Options{Pipeline: &fakePipeline{info: tt.info}})

			var got models.PipelineData
			getJSON(t, ts.URL+"/api/pipeline", &got)
			if got.State != tt.wantState || len(got.Command) != tt.wantCmd || got.LastError != tt.wantErr {
				t.Errorf("got %+v", got)
			}
			if (got.StartedAt != nil) != tt.wantStart {
				t.Errorf("started_at = %v, want set %v", got.StartedAt, tt.wantStart)
			}
			if got.Restarts != tt.info.Restarts || got.LastExit != tt.info.LastExit {
				t.Errorf("restarts = %d, last exit = %d", got.Restarts, got.LastExit)
			}
		})
	}
}

func TestOptionalRoutesAbsent(t *testing.T) {
	ts := newTestServer(t, &Options{})

	for _, path := range []string{"/api/leds", "/api/pipeline", "/api/logging", "/no/such/route"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s status = %d, want 404", path, resp.StatusCode)
		}
	}
}

func TestSSEStream(t *testing.T) {
	bus := events.New()
	ts := newTestServer(t, &Options{EventBus: bus})

	resp, err := http.Get(ts.URL + "/api/events")
	if err != nil {
		t.Fatalf("Failed to connect to SSE: %v", err)
	}
	defer resp.Body.Close()

	if !strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		t.Fatalf("Expected SSE content type, got %s", resp.Header.Get("Content-Type"))
	}

	lines := make(chan string, 32)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	waitFor := func(prefix string) string {
		t.Helper()
		timeout := time.After(2 * time.Second)
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					t.Fatalf("stream closed waiting for %q", prefix)
				}
				if strings.HasPrefix(line, prefix) {
					return line
				}
			case <-timeout:
				t.Fatalf("timeout waiting for %q", prefix)
			}
		}
	}

	// Initial state
	waitFor("event: pipeline-state-changed")
	if data := waitFor("data:"); !strings.Contains(data, `"active":true`) {
		t.Errorf("initial state = %s", data)
	}

	// Give the handler time to subscribe before publishing.
	time.Sleep(50 * time.Millisecond)
	bus.Publish(events.QualityChangedEvent{Clients: 3, Mode: "bitrate", From: 7501, To: 5002})

	waitFor("event: quality-changed")
	if data := waitFor("data:"); !strings.Contains(data, `"to":5002`) {
		t.Errorf("quality event = %s", data)
	}
}
