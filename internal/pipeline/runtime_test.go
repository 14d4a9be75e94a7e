package pipeline

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Gateworks/gst-gateworks-apps/internal/process"
)

// fakeSupervisor records calls and the command rendered at each start.
type fakeSupervisor struct {
	mu       sync.Mutex
	provider func() ([]string, error)
	calls    []string
	commands [][]string
	running  bool
}

func (p *fakeSupervisor) record(call string) {
	p.calls = append(p.calls, call)
}

func (p *fakeSupervisor) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("start")
	argv, err := p.provider()
	if err != nil {
		return err
	}
	p.commands = append(p.commands, argv)
	p.running = true
	return nil
}

func (p *fakeSupervisor) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("stop")
	p.running = false
	return nil
}

func (p *fakeSupervisor) Restart() error {
	p.mu.Lock()
	p.record("restart")
	p.mu.Unlock()
	if err := p.Stop(); err != nil {
		return err
	}
	return p.Start()
}

func (p *fakeSupervisor) Status() process.Info {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return process.Info{State: process.StateRunning}
	}
	return process.Info{State: process.StateIdle}
}

func (p *fakeSupervisor) Close() {}

func (p *fakeSupervisor) snapshot() ([]string, [][]string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...), append([][]string(nil), p.commands...)
}

func newTestRuntime(t *testing.T, desc string) (*Runtime, *fakeSupervisor) {
	t.Helper()
	child := &fakeSupervisor{}
	r, err := NewRuntime(RuntimeOptions{
		Description: desc,
		Sink:        "udpsink host=127.0.0.1 port=5004",
		Debounce:    20 * time.Millisecond,
		RetryDelay:  20 * time.Millisecond,
		Supervisor:  child,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	child.provider = r.command
	t.Cleanup(r.Close)
	return r, child
}

// waitForCalls polls until the child has seen n calls.
func waitForCalls(t *testing.T, child *fakeSupervisor, n int) []string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if calls, _ := child.snapshot(); len(calls) >= n {
			return calls
		}
		time.Sleep(5 * time.Millisecond)
	}
	calls, _ := child.snapshot()
	t.Fatalf("timed out waiting for %d child calls, got %v", n, calls)
	return nil
}

func TestNewRuntimeRejectsBadDescription(t *testing.T) {
	if _, err := NewRuntime(RuntimeOptions{Description: "", Supervisor: &fakeSupervisor{}}); err == nil {
		t.Error("expected error for empty description")
	}
}

func TestConstructRunsHooksBeforeStart(t *testing.T) {
	r, child := newTestRuntime(t, "videotestsrc name=source0 ! x264enc name=enc0 ! rtph264pay name=pay0 pt=96")

	var hookState State
	hookCalls := 0
	r.OnPipelineReady(func(p Pipeline) {
		hookCalls++
		hookState = p.State()
		enc, _ := p.ElementByName("enc0")
		_ = enc.SetProperty("bitrate", 2500)
	})

	p, err := r.Construct()
	if err != nil {
		t.Fatalf("Construct: %v", err)
	}
	if hookCalls != 1 || hookState != StateInert {
		t.Errorf("hook calls=%d state=%s, want 1 inert", hookCalls, hookState)
	}
	if p.State() != StateRunning {
		t.Errorf("State() = %s, want running", p.State())
	}

	waitForCalls(t, child, 1)
	_, commands := child.snapshot()
	argv := commands[0]
	if argv[0] != "gst-launch-1.0" || argv[1] != "-e" {
		t.Errorf("launcher = %v", argv[:2])
	}
	desc := argv[len(argv)-1]
	if !strings.Contains(desc, "x264enc name=enc0 bitrate=2500") {
		t.Errorf("command %q lacks configured bitrate", desc)
	}
	if !strings.HasSuffix(desc, "! udpsink host=127.0.0.1 port=5004") {
		t.Errorf("command %q lacks sink", desc)
	}
}

func TestConstructReleasedByHook(t *testing.T) {
	r, child := newTestRuntime(t, "videotestsrc ! fakesink")
	r.OnPipelineReady(func(p Pipeline) { p.Release() })

	if _, err := r.Construct(); !errors.Is(err, ErrReleased) {
		t.Fatalf("Construct error = %v, want ErrReleased", err)
	}

	time.Sleep(30 * time.Millisecond)
	if calls, _ := child.snapshot(); len(calls) != 0 {
		t.Errorf("child calls = %v, want none", calls)
	}
}

func TestPropertyWritesAreDebounced(t *testing.T) {
	r, child := newTestRuntime(t, "videotestsrc ! x264enc name=enc0 ! rtph264pay name=pay0")

	p, err := r.Construct()
	if err != nil {
		t.Fatal(err)
	}
	waitForCalls(t, child, 1)

	enc, _ := p.ElementByName("enc0")
	for _, v := range []int{9000, 8000, 7000} {
		if err := enc.SetProperty("bitrate", v); err != nil {
			t.Fatal(err)
		}
	}

	waitForCalls(t, child, 4)
	time.Sleep(60 * time.Millisecond)
	calls, commands := child.snapshot()

	want := []string{"start", "restart", "stop", "start"}
	if strings.Join(calls, ",") != strings.Join(want, ",") {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	last := commands[len(commands)-1]
	if !strings.Contains(last[len(last)-1], "bitrate=7000") {
		t.Errorf("relaunched with %q, want bitrate=7000", last[len(last)-1])
	}
}

func TestTeardownStopsAndDropsPendingRelaunch(t *testing.T) {
	r, child := newTestRuntime(t, "videotestsrc ! x264enc name=enc0 ! rtph264pay name=pay0")

	p, err := r.Construct()
	if err != nil {
		t.Fatal(err)
	}
	waitForCalls(t, child, 1)

	enc, _ := p.ElementByName("enc0")
	_ = enc.SetProperty("bitrate", 100)
	if err := p.SetState(StateInert); err != nil {
		t.Fatal(err)
	}
	p.Release()

	waitForCalls(t, child, 2)
	time.Sleep(60 * time.Millisecond)

	calls, _ := child.snapshot()
	if strings.Join(calls, ",") != "start,stop" {
		t.Errorf("calls = %v, want [start stop]", calls)
	}
	if r.Command() != nil {
		t.Errorf("Command() = %v after teardown, want nil", r.Command())
	}
}

func TestSetDescriptionAppliesToNextPipeline(t *testing.T) {
	r, child := newTestRuntime(t, "videotestsrc ! x264enc name=enc0 ! rtph264pay name=pay0")

	if err := r.SetDescription("broken ! ! pipe"); err == nil {
		t.Error("expected error for invalid description")
	}
	if err := r.SetDescription("v4l2src ! x264enc name=enc0 ! rtph264pay name=pay0"); err != nil {
		t.Fatal(err)
	}

	if _, err := r.Construct(); err != nil {
		t.Fatal(err)
	}
	waitForCalls(t, child, 1)
	_, commands := child.snapshot()
	if desc := commands[0][len(commands[0])-1]; !strings.HasPrefix(desc, "v4l2src ") {
		t.Errorf("started %q, want new description", desc)
	}
}

func TestConstructAfterClose(t *testing.T) {
	r, _ := newTestRuntime(t, "videotestsrc ! fakesink")
	r.Close()

	if _, err := r.Construct(); err == nil {
		t.Error("expected error after Close")
	}
}

func TestCrashedProcessIsRelaunched(t *testing.T) {
	var (
		mu     sync.Mutex
		states []process.State
	)
	child := &fakeSupervisor{}
	r, err := NewRuntime(RuntimeOptions{
		Description: "videotestsrc ! x264enc name=enc0 ! rtph264pay name=pay0",
		RetryDelay:  20 * time.Millisecond,
		Supervisor:  child,
		OnProcessState: func(state process.State, _ error) {
			mu.Lock()
			states = append(states, state)
			mu.Unlock()
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatal(err)
	}
	child.provider = r.command
	t.Cleanup(r.Close)

	if _, err := r.Construct(); err != nil {
		t.Fatal(err)
	}
	waitForCalls(t, child, 1)
	if got := r.ProcessStatus().State; got != process.StateRunning {
		t.Errorf("ProcessStatus().State = %s, want running", got)
	}

	r.onProcessState(process.StateRunning, process.StateError, errors.New("exit status 1"))
	calls := waitForCalls(t, child, 2)
	if calls[1] != "restart" {
		t.Errorf("calls = %v, want a restart after the crash", calls)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(states) != 1 || states[0] != process.StateError {
		t.Errorf("reported states = %v", states)
	}
}

func TestCrashWithoutPipelineIsNotRelaunched(t *testing.T) {
	r, child := newTestRuntime(t, "videotestsrc ! fakesink")

	r.onProcessState(process.StateRunning, process.StateError, errors.New("exit status 1"))
	time.Sleep(60 * time.Millisecond)

	if calls, _ := child.snapshot(); len(calls) != 0 {
		t.Errorf("calls = %v, want none", calls)
	}
}
