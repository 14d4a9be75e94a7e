package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Gateworks/gst-gateworks-apps/internal/logging"
	"github.com/Gateworks/gst-gateworks-apps/internal/process"
)

// DefaultLauncher runs descriptions with end-of-stream on SIGINT.
var DefaultLauncher = []string{"gst-launch-1.0", "-e"}

// RuntimeOptions configures a Runtime.
type RuntimeOptions struct {
	// Description is the launch description of the shared pipeline (required).
	Description string

	// Launcher is the command prefix. Default: gst-launch-1.0 -e.
	Launcher []string

	// Sink is appended to the description when the process starts, e.g.
	// "udpsink host=127.0.0.1 port=5004". Empty leaves the description as is.
	Sink string

	// Debounce coalesces property writes on a running pipeline into one
	// relaunch. Default 500ms.
	Debounce time.Duration

	// RetryDelay is the wait before relaunching a crashed process. Default 2s.
	RetryDelay time.Duration

	// Stats provides the packetizer "stats" structure.
	Stats func() *Structure

	// OnProcessState is called on subprocess state transitions (optional).
	OnProcessState func(state process.State, err error)

	// Supervisor overrides the gst-launch supervisor (tests).
	Supervisor process.Supervisor

	Logger logging.Logger
}

type opKind int

const (
	opStart opKind = iota
	opStop
	opRestart
)

type op struct {
	kind  opKind
	graph *Graph
}

// Runtime is the pipeline Factory backed by a gst-launch subprocess. Graph
// state changes are queued to a single worker so process starts and stops
// never overlap and never block the caller.
type Runtime struct {
	opts   RuntimeOptions
	logger logging.Logger
	child  process.Supervisor

	mu          sync.Mutex
	description string
	hooks       []func(Pipeline)
	current     *Graph
	debounce    *time.Timer
	retry       *time.Timer
	queue       []op
	closed      bool

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

// NewRuntime validates the description and starts the runtime worker.
func NewRuntime(opts RuntimeOptions) (*Runtime, error) {
	if _, err := Parse(opts.Description); err != nil {
		return nil, fmt.Errorf("invalid pipeline: %w", err)
	}
	if len(opts.Launcher) == 0 {
		opts.Launcher = DefaultLauncher
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 2 * time.Second
	}

	var logger logging.Logger = slog.Default()
	if opts.Logger != nil {
		logger = opts.Logger
	}

	r := &Runtime{
		opts:        opts,
		logger:      logger,
		description: opts.Description,
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
	}

	r.child = opts.Supervisor
	if r.child == nil {
		r.child = process.NewSupervisor(process.SupervisorOptions{
			Command:       r.command,
			OnStateChange: r.onProcessState,
			Output:        logging.GetLogger("gst"),
			Parser:        ParseLogLevel,
			Logger:        logger,
		})
	}

	r.wg.Add(1)
	go r.run()

	return r, nil
}

// OnPipelineReady registers a hook run synchronously inside Construct.
func (r *Runtime) OnPipelineReady(hook func(Pipeline)) {
	r.mu.Lock()
	r.hooks = append(r.hooks, hook)
	r.mu.Unlock()
}

// Construct parses the current description, runs the ready hooks on the
// inert graph and sets it running. If a hook releases the graph, Construct
// returns ErrReleased and nothing is started.
func (r *Runtime) Construct() (Pipeline, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, errors.New("runtime closed")
	}
	desc := r.description
	hooks := append([]func(Pipeline){}, r.hooks...)
	r.mu.Unlock()

	g, err := Parse(desc)
	if err != nil {
		return nil, err
	}
	if r.opts.Stats != nil {
		g.SetStatsSource(r.opts.Stats)
	}

	for _, hook := range hooks {
		hook(g)
	}
	if g.Released() {
		return nil, ErrReleased
	}

	r.mu.Lock()
	r.current = g
	r.mu.Unlock()

	g.setDriver(r)
	if err := g.SetState(StateRunning); err != nil {
		return nil, err
	}
	return g, nil
}

// SetDescription replaces the description used for the next constructed
// pipeline. A running pipeline is left alone.
func (r *Runtime) SetDescription(description string) error {
	if _, err := Parse(description); err != nil {
		return fmt.Errorf("invalid pipeline: %w", err)
	}
	r.mu.Lock()
	r.description = description
	active := r.current != nil
	r.mu.Unlock()

	if active {
		r.logger.Info("Pipeline description updated, applies to next session")
	} else {
		r.logger.Info("Pipeline description updated")
	}
	return nil
}

// Description returns the configured description.
func (r *Runtime) Description() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.description
}

// Command returns the argument vector of the current pipeline, or nil.
func (r *Runtime) Command() []string {
	argv, err := r.command()
	if err != nil {
		return nil
	}
	return argv
}

// ProcessStatus returns the gst-launch child's status.
func (r *Runtime) ProcessStatus() process.Info {
	return r.child.Status()
}

// Close stops the worker and the subprocess.
func (r *Runtime) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.stopTimersLocked()
	r.mu.Unlock()

	close(r.done)
	r.wg.Wait()
	r.child.Close()
}

func (r *Runtime) command() ([]string, error) {
	r.mu.Lock()
	g := r.current
	r.mu.Unlock()
	if g == nil {
		return nil, errors.New("no pipeline constructed")
	}

	desc := g.Render()
	if r.opts.Sink != "" {
		desc += " ! " + r.opts.Sink
	}
	return append(append([]string{}, r.opts.Launcher...), desc), nil
}

func (r *Runtime) start(g *Graph) error {
	r.enqueue(op{kind: opStart, graph: g})
	return nil
}

func (r *Runtime) stop(g *Graph) {
	r.mu.Lock()
	if r.current == g {
		r.current = nil
	}
	r.stopTimersLocked()
	r.mu.Unlock()

	r.enqueue(op{kind: opStop, graph: g})
}

func (r *Runtime) changed(g *Graph) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.current != g {
		return
	}
	if r.debounce != nil {
		r.debounce.Stop()
	}
	r.debounce = time.AfterFunc(r.opts.Debounce, func() {
		r.enqueue(op{kind: opRestart, graph: g})
	})
}

func (r *Runtime) onProcessState(_, newState process.State, err error) {
	if r.opts.OnProcessState != nil {
		r.opts.OnProcessState(newState, err)
	}
	if newState != process.StateError {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	g := r.current
	if r.closed || g == nil {
		return
	}
	r.logger.Warn("Pipeline process failed, relaunching", "delay", r.opts.RetryDelay, "error", err)
	if r.retry != nil {
		r.retry.Stop()
	}
	r.retry = time.AfterFunc(r.opts.RetryDelay, func() {
		r.enqueue(op{kind: opRestart, graph: g})
	})
}

func (r *Runtime) stopTimersLocked() {
	if r.debounce != nil {
		r.debounce.Stop()
		r.debounce = nil
	}
	if r.retry != nil {
		r.retry.Stop()
		r.retry = nil
	}
}

func (r *Runtime) enqueue(o op) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.queue = append(r.queue, o)
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Runtime) run() {
	defer r.wg.Done()
	for {
		select {
		case <-r.done:
			return
		case <-r.wake:
		}

		for {
			r.mu.Lock()
			if len(r.queue) == 0 {
				r.mu.Unlock()
				break
			}
			o := r.queue[0]
			r.queue = r.queue[1:]
			current := r.current
			r.mu.Unlock()

			r.handle(o, current)
		}
	}
}

func (r *Runtime) handle(o op, current *Graph) {
	switch o.kind {
	case opStart:
		if o.graph != current {
			return
		}
		if err := r.child.Start(); err != nil {
			r.logger.Error("Failed to start pipeline", "error", err)
		}
	case opStop:
		if err := r.child.Stop(); err != nil {
			r.logger.Error("Failed to stop pipeline", "error", err)
		}
	case opRestart:
		if o.graph != current || o.graph.State() != StateRunning {
			return
		}
		if err := r.child.Restart(); err != nil {
			r.logger.Error("Failed to relaunch pipeline", "error", err)
		}
	}
}
