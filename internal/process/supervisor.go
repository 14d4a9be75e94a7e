package process

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Gateworks/gst-gateworks-apps/internal/logging"
)

var (
	ErrRunning = errors.New("process already running")
	ErrClosed  = errors.New("supervisor closed")
)

// Supervisor owns at most one child at a time.
type Supervisor interface {
	// Start launches the child with a freshly built command.
	Start() error
	// Stop interrupts the child and waits for it.
	Stop() error
	// Restart stops the child and starts it with a rebuilt command.
	Restart() error
	Status() Info
	// Close stops the child and refuses further starts.
	Close()
}

// SupervisorOptions configures NewSupervisor.
type SupervisorOptions struct {
	// Command builds the argument vector. It runs on every start (required).
	Command func() ([]string, error)

	// OnStateChange observes every transition (optional).
	OnStateChange func(from, to State, err error)

	// Output receives the child's output lines, leveled by Parser.
	// Defaults to Logger.
	Output logging.Logger
	Parser LogParser

	// StopTimeout bounds how long Stop waits. Default 10s.
	StopTimeout time.Duration

	Logger logging.Logger
}

type child struct {
	proc        *Process
	done        chan struct{}
	interrupted bool
}

type supervisor struct {
	opts   SupervisorOptions
	logger logging.Logger

	mu      sync.Mutex
	current *child
	info    Info
	closed  bool
	wg      sync.WaitGroup
}

// NewSupervisor returns an idle supervisor.
func NewSupervisor(opts SupervisorOptions) Supervisor {
	if opts.Command == nil {
		panic("process: SupervisorOptions.Command is required")
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Output == nil {
		opts.Output = opts.Logger
	}
	return &supervisor{
		opts:   opts,
		logger: opts.Logger,
		info:   Info{State: StateIdle},
	}
}

func (s *supervisor) Start() error {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return ErrClosed
	case s.current != nil:
		s.mu.Unlock()
		return ErrRunning
	}

	argv, err := s.opts.Command()
	if err == nil && len(argv) == 0 {
		err = errors.New("empty command")
	}
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("build command: %w", err)
	}

	proc := New(argv, s.logger)
	proc.SetOutput(s.opts.Output, s.opts.Parser)
	c := &child{proc: proc, done: make(chan struct{})}
	s.current = c
	s.info.Command = argv
	s.info.StartedAt = time.Now()
	s.info.LastError = nil
	from := s.setLocked(StateStarting)
	s.mu.Unlock()

	s.notify(from, StateStarting, nil)

	s.wg.Add(1)
	go s.supervise(c)
	return nil
}

func (s *supervisor) supervise(c *child) {
	defer s.wg.Done()
	defer close(c.done)

	s.mu.Lock()
	running := s.info.State == StateStarting
	if running {
		s.setLocked(StateRunning)
	}
	s.mu.Unlock()
	if running {
		s.notify(StateStarting, StateRunning, nil)
	}

	exit := c.proc.Run()

	s.mu.Lock()
	s.current = nil
	s.info.LastExit = exit.Code
	to := StateIdle
	var err error
	if !c.interrupted && exit.Code != 0 {
		to = StateError
		err = exit.Err()
		s.info.LastError = err
	}
	from := s.setLocked(to)
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("Process crashed", "exit_code", exit.Code, "reason", exit.Reason)
	}
	s.notify(from, to, err)
}

func (s *supervisor) Stop() error {
	s.mu.Lock()
	c := s.current
	if c == nil {
		s.mu.Unlock()
		return nil
	}
	c.interrupted = true
	from := s.setLocked(StateStopping)
	s.mu.Unlock()

	s.notify(from, StateStopping, nil)
	c.proc.Interrupt()

	select {
	case <-c.done:
		return nil
	case <-time.After(s.opts.StopTimeout):
		return fmt.Errorf("process did not exit within %s", s.opts.StopTimeout)
	}
}

func (s *supervisor) Restart() error {
	if err := s.Stop(); err != nil {
		return err
	}
	s.mu.Lock()
	s.info.Restarts++
	s.mu.Unlock()
	return s.Start()
}

func (s *supervisor) Status() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := s.info
	info.Command = append([]string(nil), s.info.Command...)
	return info
}

func (s *supervisor) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	if err := s.Stop(); err != nil {
		s.logger.Warn("Process outlived shutdown", "error", err)
	}
	s.wg.Wait()
}

func (s *supervisor) setLocked(to State) State {
	from := s.info.State
	s.info.State = to
	return from
}

func (s *supervisor) notify(from, to State, err error) {
	if s.opts.OnStateChange != nil {
		s.opts.OnStateChange(from, to, err)
	}
}
