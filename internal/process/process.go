package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/Gateworks/gst-gateworks-apps/internal/logging"
)

// LogParser maps one output line to a level ("error", "warning", "info",
// "debug") and the message to log. An empty message drops the line.
type LogParser func(line string) (level, msg string)

// Exit describes how a child ended.
type Exit struct {
	Code int
	// Reason is the last line the child logged at error level.
	Reason string
}

// Err returns nil for a clean exit.
func (e Exit) Err() error {
	if e.Code == 0 {
		return nil
	}
	if e.Reason != "" {
		return fmt.Errorf("exit status %d: %s", e.Code, e.Reason)
	}
	return fmt.Errorf("exit status %d", e.Code)
}

// Process runs one child to completion. Interrupt asks it to stop with
// SIGINT; a child still alive after the grace period is killed.
type Process struct {
	argv   []string
	logger logging.Logger
	output logging.Logger
	parse  LogParser
	grace  time.Duration

	ctx       context.Context
	interrupt context.CancelFunc

	mu     sync.Mutex
	reason string
}

// New prepares a child for argv. Nothing runs until Run.
func New(argv []string, logger logging.Logger) *Process {
	ctx, cancel := context.WithCancel(context.Background())
	return &Process{
		argv:      append([]string(nil), argv...),
		logger:    logger,
		output:    logger,
		grace:     5 * time.Second,
		ctx:       ctx,
		interrupt: cancel,
	}
}

// Args returns a copy of the argument vector.
func (p *Process) Args() []string {
	return append([]string(nil), p.argv...)
}

// SetOutput routes the child's stdout and stderr to logger, leveled by parse.
func (p *Process) SetOutput(logger logging.Logger, parse LogParser) {
	p.output = logger
	p.parse = parse
}

// Interrupt stops the child, or keeps Run from starting it.
func (p *Process) Interrupt() {
	p.interrupt()
}

// Run starts the child and blocks until it exits. A child that cannot be
// started exits with code 1; one killed after the grace period with 137.
func (p *Process) Run() Exit {
	if len(p.argv) == 0 {
		p.logger.Error("Empty command")
		return Exit{Code: 1, Reason: "empty command"}
	}
	if p.ctx.Err() != nil {
		return Exit{}
	}

	cmd := exec.CommandContext(p.ctx, p.argv[0], p.argv[1:]...)
	// Own process group: a terminal ^C reaches us, and we end the child with EOS.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		p.logger.Debug("Interrupting process", "pid", cmd.Process.Pid)
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = p.grace

	stdout := &lineWriter{emit: p.line}
	stderr := &lineWriter{emit: p.line}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		p.logger.Error("Failed to start process", "error", err, "command", p.argv[0])
		return Exit{Code: 1, Reason: err.Error()}
	}
	p.logger.Info("Process started", "pid", cmd.Process.Pid, "command", strings.Join(p.argv, " "))

	err := cmd.Wait()
	stdout.flush()
	stderr.flush()

	exit := Exit{Code: exitCode(cmd.ProcessState, err)}
	if exit.Code != 0 {
		p.mu.Lock()
		exit.Reason = p.reason
		p.mu.Unlock()
	}
	if errors.Is(err, exec.ErrWaitDelay) || exit.Code == 137 {
		p.logger.Warn("Process ignored interrupt, killed", "grace", p.grace)
	}
	p.logger.Info("Process exited", "exit_code", exit.Code)
	return exit
}

func exitCode(state *os.ProcessState, err error) int {
	if state == nil {
		if err != nil {
			return 1
		}
		return 0
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return state.ExitCode()
}

func (p *Process) line(line string) {
	level, msg := "info", line
	if p.parse != nil {
		level, msg = p.parse(line)
	}
	if msg == "" {
		return
	}

	switch level {
	case "error":
		p.mu.Lock()
		p.reason = msg
		p.mu.Unlock()
		p.output.Error(msg)
	case "warning":
		p.output.Warn(msg)
	case "debug":
		p.output.Debug(msg)
	default:
		p.output.Info(msg)
	}
}

// lineWriter splits a byte stream into lines. exec serializes writes to
// each writer, so it needs no lock.
type lineWriter struct {
	buf  []byte
	emit func(string)
}

func (w *lineWriter) Write(b []byte) (int, error) {
	w.buf = append(w.buf, b...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(strings.TrimRight(string(w.buf[:i]), "\r"))
		w.buf = w.buf[i+1:]
	}
	return len(b), nil
}

func (w *lineWriter) flush() {
	if len(w.buf) > 0 {
		w.emit(string(w.buf))
		w.buf = nil
	}
}

// SplitCommand splits a command line into arguments. Single and double
// quotes group words and a backslash escapes the next character.
func SplitCommand(command string) ([]string, error) {
	var (
		args  []string
		word  strings.Builder
		quote rune
		open  bool
		esc   bool
	)
	for _, r := range strings.TrimSpace(command) {
		switch {
		case esc:
			word.WriteRune(r)
			esc = false
		case quote != 0 && r == quote:
			quote = 0
		case quote != 0:
			word.WriteRune(r)
		case r == '\\':
			esc, open = true, true
		case r == '"' || r == '\'':
			quote, open = r, true
		case r == ' ' || r == '\t':
			if open {
				args = append(args, word.String())
				word.Reset()
				open = false
			}
		default:
			word.WriteRune(r)
			open = true
		}
	}
	if quote != 0 {
		return nil, errors.New("unclosed quote in command")
	}
	if open {
		args = append(args, word.String())
	}
	return args, nil
}
