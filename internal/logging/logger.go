package logging

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// Logger is the logging surface the rest of the server depends on.
// *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config selects the output format and the level of each module. Modules
// without an entry use Level.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

type registry struct {
	mu      sync.Mutex
	cfg     Config
	levels  map[string]*slog.LevelVar
	loggers map[string]*slog.Logger
	build   func(format string) slog.Handler

	// sink is shared by every module handler; Initialize swaps it.
	sink atomic.Pointer[slog.Handler]
}

var std = newRegistry(newSink)

func newRegistry(build func(format string) slog.Handler) *registry {
	r := &registry{
		cfg:     Config{Level: "info", Format: "text"},
		levels:  make(map[string]*slog.LevelVar),
		loggers: make(map[string]*slog.Logger),
		build:   build,
	}
	r.setSink(build("text"))
	return r
}

func (r *registry) setSink(h slog.Handler) {
	r.sink.Store(&h)
}

func (r *registry) current() slog.Handler {
	return *r.sink.Load()
}

// levelFor resolves a module level from the config. Callers hold mu.
func (r *registry) levelFor(module string) slog.Level {
	if name, ok := r.cfg.Modules[module]; ok {
		if level, err := ParseLevel(name); err == nil {
			return level
		}
	}
	if level, err := ParseLevel(r.cfg.Level); err == nil {
		return level
	}
	return slog.LevelInfo
}

func (r *registry) initialize(cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cfg = cfg
	r.setSink(r.build(cfg.Format))
	for module, level := range r.levels {
		level.Set(r.levelFor(module))
	}

	global := &slog.LevelVar{}
	global.Set(r.levelFor(""))
	slog.SetDefault(slog.New(&moduleHandler{reg: r, level: global}))
}

func (r *registry) logger(module string) *slog.Logger {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.loggers[module]; ok {
		return l
	}
	level := &slog.LevelVar{}
	level.Set(r.levelFor(module))
	l := slog.New(&moduleHandler{reg: r, level: level}).With("module", module)
	r.levels[module] = level
	r.loggers[module] = l
	return l
}

// Initialize applies cfg to every module logger, including ones handed
// out before the call, and installs the slog default logger.
func Initialize(cfg Config) {
	std.initialize(cfg)
}

// GetLogger returns the logger for module, creating it on first use.
func GetLogger(module string) *slog.Logger {
	return std.logger(module)
}

// SetLevel changes one module's level at runtime.
func SetLevel(module, name string) error {
	return std.setLevel(module, name)
}

// Levels reports the effective level of every module logger in use.
func Levels() map[string]string {
	return std.snapshot()
}

func (r *registry) setLevel(module, name string) error {
	level, err := ParseLevel(name)
	if err != nil {
		return err
	}
	r.logger(module)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.levels[module].Set(level)
	modules := maps.Clone(r.cfg.Modules)
	if modules == nil {
		modules = make(map[string]string)
	}
	modules[module] = strings.ToLower(level.String())
	r.cfg.Modules = modules
	return nil
}

func (r *registry) snapshot() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]string, len(r.levels))
	for module, level := range r.levels {
		out[module] = strings.ToLower(level.Level().String())
	}
	return out
}

// ParseLevel accepts debug, info, warn (or warning) and error.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
}

// moduleHandler gates records on its module's level and hands them to the
// registry's current sink. Attributes and groups are replayed onto the
// sink per record so a later Initialize reaches existing loggers.
type moduleHandler struct {
	reg   *registry
	level slog.Leveler
	ops   []func(slog.Handler) slog.Handler
}

func (h *moduleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *moduleHandler) Handle(ctx context.Context, rec slog.Record) error {
	out := h.reg.current()
	for _, op := range h.ops {
		out = op(out)
	}
	return out.Handle(ctx, rec)
}

func (h *moduleHandler) with(op func(slog.Handler) slog.Handler) *moduleHandler {
	ops := make([]func(slog.Handler) slog.Handler, len(h.ops), len(h.ops)+1)
	copy(ops, h.ops)
	return &moduleHandler{reg: h.reg, level: h.level, ops: append(ops, op)}
}

func (h *moduleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.with(func(s slog.Handler) slog.Handler { return s.WithAttrs(attrs) })
}

func (h *moduleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return h.with(func(s slog.Handler) slog.Handler { return s.WithGroup(name) })
}

// newSink writes to stdout and, under systemd, to the journal. Levels are
// enforced upstream by moduleHandler.
func newSink(format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: slog.LevelDebug}
	var console slog.Handler
	if format == "json" {
		console = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		console = slog.NewTextHandler(os.Stdout, opts)
	}

	var sinks []slog.Handler
	if stdoutConnected() {
		sinks = append(sinks, console)
	}
	if JournalAvailable() {
		sinks = append(sinks, NewJournalHandler(slog.LevelDebug))
	}
	switch len(sinks) {
	case 0:
		return console
	case 1:
		return sinks[0]
	}
	return fanout(sinks)
}

// stdoutConnected is false when stdout is /dev/null, as under systemd with
// StandardOutput=null.
func stdoutConnected() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return mode&(os.ModeCharDevice|os.ModeNamedPipe|os.ModeSocket) != 0 || mode.IsRegular()
}

// fanout hands every record to each of its handlers.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, rec slog.Record) error {
	var first error
	for _, h := range f {
		if !h.Enabled(ctx, rec.Level) {
			continue
		}
		if err := h.Handle(ctx, rec.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
