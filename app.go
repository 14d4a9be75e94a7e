package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/Gateworks/gst-gateworks-apps/internal/api"
	"github.com/Gateworks/gst-gateworks-apps/internal/capture"
	"github.com/Gateworks/gst-gateworks-apps/internal/config"
	"github.com/Gateworks/gst-gateworks-apps/internal/events"
	"github.com/Gateworks/gst-gateworks-apps/internal/led"
	"github.com/Gateworks/gst-gateworks-apps/internal/logging"
	"github.com/Gateworks/gst-gateworks-apps/internal/metrics/exporters"
	"github.com/Gateworks/gst-gateworks-apps/internal/pipeline"
	"github.com/Gateworks/gst-gateworks-apps/internal/process"
	"github.com/Gateworks/gst-gateworks-apps/internal/quality"
	"github.com/Gateworks/gst-gateworks-apps/internal/session"
	"github.com/Gateworks/gst-gateworks-apps/internal/streaming"
	"github.com/Gateworks/gst-gateworks-apps/internal/systemd"
	"github.com/Gateworks/gst-gateworks-apps/internal/types"
)

// exitError carries the exit status for failures that are not a
// *types.ConfigError.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitCode(err error) int {
	var cfgErr *types.ConfigError
	if errors.As(err, &cfgErr) {
		return cfgErr.ExitCode()
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return types.ExitArgs
}

func exitOn(logger logging.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(exitCode(err))
}

func qualityConfig(opts *Options) quality.Config {
	return quality.Config{
		Mode:       quality.Mode(opts.Mode),
		Policy:     quality.Policy(opts.Policy),
		Steps:      opts.Steps,
		MinBitrate: opts.MinBitrate,
		MaxBitrate: opts.MaxBitrate,
		MinQuant:   opts.MinQuantLvl,
		MaxQuant:   opts.MaxQuantLvl,
	}
}

// clampIntervals raises negative interval options to zero, which disables
// the feature each controls.
func clampIntervals(opts *Options) []quality.Warning {
	var warnings []quality.Warning
	for _, f := range []struct {
		field string
		v     *int
	}{
		{"config-interval", &opts.ConfigInterval},
		{"idr", &opts.IDRInterval},
		{"msg-rate", &opts.MsgRate},
	} {
		if *f.v < 0 {
			warnings = append(warnings, quality.Warning{Field: f.field, Given: *f.v, Used: 0})
			*f.v = 0
		}
	}
	return warnings
}

// streamURL is the address printed at startup.
func streamURL(addr net.Addr, mount string) string {
	host := "127.0.0.1"
	port := ""
	if tcp, ok := addr.(*net.TCPAddr); ok {
		port = strconv.Itoa(tcp.Port)
		if !tcp.IP.IsUnspecified() {
			host = tcp.IP.String()
		}
	}
	return fmt.Sprintf("rtsp://%s%s", net.JoinHostPort(host, port), mount)
}

// logLevels exposes the process-wide logging registry to the API.
type logLevels struct{}

func (logLevels) Levels() map[string]string          { return logging.Levels() }
func (logLevels) SetLevel(module, level string) error { return logging.SetLevel(module, level) }

// app is the running server: one shared pipeline behind an RTSP mount,
// with WebRTC and the HTTP API as extra viewers and observers.
type app struct {
	opts   *Options
	logger logging.Logger

	bus        *events.Bus
	relay      *streaming.Relay
	runtime    *pipeline.Runtime
	controller *session.Controller
	hub        *streaming.Hub
	rtsp       *streaming.Server
	webrtc     *streaming.WebRTCManager
	api        *api.Server
	watcher    *config.Watcher[string]
	leds       *led.Manager
	notifier   *systemd.Notifier

	stopped chan struct{}
}

func newApp(opts *Options) (*app, error) {
	logger := logging.GetLogger("main")
	streamingLogger := logging.GetLogger("streaming")

	qcfg, warnings, err := qualityConfig(opts).Normalize()
	if err != nil {
		return nil, err
	}
	for _, w := range clampIntervals(opts) {
		logger.Warn("Interval option clamped", "field", w.Field, "given", w.Given, "used", w.Used)
	}
	for _, w := range warnings {
		logger.Warn("Quality option clamped", "field", w.Field, "given", w.Given, "used", w.Used)
	}

	description, builtin, err := config.ResolvePipeline(config.PipelineOptions{
		UserPipeline: opts.UserPipeline,
		PipelineFile: opts.PipelineFile,
		SrcElement:   opts.SrcElement,
		CapsFilter:   opts.CapsFilter,
	})
	if err != nil {
		return nil, &types.ConfigError{
			Code:    types.ErrCodeBadElement,
			Field:   "pipeline",
			Message: "could not parse launch description",
			Cause:   err,
		}
	}
	launcher, err := process.SplitCommand(opts.Launcher)
	if err == nil && len(launcher) == 0 {
		err = errors.New("empty launcher")
	}
	if err != nil {
		return nil, &exitError{code: types.ExitArgs, err: fmt.Errorf("launcher %q: %w", opts.Launcher, err)}
	}

	device := ""
	if builtin {
		device = opts.VideoIn
		if dev, probeErr := capture.Probe(device); probeErr != nil {
			logger.Warn("Capture device unavailable", "device", device, "error", probeErr)
		} else {
			logger.Info("Capture device", "device", device, "name", dev.Name, "driver", dev.Driver)
		}
	}

	a := &app{
		opts:     opts,
		logger:   logger,
		bus:      events.New(),
		notifier: systemd.NewNotifier(logging.GetLogger("systemd")),
		stopped:  make(chan struct{}),
	}

	a.relay = streaming.NewRelay("H264", 96, streamingLogger)
	if err := a.relay.Listen("127.0.0.1:0"); err != nil {
		return nil, &exitError{code: types.ExitRTSP, err: fmt.Errorf("open RTP relay: %w", err)}
	}

	a.runtime, err = pipeline.NewRuntime(pipeline.RuntimeOptions{
		Description:    description,
		Launcher:       launcher,
		Sink:           a.relay.Sink(),
		Stats:          a.relay.Stats,
		OnProcessState: a.publishProcessState,
		Logger:         logging.GetLogger("pipeline"),
	})
	if err != nil {
		_ = a.relay.Close()
		return nil, err
	}

	a.controller = session.NewController(a.runtime, session.Options{
		Quality:        qcfg,
		Device:         device,
		IDRInterval:    opts.IDRInterval,
		ConfigInterval: opts.ConfigInterval,
		ReportInterval: time.Duration(opts.MsgRate) * time.Second,
		Events:         a.bus,
		Logger:         logging.GetLogger("session"),
	})

	// Initialize streaming server (RTSP + WebRTC)
	a.hub = streaming.NewHub(a.relay, a.controller, opts.MountPoint, streamingLogger)
	a.rtsp = streaming.NewServer(a.hub, streamingLogger)
	a.webrtc = streaming.NewWebRTCManager(a.hub, streaming.WebRTCConfig{}, streamingLogger)

	var ledController led.Controller
	if opts.FeaturesLEDControl {
		logger.Info("LED control enabled, initializing")
		ledController = led.New(logger)
		a.leds = led.NewManager(ledController, a.bus, led.DefaultLED, logger)
	}

	if opts.HTTPAddr != "" {
		a.api = api.NewServer(&api.Options{
			Controller:        a.controller,
			Pipeline:          a.runtime,
			LogLevels:         logLevels{},
			EventBus:          a.bus,
			LEDController:     ledController,
			PrometheusHandler: exporters.HTTPHandler(),
			RegisterRoutes: func(humaAPI huma.API) {
				streaming.RegisterWebRTCAPI(humaAPI, a.webrtc)
			},
		})
	}

	if opts.PipelineFile != "" && opts.UserPipeline == "" {
		a.watcher = config.NewConfigWatcher(opts.PipelineFile, config.LoadPipelineFile, logger,
			config.WithErrorHandler[string](func(watchErr error) {
				logger.Warn("Ignoring pipeline file change", "error", watchErr)
			}),
		)
		a.watcher.OnReload(a.reloadDescription)
	}

	return a, nil
}

func (a *app) publishProcessState(state process.State, err error) {
	ev := events.PipelineProcessEvent{
		State:     string(state),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	a.bus.Publish(ev)
}

func (a *app) reloadDescription(desc string) {
	if err := a.runtime.SetDescription(desc); err != nil {
		a.logger.Warn("Rejected pipeline description", "error", err)
		return
	}
	a.logger.Info("Pipeline description reloaded", "description", desc)
}

// serve starts every listener and blocks until shutdown.
func (a *app) serve() error {
	if err := a.rtsp.Start(fmt.Sprintf(":%d", a.opts.Port)); err != nil {
		return &exitError{code: types.ExitRTSP, err: fmt.Errorf("start RTSP server: %w", err)}
	}

	url := streamURL(a.rtsp.Addr(), a.hub.Mount())
	fmt.Printf("Stream ready at %s\n", url)
	a.logger.Info("Serving stream", "url", url, "description", a.runtime.Description())

	if a.leds != nil {
		a.leds.Start()
	}
	if a.watcher != nil {
		if err := a.watcher.Start(); err != nil {
			a.logger.Warn("Pipeline file watcher disabled", "error", err)
		}
	}

	a.notifier.Start(a.bus)
	a.notifier.Ready(url)

	if a.api == nil {
		<-a.stopped
		return nil
	}

	a.logger.Info("Starting HTTP server", "addr", a.opts.HTTPAddr)
	if err := a.api.Start(a.opts.HTTPAddr); err != nil {
		return &exitError{code: types.ExitRTSP, err: fmt.Errorf("start HTTP server: %w", err)}
	}
	return nil
}

// shutdown stops the listeners, releases every viewer, then tears the
// pipeline down.
func (a *app) shutdown() {
	a.logger.Info("Shutting down server")
	a.notifier.Stop()

	if a.api != nil {
		if err := a.api.Stop(); err != nil {
			a.logger.Error("Error stopping HTTP server", "error", err)
		}
	}
	if a.watcher != nil {
		if err := a.watcher.Stop(); err != nil {
			a.logger.Error("Error stopping pipeline watcher", "error", err)
		}
	}

	a.webrtc.Stop()
	if err := a.rtsp.Stop(); err != nil {
		a.logger.Error("Error stopping RTSP server", "error", err)
	}

	a.controller.Close()
	a.runtime.Close()
	if err := a.relay.Close(); err != nil {
		a.logger.Error("Error closing RTP relay", "error", err)
	}

	if a.leds != nil {
		a.leds.Stop()
	}
	close(a.stopped)
}
