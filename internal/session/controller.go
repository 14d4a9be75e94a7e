package session

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/Gateworks/gst-gateworks-apps/internal/encoder"
	"github.com/Gateworks/gst-gateworks-apps/internal/events"
	"github.com/Gateworks/gst-gateworks-apps/internal/logging"
	"github.com/Gateworks/gst-gateworks-apps/internal/metrics"
	"github.com/Gateworks/gst-gateworks-apps/internal/pipeline"
	"github.com/Gateworks/gst-gateworks-apps/internal/quality"
	"github.com/Gateworks/gst-gateworks-apps/internal/types"
)

// ErrClosed is returned by Join after Close.
var ErrClosed = errors.New("session controller closed")

// Publisher receives controller events.
type Publisher interface {
	Publish(ev events.Event)
}

// Options configures a Controller.
type Options struct {
	// Quality is a normalized quality configuration.
	Quality quality.Config

	// Roles are the element names bound at configure time.
	Roles RoleNames

	// Device is written to the source "device" property when set.
	Device string

	// IDRInterval is written to the encoder's IDR interval property.
	IDRInterval int

	// ConfigInterval is written to the packetizer "config-interval" property.
	ConfigInterval int

	// ReportInterval is the telemetry period; 0 disables telemetry.
	ReportInterval time.Duration

	// Exit terminates the process on a fatal wiring error. Default os.Exit.
	Exit func(code int)

	Events Publisher
	Logger logging.Logger
}

// Controller owns the shared stream state: viewer count, the pipeline and
// its bindings, and the current quality. Every callback holds mu for its
// whole duration.
type Controller struct {
	mu      sync.Mutex
	opts    Options
	factory pipeline.Factory
	stepper quality.Stepper
	logger  logging.Logger
	exit    func(int)

	clients       int
	active        bool
	pipeline      pipeline.Pipeline
	bindings      *Bindings
	quality       int
	readyHooked   bool
	reporterArmed bool
	configErr     error
	closed        bool

	sessions    int
	applyErrors int
	lastReport  *Snapshot
	activeSince time.Time

	done chan struct{}
}

// NewController creates the controller. opts.Quality must already be
// normalized.
func NewController(factory pipeline.Factory, opts Options) *Controller {
	if opts.Roles == (RoleNames{}) {
		opts.Roles = DefaultRoleNames()
	}

	var logger logging.Logger = slog.Default()
	if opts.Logger != nil {
		logger = opts.Logger
	}

	exit := opts.Exit
	if exit == nil {
		exit = os.Exit
	}

	stepper := opts.Quality.Stepper()
	metrics.SetStepFactor(stepper.StepFactor())
	metrics.SetQuality(string(stepper.Mode), stepper.Best())

	return &Controller{
		opts:    opts,
		factory: factory,
		stepper: stepper,
		logger:  logger,
		exit:    exit,
		quality: stepper.Best(),
		done:    make(chan struct{}),
	}
}

// Join admits a viewer. The first viewer constructs and configures the
// shared pipeline; later viewers recompute quality. An error means the
// viewer was not admitted.
func (c *Controller) Join() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	c.clients++
	c.publish(events.ViewerCountChangedEvent{Clients: c.clients, Delta: 1, Timestamp: now()})
	metrics.SetViewers(c.clients)
	metrics.IncJoins()

	if c.clients > 1 {
		c.logger.Info("Viewer joined", "clients", c.clients)
		c.recompute()
		return nil
	}

	return c.activate()
}

// activate runs the Idle to Active transition. Must hold mu.
func (c *Controller) activate() error {
	if !c.readyHooked {
		c.factory.OnPipelineReady(c.onPipelineReady)
		c.readyHooked = true
	}

	c.logger.Info("First viewer joined, building pipeline")
	c.configErr = nil

	p, err := c.factory.Construct()
	if err == nil && c.bindings == nil {
		// The factory did not run our ready hook.
		p.Release()
		err = errors.New("pipeline ready hook was not invoked")
	}
	if err != nil {
		if c.configErr != nil {
			err = c.configErr
		}
		c.logger.Error("Failed to build pipeline", "error", err)
		c.reset()
		c.publish(events.ViewerCountChangedEvent{Clients: 0, Delta: -1, Timestamp: now()})
		return fmt.Errorf("build pipeline: %w", err)
	}

	c.pipeline = p
	c.active = true
	c.sessions++
	c.activeSince = time.Now()
	metrics.SetPipelineActive(true)
	c.publish(events.PipelineStateChangedEvent{Active: true, Clients: c.clients, Timestamp: now()})

	c.armReporter()
	return nil
}

// onPipelineReady runs synchronously inside Construct, which Join calls
// with mu held; it must not lock.
func (c *Controller) onPipelineReady(p pipeline.Pipeline) {
	if err := c.configure(p); err != nil {
		c.configErr = err
		p.Release()

		code := types.ExitPipeline
		var cfgErr *types.ConfigError
		if errors.As(err, &cfgErr) {
			code = cfgErr.ExitCode()
		}
		c.logger.Error("Couldn't get pipeline elements", "error", err, "exit_code", code)
		c.exit(code)
	}
}

// configure binds every role, then writes static properties and the
// best-quality target. Nothing is written unless binding succeeds.
func (c *Controller) configure(p pipeline.Pipeline) error {
	b, err := Bind(p, c.opts.Roles)
	if err != nil {
		return err
	}

	c.logger.Info("Configuring pipeline",
		"source", b.Source.Name(),
		"transform", b.Transform.Name(),
		"encoder", b.Encoder.Name(),
		"encoder_kind", b.EncoderKind,
		"packetizer", b.Packetizer.Name())

	if c.opts.Device != "" {
		c.logger.Info("Setting input device", "device", c.opts.Device)
		c.setStatic(b.Source, "device", c.opts.Device)
	}

	if b.EncoderKind == encoder.Unknown {
		c.logger.Warn("Unknown encoder backend, quality will not be adjusted", "type", b.Encoder.TypeName())
	} else if err := encoder.Prepare(b.Encoder, b.EncoderKind, c.stepper.Mode, c.opts.IDRInterval); err != nil {
		c.logger.Warn("Failed to prepare encoder", "error", err)
	}

	c.logger.Info("Setting rtp config-interval", "config_interval", c.opts.ConfigInterval)
	c.setStatic(b.Packetizer, "config-interval", c.opts.ConfigInterval)

	c.bindings = b
	c.quality = c.stepper.Best()
	c.applyTarget(c.quality)
	return nil
}

func (c *Controller) setStatic(el pipeline.Element, key string, value any) {
	if err := el.SetProperty(key, value); err != nil {
		c.logger.Warn("Failed to set property", "element", el.Name(), "property", key, "error", err)
	}
}

// Leave releases a viewer. The last viewer tears the pipeline down.
func (c *Controller) Leave() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.clients == 0 {
		c.logger.Warn("Viewer left with no viewers connected, ignoring")
		return
	}

	c.clients--
	c.publish(events.ViewerCountChangedEvent{Clients: c.clients, Delta: -1, Timestamp: now()})
	metrics.SetViewers(c.clients)
	metrics.IncLeaves()
	c.logger.Info("Viewer left", "clients", c.clients)

	if c.clients == 0 {
		c.teardown()
		return
	}
	c.recompute()
}

// teardown runs the Active to Idle transition. The reporter is not stopped
// here; it sees the inactive state on its next tick. Must hold mu.
func (c *Controller) teardown() {
	c.logger.Info("Last viewer left, releasing pipeline")

	if c.pipeline != nil {
		if err := c.pipeline.SetState(pipeline.StateInert); err != nil {
			c.logger.Warn("Failed to stop pipeline", "error", err)
		}
		c.pipeline.Release()
	}
	c.reset()

	metrics.SetPipelineActive(false)
	c.publish(events.PipelineStateChangedEvent{Active: false, Clients: 0, Timestamp: now()})
}

// reset returns to Idle without touching any pipeline. Must hold mu.
func (c *Controller) reset() {
	c.clients = 0
	c.active = false
	c.pipeline = nil
	c.bindings = nil
	c.quality = c.stepper.Best()
	c.activeSince = time.Time{}
	c.lastReport = nil
	metrics.SetViewers(0)
	metrics.SetQuality(string(c.stepper.Mode), c.quality)
}

// recompute applies the target for the current viewer count. No write
// happens when the target is unchanged. Must hold mu.
func (c *Controller) recompute() {
	if !c.active || c.bindings == nil {
		return
	}

	target, clamped := c.stepper.Target(c.clients)
	if clamped && c.stepper.Policy == quality.PolicyTier {
		c.logger.Warn("Viewer count beyond last quality tier, using worst tier",
			"clients", c.clients, "tiers", quality.MaxTierClients)
	} else if clamped {
		c.logger.Debug("Quality snapped to bound", "clients", c.clients, "value", target)
	}

	if target == c.quality {
		return
	}

	previous := c.quality
	if !c.applyTarget(target) {
		return
	}
	c.quality = target
	metrics.IncQualityChanges()

	c.logger.Info(fmt.Sprintf("Changing %s", c.stepper.Mode),
		"clients", c.clients, "from", previous, "to", target)
	c.publish(events.QualityChangedEvent{
		Clients:   c.clients,
		Mode:      string(c.stepper.Mode),
		From:      previous,
		To:        target,
		Timestamp: now(),
	})
}

// applyTarget writes value through the encoder adapter. Failures are logged
// and the previous quality stays in effect.
func (c *Controller) applyTarget(value int) bool {
	target := encoder.Target{Mode: c.stepper.Mode, Value: value}
	if err := encoder.Apply(c.bindings.Encoder, c.bindings.EncoderKind, target); err != nil {
		c.applyErrors++
		metrics.IncApplyErrors()
		c.logger.Warn("Failed to apply quality", "target", target.String(), "encoder", c.bindings.EncoderKind, "error", err)
		return false
	}
	metrics.SetQuality(string(c.stepper.Mode), value)
	return true
}

// Close tears down an active pipeline and stops the reporter. Later joins
// fail with ErrClosed.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	if c.active {
		c.teardown()
	}
	close(c.done)
}

func (c *Controller) publish(ev events.Event) {
	if c.opts.Events != nil {
		c.opts.Events.Publish(ev)
	}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
