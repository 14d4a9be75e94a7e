package main

import (
	"sync"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/Gateworks/gst-gateworks-apps/cmd"
	"github.com/Gateworks/gst-gateworks-apps/internal/config"
	"github.com/Gateworks/gst-gateworks-apps/internal/logging"
	"github.com/Gateworks/gst-gateworks-apps/internal/version"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"/etc/gst-variable-rtsp-server.toml"`

	// RTSP server settings
	Port       int    `help:"RTSP port to listen on" short:"p" default:"9099" toml:"server.port" env:"PORT"`
	MountPoint string `help:"What URI to mount the stream on" short:"m" default:"/stream" toml:"server.mount_point" env:"MOUNT_POINT"`
	HTTPAddr   string `help:"HTTP API listen address (empty disables)" default:":8090" toml:"server.http_addr" env:"HTTP_ADDR"`

	// Pipeline settings
	SrcElement   string `help:"Source element of the stock pipeline" short:"s" default:"v4l2src" toml:"pipeline.src_element" env:"SRC_ELEMENT"`
	VideoIn      string `help:"Capture device of the stock pipeline" short:"d" default:"/dev/video0" toml:"pipeline.video_in" env:"VIDEO_IN"`
	CapsFilter   string `help:"Caps filter placed after the source" short:"f" toml:"pipeline.caps_filter" env:"CAPS_FILTER"`
	UserPipeline string `help:"Full launch description, replaces the stock pipeline" short:"u" toml:"pipeline.user_pipeline" env:"USER_PIPELINE"`
	PipelineFile string `help:"File holding the launch description, reloaded on change" toml:"pipeline.file" env:"PIPELINE_FILE"`
	Launcher     string `help:"Command that runs the launch description" default:"gst-launch-1.0 -e" toml:"pipeline.launcher" env:"LAUNCHER"`

	// Quality settings
	Steps       int    `help:"Quality levels between the bounds" default:"5" toml:"quality.steps" env:"STEPS"`
	MinBitrate  int    `help:"Lowest bitrate in kbit/s" default:"1" toml:"quality.min_bitrate" env:"MIN_BITRATE"`
	MaxBitrate  int    `help:"Highest bitrate in kbit/s, 0 selects constant-quality mode" default:"10000" toml:"quality.max_bitrate" env:"MAX_BITRATE"`
	MinQuantLvl int    `help:"Best quantizer level" default:"0" toml:"quality.min_quant_lvl" env:"MIN_QUANT_LVL"`
	MaxQuantLvl int    `help:"Worst quantizer level" default:"51" toml:"quality.max_quant_lvl" env:"MAX_QUANT_LVL"`
	Mode        string `help:"Quality axis (auto, bitrate, quant)" default:"auto" toml:"quality.mode" env:"MODE"`
	Policy      string `help:"Step policy (linear, tier)" default:"linear" toml:"quality.policy" env:"POLICY"`

	// Encoder settings
	ConfigInterval int `help:"Seconds between SPS/PPS insertions" default:"2" toml:"encoder.config_interval" env:"CONFIG_INTERVAL"`
	IDRInterval    int `help:"Frames between IDR frames, 0 keeps the encoder default" name:"idr" short:"i" default:"0" toml:"encoder.idr" env:"IDR"`

	// Telemetry settings
	MsgRate int `help:"Seconds between telemetry reports, 0 disables" short:"r" default:"5" toml:"telemetry.msg_rate" env:"MSG_RATE"`

	// Features settings
	FeaturesLEDControl bool `help:"Drive the board LED from the pipeline state" default:"false" toml:"features.led_control_enabled" env:"FEATURES_LED_CONTROL"`

	// Logging settings
	Debug            bool   `help:"Enable debug logging" toml:"logging.debug" env:"DEBUG"`
	LoggingLevel     string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat    string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingSession   string `help:"Session logging level" toml:"logging.session" env:"LOGGING_SESSION"`
	LoggingPipeline  string `help:"Pipeline runtime logging level" toml:"logging.pipeline" env:"LOGGING_PIPELINE"`
	LoggingStreaming string `help:"RTSP/WebRTC logging level" toml:"logging.streaming" env:"LOGGING_STREAMING"`
	LoggingAPI       string `help:"API logging level" toml:"logging.api" env:"LOGGING_API"`
	LoggingGst       string `help:"gst-launch output logging level" toml:"logging.gst" env:"LOGGING_GST"`
}

func loggingConfig(opts *Options) logging.Config {
	cfg := config.LoadLoggingConfig(opts.Config)
	cfg.Level = opts.LoggingLevel
	cfg.Format = opts.LoggingFormat
	if opts.Debug {
		cfg.Level = "debug"
	}
	for module, level := range map[string]string{
		"session":   opts.LoggingSession,
		"pipeline":  opts.LoggingPipeline,
		"streaming": opts.LoggingStreaming,
		"api":       opts.LoggingAPI,
		"gst":       opts.LoggingGst,
	} {
		if level != "" {
			cfg.Modules[module] = level
		}
	}
	return cfg
}

func main() {
	var cli humacli.CLI

	// Create Huma CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// Flags set on the command line win over the file and environment
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			logging.GetLogger("main").Warn("Failed to load config", "error", loadErr)
		}
		logging.Initialize(loggingConfig(opts))

		logger := logging.GetLogger("main")

		var (
			mu      sync.Mutex
			running *app
		)

		hooks.OnStart(func() {
			a, err := newApp(opts)
			if err != nil {
				exitOn(logger, "Failed to start", err)
			}
			mu.Lock()
			running = a
			mu.Unlock()

			if err := a.serve(); err != nil {
				exitOn(logger, "Server failed", err)
			}
		})

		hooks.OnStop(func() {
			mu.Lock()
			a := running
			mu.Unlock()
			if a != nil {
				a.shutdown()
			}
		})
	})

	cli.Root().Use = "gst-variable-rtsp-server"
	cli.Root().Short = "RTSP server that trades stream quality for viewer count"
	cli.Root().Version = version.Banner()

	cli.Root().AddCommand(cmd.CreateValidatePipelineCmd())
	cli.Root().AddCommand(cmd.CreateStepsCmd())
	cli.Root().AddCommand(cmd.CreateListDevicesCmd())

	// Run the CLI
	cli.Run()
}
