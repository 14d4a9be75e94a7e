package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/Gateworks/gst-gateworks-apps/internal/api/models"
	"github.com/Gateworks/gst-gateworks-apps/internal/events"
	"github.com/Gateworks/gst-gateworks-apps/internal/led"
	"github.com/Gateworks/gst-gateworks-apps/internal/logging"
	"github.com/Gateworks/gst-gateworks-apps/internal/process"
	"github.com/Gateworks/gst-gateworks-apps/internal/quality"
	"github.com/Gateworks/gst-gateworks-apps/internal/session"
	"github.com/Gateworks/gst-gateworks-apps/internal/version"
)

// Controller is the part of the session controller the API reads.
type Controller interface {
	Status() session.Status
	Stepper() quality.Stepper
}

// Pipeline is the read side of the pipeline runtime.
type Pipeline interface {
	Description() string
	Command() []string
	ProcessStatus() process.Info
}

// Options configures the API server. Only Controller is required; each
// optional field enables its routes.
type Options struct {
	Controller        Controller
	Pipeline          Pipeline
	EventBus          *events.Bus
	LEDController     led.Controller
	LogLevels         LogLevels
	PrometheusHandler http.Handler

	// RegisterRoutes adds routes owned by other packages (WebRTC signaling).
	RegisterRoutes func(huma.API)
}

// Server is the HTTP API, documented at /docs.
type Server struct {
	api      huma.API
	handler  http.Handler
	http     *http.Server
	options  *Options
	eventBus *events.Bus
	logger   logging.Logger
	started  time.Time
}

// NewServer registers every route. Nothing listens until Start or Serve.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()
	cors := newCORSPolicy(24 * time.Hour)

	config := huma.DefaultConfig("gst-variable-rtsp-server API", version.String())
	config.Info.Description = "Viewer-adaptive RTSP server status and WebRTC signaling"
	// Relative paths in the OpenAPI document, whatever host serves it
	config.Servers = []*huma.Server{}

	s := &Server{
		api:      humago.New(mux, config),
		handler:  cors.wrap(mux),
		options:  opts,
		eventBus: opts.EventBus,
		logger:   logging.GetLogger("api"),
		started:  time.Now(),
	}
	s.http = &http.Server{Handler: s.handler, ReadHeaderTimeout: 10 * time.Second}
	s.api.UseMiddleware(cors.middleware, requestLog(s.logger))

	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}

	s.registerSystemRoutes()
	s.registerSessionRoutes()
	s.registerPipelineRoutes()
	s.registerLEDRoutes()
	s.registerLoggingRoutes()
	s.registerSSERoutes()
	if opts.RegisterRoutes != nil {
		opts.RegisterRoutes(s.api)
	}
	return s
}

// Handler serves the API without a listener, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on addr and serves until Stop.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on ln until Stop. It returns nil after Stop.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("API listening", "addr", ln.Addr().String(), "docs", "http://"+ln.Addr().String()+"/docs")
	if err := s.http.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop closes the listener and every connection. Event streams never go
// idle, so there is nothing to drain.
func (s *Server) Stop() error {
	return s.http.Close()
}

func (s *Server) registerSystemRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Liveness, degraded while the pipeline process is in its error state",
		Tags:        []string{"system"},
	}, func(ctx context.Context, input *struct{}) (*models.HealthResponse, error) {
		data := models.HealthData{
			Status: "ok",
			Uptime: time.Since(s.started).Round(time.Second).String(),
		}
		if s.options.Pipeline != nil {
			info := s.options.Pipeline.ProcessStatus()
			data.Pipeline = string(info.State)
			if info.State == process.StateError {
				data.Status = "degraded"
			}
		}
		return &models.HealthResponse{Body: data}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Build information of the running binary",
		Tags:        []string{"system"},
	}, func(ctx context.Context, input *struct{}) (*models.VersionResponse, error) {
		return &models.VersionResponse{Body: version.Get()}, nil
	})
}
