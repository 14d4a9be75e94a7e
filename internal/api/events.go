package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/Gateworks/gst-gateworks-apps/internal/events"
)

// eventBacklog is how many events a slow SSE client may fall behind
// before newer ones are dropped.
const eventBacklog = 32

// sseEventTypes names each payload in the OpenAPI document.
var sseEventTypes = map[string]any{
	"viewer-count-changed":   events.ViewerCountChangedEvent{},
	"quality-changed":        events.QualityChangedEvent{},
	"pipeline-state-changed": events.PipelineStateChangedEvent{},
	"pipeline-process":       events.PipelineProcessEvent{},
	"telemetry":              events.TelemetryEvent{},
}

func (s *Server) registerSSERoutes() {
	if s.eventBus == nil {
		s.logger.Debug("No event bus, skipping SSE routes")
		return
	}

	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Event stream",
		Description: "Viewer, quality, pipeline and telemetry events as they happen. The current pipeline state is sent first.",
		Tags:        []string{"events"},
	}, sseEventTypes, s.streamEvents)
}

func (s *Server) streamEvents(ctx context.Context, _ *struct{}, send sse.Sender) {
	ch := make(chan any, eventBacklog)
	stop := events.Forward(s.eventBus, ch)
	defer stop()

	if c := s.options.Controller; c != nil {
		st := c.Status()
		snapshot := events.PipelineStateChangedEvent{
			Active:    st.Active,
			Clients:   st.Clients,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		if send.Data(snapshot) != nil {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ch:
			if send.Data(ev) != nil {
				return
			}
		}
	}
}
