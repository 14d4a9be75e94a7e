package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/Gateworks/gst-gateworks-apps/internal/api/models"
)

func (s *Server) registerSessionRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-status",
		Method:      http.MethodGet,
		Path:        "/api/status",
		Summary:     "Session status",
		Description: "Viewer count, encoder binding and the quality currently applied",
		Tags:        []string{"session"},
	}, func(ctx context.Context, input *struct{}) (*models.StatusResponse, error) {
		return &models.StatusResponse{Body: s.options.Controller.Status()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-quality-table",
		Method:      http.MethodGet,
		Path:        "/api/quality",
		Summary:     "Quality table",
		Description: "Encoder target for each viewer count under the configured mode and policy",
		Tags:        []string{"session"},
	}, func(ctx context.Context, input *models.QualityTableInput) (*models.QualityTableResponse, error) {
		stepper := s.options.Controller.Stepper()
		return &models.QualityTableResponse{Body: models.QualityTableData{
			Mode:       stepper.Mode,
			Policy:     stepper.Policy,
			Bounds:     stepper.Bounds,
			StepFactor: stepper.StepFactor(),
			Rows:       stepper.Table(input.Clients),
		}}, nil
	})
}

func (s *Server) registerPipelineRoutes() {
	if s.options.Pipeline == nil {
		return
	}
	huma.Register(s.api, huma.Operation{
		OperationID: "get-pipeline",
		Method:      http.MethodGet,
		Path:        "/api/pipeline",
		Summary:     "Pipeline process",
		Description: "Launch description and the state of the gst-launch process running it",
		Tags:        []string{"session"},
	}, func(ctx context.Context, input *struct{}) (*models.PipelineResponse, error) {
		p := s.options.Pipeline
		info := p.ProcessStatus()
		data := models.PipelineData{
			Description: p.Description(),
			Command:     p.Command(),
			State:       string(info.State),
			Restarts:    info.Restarts,
			LastExit:    info.LastExit,
		}
		if !info.StartedAt.IsZero() {
			data.StartedAt = &info.StartedAt
		}
		if info.LastError != nil {
			data.LastError = info.LastError.Error()
		}
		return &models.PipelineResponse{Body: data}, nil
	})
}
