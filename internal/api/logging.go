package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/Gateworks/gst-gateworks-apps/internal/api/models"
)

// LogLevels reads and changes module log levels.
type LogLevels interface {
	Levels() map[string]string
	SetLevel(module, level string) error
}

func (s *Server) registerLoggingRoutes() {
	levels := s.options.LogLevels
	if levels == nil {
		return
	}

	huma.Register(s.api, huma.Operation{
		OperationID: "get-log-levels",
		Method:      http.MethodGet,
		Path:        "/api/logging",
		Summary:     "Log levels",
		Description: "Effective level of every module logger",
		Tags:        []string{"system"},
	}, func(ctx context.Context, input *struct{}) (*models.LogLevelsResponse, error) {
		return &models.LogLevelsResponse{Body: models.LogLevelsData{Modules: levels.Levels()}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-log-level",
		Method:      http.MethodPut,
		Path:        "/api/logging/{module}",
		Summary:     "Set log level",
		Description: "Change one module's level until the next restart",
		Tags:        []string{"system"},
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *models.SetLogLevelInput) (*models.LogLevelsResponse, error) {
		if err := levels.SetLevel(input.Module, input.Body.Level); err != nil {
			return nil, huma.Error400BadRequest("could not set level", err)
		}
		s.logger.Info("Log level changed", "target", input.Module, "level", input.Body.Level)
		return &models.LogLevelsResponse{Body: models.LogLevelsData{Modules: levels.Levels()}}, nil
	})
}
