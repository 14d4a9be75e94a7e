package api

import (
	"context"
	"net/http"
	"slices"

	"github.com/danielgtaylor/huma/v2"

	"github.com/Gateworks/gst-gateworks-apps/internal/api/models"
)

func (s *Server) registerLEDRoutes() {
	leds := s.options.LEDController
	if leds == nil {
		return
	}

	huma.Register(s.api, huma.Operation{
		OperationID: "get-leds",
		Method:      http.MethodGet,
		Path:        "/api/leds",
		Summary:     "LEDs",
		Description: "LEDs present on this board and the patterns they support",
		Tags:        []string{"leds"},
	}, func(ctx context.Context, input *struct{}) (*models.LEDsResponse, error) {
		return &models.LEDsResponse{Body: models.LEDsData{
			LEDs:     leds.Available(),
			Patterns: leds.Patterns(),
		}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-led",
		Method:      http.MethodPut,
		Path:        "/api/leds/{led}",
		Summary:     "Set LED",
		Description: "Drive one LED. The viewer indicator is rewritten on the next pipeline state change.",
		Tags:        []string{"leds"},
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *models.SetLEDInput) (*struct{}, error) {
		if !slices.Contains(leds.Available(), input.LED) {
			return nil, huma.Error404NotFound("no such LED: " + input.LED)
		}
		if err := leds.Set(input.LED, input.Body.Enabled, input.Body.Pattern); err != nil {
			return nil, huma.Error400BadRequest("could not set LED", err)
		}
		return nil, nil
	})
}
