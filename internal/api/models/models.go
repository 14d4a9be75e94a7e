package models

import (
	"time"

	"github.com/Gateworks/gst-gateworks-apps/internal/quality"
	"github.com/Gateworks/gst-gateworks-apps/internal/session"
	"github.com/Gateworks/gst-gateworks-apps/internal/version"
)

type HealthData struct {
	Status   string `json:"status" enum:"ok,degraded" doc:"Overall health"`
	Uptime   string `json:"uptime" example:"3h2m10s" doc:"Time since the API started"`
	Pipeline string `json:"pipeline,omitempty" example:"running" doc:"State of the gst-launch process"`
}

type HealthResponse struct {
	Body HealthData
}

type VersionResponse struct {
	Body version.Info
}

// StatusResponse carries the controller state.
type StatusResponse struct {
	Body session.Status
}

// Quality table models
type QualityTableInput struct {
	Clients int `query:"clients" default:"10" minimum:"1" maximum:"1000" doc:"Largest viewer count to list"`
}

type QualityTableData struct {
	Mode       quality.Mode   `json:"mode" example:"bitrate" doc:"Control axis"`
	Policy     quality.Policy `json:"policy" example:"linear" doc:"Viewer count to quality mapping"`
	Bounds     quality.Bounds `json:"bounds" doc:"Control range and effective step count"`
	StepFactor int            `json:"step_factor" example:"2499" doc:"Quality distance per viewer under the linear policy"`
	Rows       []quality.Row  `json:"rows" doc:"Target per viewer count"`
}

type QualityTableResponse struct {
	Body QualityTableData
}

// Pipeline process models
type PipelineData struct {
	Description string     `json:"description" example:"v4l2src name=source0 ! imxvpuenc_h264 name=enc0 ! rtph264pay name=pay0 pt=96" doc:"Configured launch description"`
	Command     []string   `json:"command,omitempty" doc:"Arguments of the running process, with current element properties"`
	State       string     `json:"state" enum:"idle,starting,running,stopping,error" doc:"Process state"`
	StartedAt   *time.Time `json:"started_at,omitempty" doc:"Last start time"`
	Restarts    int        `json:"restarts" doc:"Relaunches since startup"`
	LastExit    int        `json:"last_exit" doc:"Exit status of the previous run"`
	LastError   string     `json:"last_error,omitempty" example:"exit status 1: could not link enc0 to pay0" doc:"Why the last run failed"`
}

type PipelineResponse struct {
	Body PipelineData
}

// LED models
type LEDsData struct {
	LEDs     []string `json:"leds" example:"[\"user1\",\"user2\"]" doc:"LEDs present on this board"`
	Patterns []string `json:"patterns" example:"[\"solid\",\"blink\",\"heartbeat\"]" doc:"Supported patterns"`
}

type LEDsResponse struct {
	Body LEDsData
}

type SetLEDInput struct {
	LED  string `path:"led" example:"user1" doc:"LED name"`
	Body struct {
		Enabled bool   `json:"enabled" doc:"Turn the LED on or off"`
		Pattern string `json:"pattern,omitempty" example:"heartbeat" doc:"Pattern while on, solid when empty"`
	}
}

// Logging models
type LogLevelsData struct {
	Modules map[string]string `json:"modules" doc:"Level per module"`
}

type LogLevelsResponse struct {
	Body LogLevelsData
}

type SetLogLevelInput struct {
	Module string `path:"module" example:"session" doc:"Module name"`
	Body   struct {
		Level string `json:"level" enum:"debug,info,warn,error" doc:"New level"`
	}
}
