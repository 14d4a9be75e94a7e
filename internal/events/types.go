package events

// Event type constants for kelindar/event.
const (
	TypeViewerCountChanged uint32 = iota + 1
	TypeQualityChanged
	TypePipelineStateChanged
	TypePipelineProcess
	TypeTelemetry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// ViewerCountChangedEvent is published after every join or leave.
type ViewerCountChangedEvent struct {
	Clients   int    `json:"clients" example:"2" doc:"Connected viewers after the change"`
	Delta     int    `json:"delta" example:"1" doc:"+1 for a join, -1 for a leave"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ViewerCountChangedEvent.
func (e ViewerCountChangedEvent) Type() uint32 { return TypeViewerCountChanged }

// QualityChangedEvent is published when a new target is applied to the encoder.
type QualityChangedEvent struct {
	Clients   int    `json:"clients" example:"3" doc:"Connected viewers"`
	Mode      string `json:"mode" example:"bitrate" doc:"Control axis: bitrate (kbps) or quant"`
	From      int    `json:"from" example:"7750" doc:"Previous quality value"`
	To        int    `json:"to" example:"5500" doc:"New quality value"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for QualityChangedEvent.
func (e QualityChangedEvent) Type() uint32 { return TypeQualityChanged }

// PipelineStateChangedEvent is published when the shared pipeline is built
// (first viewer) or torn down (last viewer). Used for LED control.
type PipelineStateChangedEvent struct {
	Active    bool   `json:"active" example:"true" doc:"Whether the pipeline is live"`
	Clients   int    `json:"clients" example:"1" doc:"Connected viewers"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for PipelineStateChangedEvent.
func (e PipelineStateChangedEvent) Type() uint32 { return TypePipelineStateChanged }

// IsActive implements the LED manager's state source.
func (e PipelineStateChangedEvent) IsActive() bool {
	return e.Active
}

// PipelineProcessEvent reports gst-launch subprocess transitions.
type PipelineProcessEvent struct {
	State     string `json:"state" example:"running" doc:"idle, starting, running, stopping or error"`
	Error     string `json:"error,omitempty" doc:"Failure reason when state is error"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for PipelineProcessEvent.
func (e PipelineProcessEvent) Type() uint32 { return TypePipelineProcess }

// TelemetryEvent is the periodic snapshot emitted while viewers are connected.
type TelemetryEvent struct {
	Clients    int               `json:"clients" example:"2" doc:"Connected viewers"`
	Mode       string            `json:"mode" example:"bitrate" doc:"Control axis"`
	Quality    int               `json:"quality" example:"7750" doc:"Current quality value"`
	StepFactor int               `json:"step_factor" example:"2250" doc:"Quality distance per viewer"`
	Encoder    string            `json:"encoder" example:"imxvpu" doc:"Encoder backend kind"`
	Stats      map[string]string `json:"stats,omitempty" doc:"Packetizer statistics"`
	Timestamp  string            `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for TelemetryEvent.
func (e TelemetryEvent) Type() uint32 { return TypeTelemetry }
