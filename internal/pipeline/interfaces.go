package pipeline

import "errors"

// ErrReleased is returned by property writes against a released pipeline.
var ErrReleased = errors.New("pipeline released")

// State is the run state of a pipeline.
type State string

// Pipeline states.
const (
	StateInert   State = "inert"   // Built but not producing media
	StateRunning State = "running" // Capturing, encoding and packetizing
)

// Element is a named, addressable stage of a pipeline.
type Element interface {
	// Name returns the element's unique name within its pipeline (e.g. "enc0").
	Name() string

	// TypeName returns the element factory name (e.g. "imxvpuenc_h264").
	TypeName() string

	// Property returns the current value of a property.
	// Values are int, bool, string or *Structure.
	Property(key string) (any, bool)

	// SetProperty writes a property value.
	SetProperty(key string, value any) error
}

// Pipeline is a constructed capture-to-packetizer graph.
type Pipeline interface {
	ElementByName(name string) (Element, bool)
	Elements() []Element
	SetState(state State) error
	State() State

	// Release drops the pipeline. Later property writes fail with ErrReleased.
	Release()
}

// Factory constructs shared pipeline instances.
type Factory interface {
	// OnPipelineReady registers a hook invoked synchronously for every
	// constructed pipeline, before it starts running.
	OnPipelineReady(hook func(Pipeline))

	// Construct builds a new pipeline, runs the ready hooks and starts it.
	Construct() (Pipeline, error)
}
