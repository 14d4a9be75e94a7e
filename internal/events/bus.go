// Package events carries server state changes to the API, the LED
// manager and the systemd notifier.
package events

import "github.com/kelindar/event"

// Bus is a typed broadcast bus on top of a kelindar/event dispatcher.
// Handlers run asynchronously with respect to Publish.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{dispatcher: event.NewDispatcher()}
}

// Publish delivers ev to the subscribers of its concrete type. Event
// types this package does not define are ignored.
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case ViewerCountChangedEvent:
		event.Publish(b.dispatcher, e)
	case QualityChangedEvent:
		event.Publish(b.dispatcher, e)
	case PipelineStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case PipelineProcessEvent:
		event.Publish(b.dispatcher, e)
	case TelemetryEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers handler, a func taking one of this package's event
// types, and returns its unsubscribe function. Any other handler is
// accepted and never called.
//
//	unsub := bus.Subscribe(func(e events.QualityChangedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(ViewerCountChangedEvent):
		return On(b, h)
	case func(QualityChangedEvent):
		return On(b, h)
	case func(PipelineStateChangedEvent):
		return On(b, h)
	case func(PipelineProcessEvent):
		return On(b, h)
	case func(TelemetryEvent):
		return On(b, h)
	}
	return func() {}
}

// On is the typed form of Subscribe.
func On[T Event](b *Bus, handler func(T)) func() {
	return event.Subscribe(b.dispatcher, handler)
}
