package events

import "github.com/kelindar/event"

// SubscribeToChannel forwards events of type T to ch. Events are dropped
// while ch is full so a slow reader never blocks publishers.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}

// Forward subscribes ch to every event type the bus carries. The
// returned function removes all of the subscriptions.
func Forward(bus *Bus, ch chan<- any) func() {
	unsubs := []func(){
		SubscribeToChannel[ViewerCountChangedEvent](bus, ch),
		SubscribeToChannel[QualityChangedEvent](bus, ch),
		SubscribeToChannel[PipelineStateChangedEvent](bus, ch),
		SubscribeToChannel[PipelineProcessEvent](bus, ch),
		SubscribeToChannel[TelemetryEvent](bus, ch),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}
