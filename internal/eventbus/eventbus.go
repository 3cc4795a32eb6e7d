// Package eventbus carries service events between loosely coupled
// components: run results, adaptation outcomes, notices and location
// pings all travel through one process-local bus.
package eventbus

// Event represents an arbitrary event passed on the bus.
type Event interface{}

// EventBus implements a simple publish/subscribe event bus.
type EventBus interface {
	Publish(Event)
	Subscribe() <-chan Event
	Unsubscribe(<-chan Event)
	Close()
}

// Bus is the default EventBus implementation, a TypedBus carrying
// untyped events. Slow subscribers miss events instead of blocking the
// publisher.
type Bus struct {
	inner *TypedBus[Event]
}

// New creates a new Bus.
func New() *Bus { return &Bus{inner: NewTyped[Event]()} }

func (b *Bus) Publish(e Event) { b.inner.Publish(e) }

func (b *Bus) Subscribe() <-chan Event { return b.inner.Subscribe() }

func (b *Bus) Unsubscribe(sub <-chan Event) { b.inner.Unsubscribe(sub) }

func (b *Bus) Close() { b.inner.Close() }
