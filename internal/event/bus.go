package event

import (
	"sync"
	"time"

	"github.com/developermelih/mk-proxy-generator/internal/model"
)

// Type discriminates the kinds of events published on the bus.
type Type int

// Event kinds.
const (
	// TypeStatusChanged is published when an instance changes lifecycle
	// state or its resolved identity is updated.
	TypeStatusChanged Type = iota

	// TypeLogLine is published for every log record emitted through the
	// broadcast log handler.
	TypeLogLine
)

// Event is a single notification delivered to subscribers.
type Event struct {
	// Type identifies the event kind.
	Type Type

	// Time is when the event was published.
	Time time.Time

	// Instance is the affected instance's view for TypeStatusChanged.
	// Zero-valued for other event types.
	Instance model.InstanceView

	// Line is the formatted log line for TypeLogLine.
	Line string
}

// Bus fans events out to subscribers. The zero value is not usable;
// create one with NewBus.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]func(Event)
	next int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]func(Event))}
}

// Subscribe registers fn to receive all subsequent events. The returned
// cancel function removes the subscription and is safe to call more than
// once.
func (b *Bus) Subscribe(fn func(Event)) (cancel func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Publish delivers e to every current subscriber in unspecified order.
// Delivery is synchronous: Publish returns after all callbacks return.
func (b *Bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, fn := range b.subs {
		fn(e)
	}
}

// StatusChanged publishes a TypeStatusChanged event for the given view.
func (b *Bus) StatusChanged(view model.InstanceView) {
	b.Publish(Event{Type: TypeStatusChanged, Instance: view})
}

// LogLine publishes a TypeLogLine event for the given formatted line.
func (b *Bus) LogLine(line string) {
	b.Publish(Event{Type: TypeLogLine, Line: line})
}
