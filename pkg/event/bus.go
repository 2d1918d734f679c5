// Package event carries domain change notifications to in-process listeners.
// Events fire after a successful persist and carry the full new record.
package event

import (
	"sync"
)

// Topics emitted by the repositories.
const (
	TopicUserChanged          = "user.changed"
	TopicAppointmentChanged   = "appointment.changed"
	TopicMedicalRecordChanged = "medicalrecord.changed"
)

// Event is a single domain notification.
type Event struct {
	Topic   string
	Payload interface{}
}

// Handler consumes a published event.
type Handler func(Event)

// Publisher defines the interface repositories publish through.
type Publisher interface {
	Publish(topic string, payload interface{})
}

// Bus is an in-process publish/subscribe broker.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]Handler)}
}

// Subscribe registers a handler for a topic.
func (b *Bus) Subscribe(topic string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], h)
}

// Publish delivers the event to every handler of the topic, synchronously
// and in subscription order.
func (b *Bus) Publish(topic string, payload interface{}) {
	b.mu.RLock()
	handlers := b.handlers[topic]
	b.mu.RUnlock()

	evt := Event{Topic: topic, Payload: payload}
	for _, h := range handlers {
		h(evt)
	}
}

// Nop is a Publisher that discards events.
type Nop struct{}

func (Nop) Publish(string, interface{}) {}
