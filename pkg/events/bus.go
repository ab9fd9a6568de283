// Package events is the in-process publish/subscribe bus that carries engine
// and collector updates to push clients.
package events

import (
	evbus "github.com/asaskevich/EventBus"
)

const (
	TopicScoreUpdated     = "score.updated"
	TopicCollectionStatus = "collection.status"
	TopicSessionChanged   = "session.changed"
)

// Event is the envelope delivered to subscribers and pushed to clients.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type Bus struct {
	bus evbus.Bus
}

func New() *Bus {
	return &Bus{bus: evbus.New()}
}

// Publish delivers data on topic. Subscribers run asynchronously.
func (b *Bus) Publish(topic string, data interface{}) {
	b.bus.Publish(topic, Event{Type: topic, Data: data})
}

// Subscribe registers fn for topic. Handlers of one topic must be distinct
// functions; fan-out to many clients belongs in the subscriber.
func (b *Bus) Subscribe(topic string, fn func(Event)) error {
	return b.bus.SubscribeAsync(topic, fn, false)
}

func (b *Bus) Unsubscribe(topic string, fn func(Event)) error {
	return b.bus.Unsubscribe(topic, fn)
}

// Wait blocks until all async handlers have returned.
func (b *Bus) Wait() {
	b.bus.WaitAsync()
}
