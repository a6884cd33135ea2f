package events

import (
	"github.com/juju/pubsub/v2"
)

// Bus is a thin wrapper around a pubsub SimpleHub. Publication is
// asynchronous with respect to subscribers: Publish never blocks on a
// slow handler, which keeps back-pressure away from the state machine.
type Bus struct {
	hub *pubsub.SimpleHub
}

// NewBus creates a bus with default hub settings.
func NewBus() *Bus {
	return &Bus{hub: pubsub.NewSimpleHub(nil)}
}

// Publish sends data to all subscribers of topic. The returned channel
// is closed once every subscriber has processed the event; callers that
// do not care simply ignore it.
func (b *Bus) Publish(topic string, data any) <-chan struct{} {
	wait := b.hub.Publish(topic, data)
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	return done
}

// Subscribe registers handler for topic and returns an unsubscribe
// function. Handlers for a given subscriber run sequentially in
// publication order; handlers of different subscribers run
// independently.
func (b *Bus) Subscribe(topic string, handler func(topic string, data any)) func() {
	return b.hub.Subscribe(topic, func(t string, d interface{}) {
		handler(t, d)
	})
}
