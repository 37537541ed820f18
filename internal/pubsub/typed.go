package pubsub

import (
	"context"
	"encoding/json"

	"github.com/nfrund/hexarena/internal/topics"
)

// Event[T] pairs a registered topic with its payload type.
type Event[T any] struct {
	topic topics.Topic
}

// NewEvent wraps a topic that is already registered with topics.Default.
// It panics for unknown topics since events are declared at init time.
func NewEvent[T any](topic topics.Topic) Event[T] {
	if _, ok := topics.Default().Get(topic.Name); !ok {
		panic("pubsub: unregistered topic " + topic.Name)
	}
	return Event[T]{topic: topic}
}

// Name returns the topic name.
func (e Event[T]) Name() string {
	return e.topic.Name
}

// Publish sends a typed event. The compiler ensures payload matches T.
func Publish[T any](ctx context.Context, p Publisher, event Event[T], battleID string, payload T) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.Publish(ctx, Message{
		Topic:    event.Name(),
		BattleID: battleID,
		Payload:  data,
	})
}

// Decode unmarshals a message payload into T.
func Decode[T any](msg Message) (T, error) {
	var v T
	err := json.Unmarshal(msg.Payload, &v)
	return v, err
}
