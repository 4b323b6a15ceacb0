// Package events publishes pipeline notifications for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ligovirgo/seismon/internal/model"
)

// Event topic constants
const (
	TopicEventIngested     = "seismon.event.ingested"
	TopicPredictionCreated = "seismon.prediction.created"

	// TopicAll matches every seismon subject.
	TopicAll = "seismon.>"
)

// EventIngested is published after an event row commits.
type EventIngested struct {
	Event *model.Event `json:"event"`
}

// PredictionCreated is published after a prediction row commits.
type PredictionCreated struct {
	Prediction *model.Prediction `json:"prediction"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// Message is a raw payload received on a subject.
type Message struct {
	Topic string
	Data  []byte
}

// Decode unmarshals a message into the payload type registered for its
// topic. Unknown topics are returned as a generic map.
func Decode(msg Message) (any, error) {
	var v any
	switch msg.Topic {
	case TopicEventIngested:
		v = &EventIngested{}
	case TopicPredictionCreated:
		v = &PredictionCreated{}
	default:
		m := map[string]any{}
		v = &m
	}
	if err := json.Unmarshal(msg.Data, v); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", msg.Topic, err)
	}
	return v, nil
}

// NoopPublisher discards every event. It stands in when no bus is configured.
type NoopPublisher struct{}

func (*NoopPublisher) Publish(context.Context, string, any) error { return nil }

func (*NoopPublisher) Close() error { return nil }
