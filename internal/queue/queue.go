// Package queue defines the dispatch queue contract between submission and
// the worker pool. Delivery is at-least-once: a message may be handed to
// workers more than once and consumers must tolerate duplicates.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fileflow/internal/model"
)

// ErrClosed is returned when publishing to a closed queue.
var ErrClosed = errors.New("queue closed")

// Delivery is one hand-off of a message to a consumer.
// Exactly one of Ack, Retry or Reject should be called.
type Delivery interface {
	Body() []byte
	// Attempt is 1 for the first delivery and grows with every Retry.
	Attempt() int
	Ack() error
	// Retry schedules a new delivery after delay with Attempt()+1.
	Retry(delay time.Duration) error
	// Reject drops the message without redelivery.
	Reject() error
}

type Publisher interface {
	Publish(ctx context.Context, msg model.WorkMessage) error
}

type Consumer interface {
	// Consume streams deliveries until ctx is done or the queue is closed.
	Consume(ctx context.Context) (<-chan Delivery, error)
}

// Queue is a Publisher and Consumer backed by one broker connection.
type Queue interface {
	Publisher
	Consumer
	Close() error
}

// Encode serializes a message body.
func Encode(msg model.WorkMessage) ([]byte, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}

// Decode parses and validates a message body. When a field has the wrong
// type or validation fails, the partially decoded message is still returned
// so the caller can act on a recoverable job id.
func Decode(body []byte) (model.WorkMessage, error) {
	var msg model.WorkMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return msg, fmt.Errorf("%w: %v", model.ErrMalformedMessage, err)
		}
		return model.WorkMessage{}, fmt.Errorf("%w: %v", model.ErrMalformedMessage, err)
	}
	if err := msg.Validate(); err != nil {
		return msg, err
	}
	return msg, nil
}
