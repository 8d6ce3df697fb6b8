package queue

import (
	"context"
	"errors"
)

var (
	ErrNotConnected  = errors.New("queue: not connected")
	ErrNotSubscribed = errors.New("queue: not subscribed")
)

// Delivery is one message pulled from a queue. Deliveries are acknowledged
// to the broker before they are handed out: a consumer that crashes
// mid-processing loses the message (accepted tradeoff, see Coordinator docs).
type Delivery struct {
	Queue string
	Body  []byte
}

// Consumer pulls messages from named queues. Subscribe and Unsubscribe are
// how admission control pauses and resumes work intake: unsubscribing stops
// deliveries while queued messages stay buffered in the broker.
type Consumer interface {
	Subscribe(ctx context.Context, queue string) (<-chan Delivery, error)
	Unsubscribe(queue string) error
}

// Publisher sends a message to the processing exchange under a routing key.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

type Client interface {
	Consumer
	Publisher
	Connected() bool
	Close() error
}
