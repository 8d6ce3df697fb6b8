package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Config holds RabbitMQ connection and topology configuration.
type Config struct {
	URL           string
	Exchange      string
	Queues        []string
	PrefetchCount int

	RetryAttempts int
	RetryInterval time.Duration

	PublishRetries    int
	PublishRetryDelay time.Duration
}

// RabbitMQ implements Client over a single AMQP connection and channel.
// Every queue in Config.Queues is declared durable and bound to the topic
// exchange with its own name as routing key.
type RabbitMQ struct {
	config *Config
	logger *slog.Logger

	mu        sync.Mutex
	conn      *amqp.Connection
	channel   *amqp.Channel
	consumers map[string]chan Delivery
	connected bool
}

var _ Client = (*RabbitMQ)(nil)

func NewRabbitMQ(cfg *Config, logger *slog.Logger) (*RabbitMQ, error) {
	c := &RabbitMQ{
		config:    cfg,
		logger:    logger,
		consumers: make(map[string]chan Delivery),
	}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *RabbitMQ) connect() error {
	var err error

	attempts := c.config.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		c.logger.Info("connecting to rabbitmq",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
		)

		c.conn, err = amqp.Dial(c.config.URL)
		if err == nil {
			break
		}

		c.logger.Error("rabbitmq connection failed",
			slog.Any("error", err),
			slog.Int("attempt", attempt),
		)
		if attempt < attempts {
			time.Sleep(c.config.RetryInterval)
		}
	}
	if err != nil {
		return fmt.Errorf("connect to rabbitmq after %d attempts: %w", attempts, err)
	}

	c.channel, err = c.conn.Channel()
	if err != nil {
		c.conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := c.setup(); err != nil {
		c.channel.Close()
		c.conn.Close()
		return fmt.Errorf("declare topology: %w", err)
	}

	if c.config.PrefetchCount > 0 {
		if err := c.channel.Qos(c.config.PrefetchCount, 0, false); err != nil {
			c.channel.Close()
			c.conn.Close()
			return fmt.Errorf("set qos: %w", err)
		}
	}

	c.connected = true
	c.logger.Info("rabbitmq client ready",
		slog.String("exchange", c.config.Exchange),
		slog.Int("queues", len(c.config.Queues)),
	)
	return nil
}

func (c *RabbitMQ) setup() error {
	err := c.channel.ExchangeDeclare(
		c.config.Exchange, // name
		"topic",           // type
		true,              // durable
		false,             // auto-delete
		false,             // internal
		false,             // no-wait
		nil,               // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	for _, name := range c.config.Queues {
		if _, err := c.channel.QueueDeclare(name, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", name, err)
		}
		if err := c.channel.QueueBind(name, name, c.config.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", name, err)
		}
	}
	return nil
}

// Subscribe starts consuming a queue. Deliveries are acknowledged to the
// broker on receipt, before the caller sees them, so a long transform never
// trips the broker's redelivery timeout.
func (c *RabbitMQ) Subscribe(ctx context.Context, queue string) (<-chan Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil, ErrNotConnected
	}
	if ch, ok := c.consumers[queue]; ok {
		return ch, nil
	}

	deliveries, err := c.channel.Consume(
		queue, // queue
		queue, // consumer tag, one consumer per queue
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", queue, err)
	}

	out := make(chan Delivery)
	c.consumers[queue] = out

	go c.pump(ctx, queue, deliveries, out)

	c.logger.Info("subscribed to queue", slog.String("queue", queue))
	return out, nil
}

func (c *RabbitMQ) pump(ctx context.Context, queue string, in <-chan amqp.Delivery, out chan Delivery) {
	defer close(out)
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-in:
			if !ok {
				return
			}
			if err := d.Ack(false); err != nil {
				c.logger.Error("failed to ack delivery",
					slog.String("queue", queue),
					slog.Any("error", err),
				)
				continue
			}
			select {
			case out <- Delivery{Queue: queue, Body: d.Body}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Unsubscribe cancels the queue's consumer. Messages already in the broker
// stay buffered there until Subscribe is called again.
func (c *RabbitMQ) Unsubscribe(queue string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.consumers[queue]; !ok {
		return ErrNotSubscribed
	}
	delete(c.consumers, queue)

	if err := c.channel.Cancel(queue, false); err != nil {
		return fmt.Errorf("cancel consumer %s: %w", queue, err)
	}

	c.logger.Info("unsubscribed from queue", slog.String("queue", queue))
	return nil
}

// Publish sends a persistent message, retrying with exponential backoff on
// transient failures.
func (c *RabbitMQ) Publish(ctx context.Context, routingKey string, body []byte) error {
	if !c.Connected() {
		return ErrNotConnected
	}

	maxRetries := c.config.PublishRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	baseDelay := c.config.PublishRetryDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := c.channel.PublishWithContext(ctx,
			c.config.Exchange,
			routingKey,
			false, // mandatory
			false, // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				Body:         body,
				DeliveryMode: amqp.Persistent,
				Timestamp:    time.Now(),
			},
		)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt < maxRetries {
			backoff := time.Duration(float64(baseDelay) * float64(uint(1)<<uint(attempt)))
			c.logger.Warn("publish failed, retrying",
				slog.String("routing_key", routingKey),
				slog.Int("attempt", attempt+1),
				slog.Duration("retry_after", backoff),
				slog.Any("error", err),
			)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("publish to %s after %d attempts: %w", routingKey, maxRetries+1, lastErr)
}

func (c *RabbitMQ) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected && c.conn != nil && !c.conn.IsClosed()
}

func (c *RabbitMQ) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.connected = false
	c.consumers = make(map[string]chan Delivery)

	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			c.logger.Error("failed to close channel", slog.Any("error", err))
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			return err
		}
	}
	c.logger.Info("rabbitmq connection closed")
	return nil
}
