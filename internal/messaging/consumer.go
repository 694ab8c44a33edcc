package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"
)

// DefaultMaxAttempts is how many times a message is handled before it is dropped.
const DefaultMaxAttempts = 5

// ErrDrop marks a handler error as permanent. The message is acked without a retry.
var ErrDrop = errors.New("drop message")

// Handler processes a single event. Handlers are synchronous and easy to test.
type Handler[T any] func(ctx context.Context, event *T) error

// ConsumerStats counts the outcomes of handled messages.
type ConsumerStats struct {
	Processed int64
	Retried   int64
	Dropped   int64
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*consumerSettings)

type consumerSettings struct {
	maxAttempts int
}

// WithMaxAttempts bounds the deliveries of a failing message. Values below one mean a
// single attempt.
func WithMaxAttempts(n int) ConsumerOption {
	return func(s *consumerSettings) {
		s.maxAttempts = max(n, 1)
	}
}

// Consumer subscribes to a topic and processes messages with a typed handler.
//
// Payloads that do not decode and handler errors wrapping ErrDrop are acked and counted
// as dropped, since a redelivery cannot succeed. Other handler errors are nacked until
// the message reaches its attempt limit, then dropped.
type Consumer[T any] struct {
	subscriber  message.Subscriber
	topic       string
	handler     Handler[T]
	logger      *zap.Logger
	maxAttempts int
	cancel      context.CancelFunc
	done        chan struct{}

	mu       sync.Mutex
	attempts map[string]int

	processed atomic.Int64
	retried   atomic.Int64
	dropped   atomic.Int64
}

// NewConsumer creates a new generic consumer for a specific event type.
func NewConsumer[T any](
	subscriber message.Subscriber,
	topic string,
	handler Handler[T],
	logger *zap.Logger,
	opts ...ConsumerOption,
) *Consumer[T] {
	s := consumerSettings{maxAttempts: DefaultMaxAttempts}
	for _, opt := range opts {
		opt(&s)
	}

	return &Consumer[T]{
		subscriber:  subscriber,
		topic:       topic,
		handler:     handler,
		logger:      logger.With(zap.String("topic", topic)),
		maxAttempts: s.maxAttempts,
		done:        make(chan struct{}),
		attempts:    make(map[string]int),
	}
}

// Topic returns the topic this consumer subscribes to.
func (c *Consumer[T]) Topic() string {
	return c.topic
}

// Stats returns the outcome counters so far.
func (c *Consumer[T]) Stats() ConsumerStats {
	return ConsumerStats{
		Processed: c.processed.Load(),
		Retried:   c.retried.Load(),
		Dropped:   c.dropped.Load(),
	}
}

// Start begins consuming messages from the topic.
func (c *Consumer[T]) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	msgs, err := c.subscriber.Subscribe(ctx, c.topic)
	if err != nil {
		close(c.done)

		return err
	}

	go c.consumeLoop(ctx, msgs)

	return nil
}

func (c *Consumer[T]) consumeLoop(ctx context.Context, msgs <-chan *message.Message) {
	defer close(c.done)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}

			c.handleMessage(ctx, msg)
		}
	}
}

func (c *Consumer[T]) handleMessage(ctx context.Context, msg *message.Message) {
	var event T
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		c.drop(msg, "undecodable payload", err)

		return
	}

	err := c.handler(ctx, &event)

	switch {
	case err == nil:
		c.forget(msg.UUID)
		msg.Ack()
		c.processed.Add(1)

		c.logger.Debug("processed event", zap.String("uuid", msg.UUID))
	case errors.Is(err, ErrDrop):
		c.drop(msg, "rejected event", err)
	case c.attempt(msg.UUID) >= c.maxAttempts:
		c.drop(msg, "attempts exhausted", err)
	default:
		c.retried.Add(1)

		c.logger.Warn("failed to handle event, retrying",
			zap.String("uuid", msg.UUID),
			zap.Error(err),
		)
		msg.Nack()
	}
}

func (c *Consumer[T]) drop(msg *message.Message, reason string, err error) {
	c.forget(msg.UUID)
	msg.Ack()
	c.dropped.Add(1)

	c.logger.Error("dropped event",
		zap.String("uuid", msg.UUID),
		zap.String("reason", reason),
		zap.Error(err),
	)
}

// attempt records one more failed handling of uuid and returns the total.
func (c *Consumer[T]) attempt(uuid string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.attempts[uuid]++

	return c.attempts[uuid]
}

func (c *Consumer[T]) forget(uuid string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.attempts, uuid)
}

// Shutdown stops the consumer and waits for in-flight messages to complete.
func (c *Consumer[T]) Shutdown() error {
	if c.cancel == nil {
		return nil
	}

	c.cancel()
	<-c.done

	return nil
}
