package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DeliveryHandler processes one delivery. A nil return acknowledges it.
type DeliveryHandler func(ctx context.Context, delivery amqp.Delivery) error

// FailurePolicy decides what happens to a delivery whose handler failed.
type FailurePolicy int

const (
	// FailureRequeue negatively acknowledges and asks the broker to requeue
	FailureRequeue FailurePolicy = iota
	// FailureDiscard negatively acknowledges without requeue
	FailureDiscard
)

func (p FailurePolicy) String() string {
	switch p {
	case FailureRequeue:
		return "requeue"
	case FailureDiscard:
		return "discard"
	default:
		return fmt.Sprintf("FailurePolicy(%d)", int(p))
	}
}

// Acker settles deliveries by tag.
type Acker interface {
	Ack(deliveryTag uint64) error
	Nack(deliveryTag uint64, requeue bool) error
}

// Consumer drains one delivery stream with manual acknowledgment.
type Consumer struct {
	queue       string
	consumerTag string
	acker       Acker
	policy      FailurePolicy
	logger      *slog.Logger
	done        chan struct{}

	acked  atomic.Int64
	nacked atomic.Int64
}

// ConsumerOption configures the consumer
type ConsumerOption func(*Consumer)

// WithFailurePolicy sets the policy for failed handlers
func WithFailurePolicy(policy FailurePolicy) ConsumerOption {
	return func(c *Consumer) {
		c.policy = policy
	}
}

// WithConsumerLogger sets the logger
func WithConsumerLogger(logger *slog.Logger) ConsumerOption {
	return func(c *Consumer) {
		c.logger = logger
	}
}

// NewConsumer creates a new consumer
func NewConsumer(queue, consumerTag string, acker Acker, options ...ConsumerOption) *Consumer {
	c := &Consumer{
		queue:       queue,
		consumerTag: consumerTag,
		acker:       acker,
		policy:      FailureRequeue,
		logger:      slog.Default(),
		done:        make(chan struct{}),
	}

	for _, opt := range options {
		opt(c)
	}

	return c
}

// Queue returns the queue being consumed
func (c *Consumer) Queue() string { return c.queue }

// Tag returns the consumer tag
func (c *Consumer) Tag() string { return c.consumerTag }

// Done is closed once the delivery stream has ended.
func (c *Consumer) Done() <-chan struct{} { return c.done }

// Stats returns the number of acknowledged and negatively acknowledged deliveries.
func (c *Consumer) Stats() (acked, nacked int64) {
	return c.acked.Load(), c.nacked.Load()
}

// Run handles deliveries one at a time until the broker closes the stream.
func (c *Consumer) Run(ctx context.Context, deliveries <-chan amqp.Delivery, handler DeliveryHandler) {
	defer func() {
		close(c.done)
		c.logger.Info("consumer stopped",
			"queue", c.queue,
			"consumerTag", c.consumerTag)
	}()

	for delivery := range deliveries {
		if err := c.handleMessage(ctx, delivery, handler); err != nil {
			c.logger.Error("failed to handle message",
				"error", err,
				"queue", c.queue,
				"consumerTag", c.consumerTag,
				"deliveryTag", delivery.DeliveryTag,
				"policy", c.policy.String(),
			)
		}
	}
}

// handleMessage processes a single message
func (c *Consumer) handleMessage(ctx context.Context, delivery amqp.Delivery, handler DeliveryHandler) error {
	err := c.invoke(ctx, delivery, handler)

	if err != nil {
		requeue := c.policy == FailureRequeue
		if nackErr := c.acker.Nack(delivery.DeliveryTag, requeue); nackErr != nil {
			c.logger.Error("failed to nack message",
				"error", nackErr,
				"originalError", err,
				"deliveryTag", delivery.DeliveryTag,
			)
		} else {
			c.nacked.Add(1)
		}
		return err
	}

	if ackErr := c.acker.Ack(delivery.DeliveryTag); ackErr != nil {
		c.logger.Error("failed to ack message",
			"error", ackErr,
			"deliveryTag", delivery.DeliveryTag,
		)
		return nil
	}
	c.acked.Add(1)
	return nil
}

// invoke runs the handler, turning a panic into an error.
func (c *Consumer) invoke(ctx context.Context, delivery amqp.Delivery, handler DeliveryHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrHandlerFailed, r)
		}
	}()

	if herr := handler(ctx, delivery); herr != nil {
		return fmt.Errorf("%w: %w", ErrHandlerFailed, herr)
	}
	return nil
}
