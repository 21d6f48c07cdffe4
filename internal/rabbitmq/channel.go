package rabbitmq

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultExchange is the nameless exchange that routes by queue name.
const DefaultExchange = ""

// Channel is a logical session multiplexed over a Connection.
type Channel interface {
	// Publish sends body with no message properties set.
	Publish(ctx context.Context, exchange, routingKey string, body []byte) error
	Qos(prefetchCount int) error
	// Consume registers a consumer with manual acknowledgment.
	Consume(queue, consumerTag string) (<-chan amqp.Delivery, error)
	Ack(deliveryTag uint64) error
	Nack(deliveryTag uint64, requeue bool) error
	IsClosed() bool
	Close() error
}

type amqpChannel struct {
	ch *amqp.Channel
}

func (c *amqpChannel) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	err := c.ch.PublishWithContext(
		ctx,
		exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{Body: body},
	)
	if err != nil {
		return &PublishError{
			Exchange:   exchange,
			RoutingKey: routingKey,
			Err:        err,
			Timestamp:  time.Now(),
		}
	}
	return nil
}

func (c *amqpChannel) Qos(prefetchCount int) error {
	return c.ch.Qos(prefetchCount, 0, false)
}

func (c *amqpChannel) Consume(queue, consumerTag string) (<-chan amqp.Delivery, error) {
	deliveries, err := c.ch.Consume(
		queue,
		consumerTag,
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,
	)
	if err != nil {
		return nil, &ConsumerError{
			Queue:       queue,
			ConsumerTag: consumerTag,
			Op:          "consume",
			Err:         err,
			Timestamp:   time.Now(),
		}
	}
	return deliveries, nil
}

func (c *amqpChannel) Ack(deliveryTag uint64) error {
	return c.ch.Ack(deliveryTag, false)
}

func (c *amqpChannel) Nack(deliveryTag uint64, requeue bool) error {
	return c.ch.Nack(deliveryTag, false, requeue)
}

func (c *amqpChannel) IsClosed() bool {
	return c.ch.IsClosed()
}

func (c *amqpChannel) Close() error {
	if c.ch.IsClosed() {
		return nil
	}
	return c.ch.Close()
}
