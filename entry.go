package mqregistry

import (
	"context"
	"errors"
	"sync"

	"github.com/colinapp/mqregistry/internal/rabbitmq"
	amqp "github.com/rabbitmq/amqp091-go"
)

// entry is one named connection. mu serialises every frame sent on ch; the
// channel is not assumed to be safe for concurrent use.
type entry struct {
	name string
	conn rabbitmq.Connection
	ch   rabbitmq.Channel

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	closed    bool
	consumers []*rabbitmq.Consumer
}

func newEntry(parent context.Context, name string, conn rabbitmq.Connection, ch rabbitmq.Channel) *entry {
	ctx, cancel := context.WithCancel(parent)
	return &entry{
		name:   name,
		conn:   conn,
		ch:     ch,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (e *entry) publish(ctx context.Context, queue string, body []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return rabbitmq.ErrChannelClosed
	}
	return e.ch.Publish(ctx, rabbitmq.DefaultExchange, queue, body)
}

func (e *entry) consume(queue, consumerTag string) (<-chan amqp.Delivery, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, rabbitmq.ErrChannelClosed
	}
	return e.ch.Consume(queue, consumerTag)
}

func (e *entry) addConsumer(c *rabbitmq.Consumer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.consumers = append(e.consumers, c)
}

// Ack and Nack make entry the rabbitmq.Acker of its consumers.
func (e *entry) Ack(deliveryTag uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return rabbitmq.ErrChannelClosed
	}
	return e.ch.Ack(deliveryTag)
}

func (e *entry) Nack(deliveryTag uint64, requeue bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return rabbitmq.ErrChannelClosed
	}
	return e.ch.Nack(deliveryTag, requeue)
}

func (e *entry) isOpen() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.closed && !e.ch.IsClosed() && !e.conn.IsClosed()
}

// close closes the channel, then the connection. Only the first call does
// any work.
func (e *entry) close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	chErr := e.ch.Close()
	connErr := e.conn.Close()
	e.mu.Unlock()

	e.cancel()
	return errors.Join(chErr, connErr)
}

// ConnectionInfo is a snapshot of one registered connection.
type ConnectionInfo struct {
	Name      string
	Open      bool
	Consumers []ConsumerInfo
}

// ConsumerInfo is a snapshot of one consumer on a connection.
type ConsumerInfo struct {
	Queue       string
	ConsumerTag string
	Acked       int64
	Nacked      int64
	Stopped     bool
}

func (e *entry) info() ConnectionInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	info := ConnectionInfo{
		Name: e.name,
		Open: !e.closed && !e.ch.IsClosed() && !e.conn.IsClosed(),
	}
	for _, c := range e.consumers {
		acked, nacked := c.Stats()
		stopped := false
		select {
		case <-c.Done():
			stopped = true
		default:
		}
		info.Consumers = append(info.Consumers, ConsumerInfo{
			Queue:       c.Queue(),
			ConsumerTag: c.Tag(),
			Acked:       acked,
			Nacked:      nacked,
			Stopped:     stopped,
		})
	}
	return info
}
