// Copyright 2024 Colinapp Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mqregistry

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/colinapp/mqregistry/config"
	"github.com/colinapp/mqregistry/internal/rabbitmq"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/singleflight"
)

// MessageHandler receives the UTF-8 text of one delivery. Returning an error
// (or panicking) negatively acknowledges the delivery according to the
// registry's FailurePolicy; returning nil acknowledges it.
type MessageHandler func(ctx context.Context, message string) error

// Registry owns a set of named (connection, channel) pairs.
type Registry struct {
	cfg     config.RabbitMQ
	dialer  rabbitmq.Dialer
	logger  *slog.Logger
	policy  rabbitmq.FailurePolicy
	closeFn context.CancelFunc
	baseCtx context.Context

	mu      sync.RWMutex
	entries map[string]*entry
	closed  bool

	creating singleflight.Group
}

// New creates an empty registry that opens connections with cfg.
func New(cfg config.RabbitMQ, options ...Option) *Registry {
	o := &registryOptions{
		logger: slog.Default(),
		policy: rabbitmq.FailureRequeue,
	}
	for _, opt := range options {
		opt(o)
	}
	if o.dialer == nil {
		o.dialer = rabbitmq.NewAMQPDialer(rabbitmq.WithDialerLogger(o.logger))
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		cfg:     cfg,
		dialer:  o.dialer,
		logger:  o.logger,
		policy:  o.policy,
		baseCtx: ctx,
		closeFn: cancel,
		entries: make(map[string]*entry),
	}
}

// CreateConnection opens a connection and channel under name. An existing
// name is left untouched and only logged. Concurrent calls for the same name
// share one dial.
func (r *Registry) CreateConnection(ctx context.Context, name string) error {
	if name == "" {
		return ErrInvalidName
	}

	r.mu.RLock()
	closed := r.closed
	_, exists := r.entries[name]
	r.mu.RUnlock()

	if closed {
		return ErrRegistryClosed
	}
	if exists {
		r.logger.Warn("connection already exists", "connection", name)
		return nil
	}

	_, err, _ := r.creating.Do(name, func() (interface{}, error) {
		return nil, r.create(ctx, name)
	})
	return err
}

func (r *Registry) create(ctx context.Context, name string) error {
	// A previous flight for this name may have finished between the lookup
	// and Do.
	r.mu.RLock()
	_, exists := r.entries[name]
	r.mu.RUnlock()
	if exists {
		r.logger.Warn("connection already exists", "connection", name)
		return nil
	}

	conn, err := r.dialer.Dial(ctx, name, r.cfg)
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return &rabbitmq.ConnectionError{
			Op:        "open channel",
			Name:      name,
			URL:       rabbitmq.SanitizeURL(rabbitmq.BrokerURL(r.cfg)),
			Err:       err,
			Timestamp: time.Now(),
			Attempts:  1,
		}
	}

	if r.cfg.Prefetch > 0 {
		if err := ch.Qos(r.cfg.Prefetch); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return &rabbitmq.ChannelError{
				Op:        "qos",
				ChannelID: name,
				Err:       err,
				Timestamp: time.Now(),
			}
		}
	}

	e := newEntry(r.baseCtx, name, conn, ch)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = e.close()
		return ErrRegistryClosed
	}
	r.entries[name] = e
	r.mu.Unlock()

	r.logger.Info("connection created", "connection", name)
	return nil
}

// SendMessage publishes body to queue through the default exchange.
func (r *Registry) SendMessage(ctx context.Context, name, queue string, body []byte) error {
	e, err := r.lookup(name)
	if err != nil {
		return err
	}

	if err := e.publish(ctx, queue, body); err != nil {
		r.logger.Error("failed to send message",
			"error", err,
			"connection", name,
			"queue", queue)
		return err
	}

	r.logger.Info("message sent", "queue", queue, "connection", name)
	return nil
}

// SendText publishes the UTF-8 bytes of text.
func (r *Registry) SendText(ctx context.Context, name, queue, text string) error {
	return r.SendMessage(ctx, name, queue, []byte(text))
}

// ReceiveMessage starts consuming queue and returns once the consumer is
// registered. handler runs on the consumer's goroutine, one delivery at a
// time, and the delivery is acknowledged only after it returns nil.
func (r *Registry) ReceiveMessage(ctx context.Context, name, queue string, handler MessageHandler) error {
	e, err := r.lookup(name)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tag := name + "-" + uuid.NewString()
	deliveries, err := e.consume(queue, tag)
	if err != nil {
		r.logger.Error("failed to start consumer",
			"error", err,
			"connection", name,
			"queue", queue)
		return err
	}

	consumer := rabbitmq.NewConsumer(queue, tag, e,
		rabbitmq.WithFailurePolicy(r.policy),
		rabbitmq.WithConsumerLogger(r.logger.With("connection", name)),
	)
	e.addConsumer(consumer)

	logger := r.logger
	go consumer.Run(e.ctx, deliveries, func(ctx context.Context, d amqp.Delivery) error {
		message := string(d.Body)
		logger.Info("message received",
			"message", message,
			"connection", name,
			"queue", queue,
			"deliveryTag", d.DeliveryTag)
		return handler(ctx, message)
	})

	r.logger.Info("started receiving messages",
		"queue", queue,
		"connection", name,
		"consumerTag", tag)
	return nil
}

// CloseConnection removes name and closes its channel, then its connection.
// The name can be created again as soon as this returns.
func (r *Registry) CloseConnection(name string) error {
	r.mu.Lock()
	e, ok := r.entries[name]
	if ok {
		delete(r.entries, name)
	}
	r.mu.Unlock()

	if !ok {
		r.logger.Error("connection not found for closing", "connection", name)
		return ErrConnectionNotFound
	}

	if err := e.close(); err != nil {
		r.logger.Error("connection closed with errors", "connection", name, "error", err)
		return err
	}
	r.logger.Info("connection closed", "connection", name)
	return nil
}

// Close closes every connection and rejects further creates. Calling it
// again is a no-op.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	entries := r.entries
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	var errs []error
	for _, e := range entries {
		if err := e.close(); err != nil {
			r.logger.Error("connection closed with errors", "connection", e.name, "error", err)
			errs = append(errs, err)
		}
	}
	r.closeFn()

	r.logger.Info("all connections closed and resources released", "count", len(entries))
	return errors.Join(errs...)
}

// Dispose is an alias for Close.
func (r *Registry) Dispose() error {
	return r.Close()
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// IsOpen reports whether name is registered and its connection and channel
// are still open.
func (r *Registry) IsOpen(name string) bool {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	return ok && e.isOpen()
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Connections returns a snapshot of every registered connection, sorted by name.
func (r *Registry) Connections() []ConnectionInfo {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	infos := make([]ConnectionInfo, 0, len(entries))
	for _, e := range entries {
		infos = append(infos, e.info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Registry) lookup(name string) (*entry, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()

	if !ok {
		r.logger.Error("connection not found", "connection", name)
		return nil, ErrConnectionNotFound
	}
	return e, nil
}
