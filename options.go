package mqregistry

import (
	"log/slog"

	"github.com/colinapp/mqregistry/internal/rabbitmq"
)

// Dialer, Connection and Channel are the broker client surface a registry
// talks to. Supply a Dialer with WithDialer to replace amqp091-go.
type (
	Dialer     = rabbitmq.Dialer
	Connection = rabbitmq.Connection
	Channel    = rabbitmq.Channel
)

// FailurePolicy decides what happens to a delivery whose handler failed.
type FailurePolicy = rabbitmq.FailurePolicy

const (
	// FailureRequeue returns failed deliveries to the queue
	FailureRequeue = rabbitmq.FailureRequeue
	// FailureDiscard drops failed deliveries, or dead-letters them if the queue is set up for it
	FailureDiscard = rabbitmq.FailureDiscard
)

type registryOptions struct {
	logger *slog.Logger
	dialer Dialer
	policy FailurePolicy
}

// Option configures the registry
type Option func(*registryOptions)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *registryOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithDialer sets the dialer used to open connections
func WithDialer(dialer Dialer) Option {
	return func(o *registryOptions) {
		o.dialer = dialer
	}
}

// WithFailurePolicy sets how failed handlers settle their delivery
func WithFailurePolicy(policy FailurePolicy) Option {
	return func(o *registryOptions) {
		o.policy = policy
	}
}
