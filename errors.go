package mqregistry

import "github.com/colinapp/mqregistry/internal/rabbitmq"

var (
	// ErrConnectionNotFound is returned when no connection is registered under the name
	ErrConnectionNotFound = rabbitmq.ErrConnectionNotFound
	// ErrRegistryClosed is returned by CreateConnection after Close
	ErrRegistryClosed = rabbitmq.ErrRegistryClosed
	// ErrInvalidName is returned for an empty connection name
	ErrInvalidName = rabbitmq.ErrInvalidName
	// ErrHandlerFailed wraps errors and panics from a MessageHandler
	ErrHandlerFailed = rabbitmq.ErrHandlerFailed
)

// Error types returned for transport failures. Use errors.As to inspect them.
type (
	ConnectionError = rabbitmq.ConnectionError
	ChannelError    = rabbitmq.ChannelError
	PublishError    = rabbitmq.PublishError
	ConsumerError   = rabbitmq.ConsumerError
)
