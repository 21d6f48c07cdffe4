// Package rabbitmq is the broker client used by the connection registry.
//
// This package includes:
//   - Dialer, Connection and Channel: the narrow surface of amqp091-go the registry needs
//   - AMQPDialer: the amqp091-go backed Dialer
//   - Consumer: drains a delivery stream with manual, per-message acknowledgment
//   - Typed errors carrying the failed operation and the broker client's cause
//
// Nothing here reconnects or retries. A failed dial, publish or consume is
// returned to the caller as is.
package rabbitmq
