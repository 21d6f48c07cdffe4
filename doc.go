// Package mqregistry keeps named RabbitMQ connections and routes publish,
// consume and close calls to them by name.
//
// A Registry is created with New and released with Close (or Dispose).
// Each name owns one connection and one channel. Messages are published to
// the default exchange with the queue name as routing key, and consumers
// acknowledge each delivery only after their handler returns nil.
package mqregistry
