package rabbitmq

import (
	"context"
	"log/slog"
	"time"

	"github.com/colinapp/mqregistry/config"
	amqp "github.com/rabbitmq/amqp091-go"
)

// BrokerURL returns the amqp:// URL for the broker settings.
func BrokerURL(cfg config.RabbitMQ) string {
	port := cfg.Port
	if port == 0 {
		port = config.DefaultPort
	}
	vhost := cfg.VirtualHost
	if vhost == "" {
		vhost = config.DefaultVirtualHost
	}

	uri := amqp.URI{
		Scheme:   "amqp",
		Host:     cfg.HostName,
		Port:     port,
		Username: cfg.UserName,
		Password: cfg.Password,
		Vhost:    vhost,
	}
	return uri.String()
}

// Dialer opens transport connections to the broker.
type Dialer interface {
	Dial(ctx context.Context, name string, cfg config.RabbitMQ) (Connection, error)
}

// Connection is a live transport connection.
type Connection interface {
	Channel() (Channel, error)
	IsClosed() bool
	Close() error
}

// AMQPDialer dials with amqp091-go.
type AMQPDialer struct {
	logger *slog.Logger
}

// DialerOption configures the AMQPDialer
type DialerOption func(*AMQPDialer)

// WithDialerLogger sets the logger
func WithDialerLogger(logger *slog.Logger) DialerOption {
	return func(d *AMQPDialer) {
		d.logger = logger
	}
}

// NewAMQPDialer creates a dialer backed by amqp091-go
func NewAMQPDialer(options ...DialerOption) *AMQPDialer {
	d := &AMQPDialer{logger: slog.Default()}
	for _, opt := range options {
		opt(d)
	}
	return d
}

// Dial opens a connection tagged with the registry name. The dial runs on a
// separate goroutine so ctx can abandon it; a connection that arrives after
// ctx is done is closed.
func (d *AMQPDialer) Dial(ctx context.Context, name string, cfg config.RabbitMQ) (Connection, error) {
	url := BrokerURL(cfg)
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = config.DefaultConnectTimeout
	}

	amqpCfg := amqp.Config{
		Locale: "en_US",
		Properties: amqp.Table{
			"connection_name": name,
			"product":         "mqregistry",
		},
		Dial: amqp.DefaultDial(timeout),
	}

	connChan := make(chan *amqp.Connection, 1)
	errChan := make(chan error, 1)

	go func() {
		conn, err := amqp.DialConfig(url, amqpCfg)
		if err != nil {
			errChan <- err
			return
		}
		connChan <- conn
	}()

	select {
	case conn := <-connChan:
		d.logger.Debug("dialed broker",
			"connection", name,
			"url", SanitizeURL(url),
			"local", conn.LocalAddr().String())
		return &amqpConnection{conn: conn}, nil

	case err := <-errChan:
		return nil, &ConnectionError{
			Op:        "dial",
			Name:      name,
			URL:       SanitizeURL(url),
			Err:       err,
			Timestamp: time.Now(),
			Attempts:  1,
		}

	case <-ctx.Done():
		go func() {
			select {
			case conn := <-connChan:
				_ = conn.Close()
			case <-errChan:
			}
		}()
		return nil, &ConnectionError{
			Op:        "dial",
			Name:      name,
			URL:       SanitizeURL(url),
			Err:       ctx.Err(),
			Timestamp: time.Now(),
			Attempts:  1,
		}
	}
}

type amqpConnection struct {
	conn *amqp.Connection
}

func (c *amqpConnection) Channel() (Channel, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, &ChannelError{
			Op:        "open",
			ChannelID: "new",
			Err:       err,
			Timestamp: time.Now(),
		}
	}
	return &amqpChannel{ch: ch}, nil
}

func (c *amqpConnection) IsClosed() bool {
	return c.conn.IsClosed()
}

func (c *amqpConnection) Close() error {
	if c.conn.IsClosed() {
		return nil
	}
	return c.conn.Close()
}

