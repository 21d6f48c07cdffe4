package mqregistry

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/colinapp/mqregistry/config"
	"github.com/colinapp/mqregistry/internal/rabbitmq"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/mock"
)

type mockDialer struct {
	mock.Mock
}

func (m *mockDialer) Dial(ctx context.Context, name string, cfg config.RabbitMQ) (rabbitmq.Connection, error) {
	args := m.Called(ctx, name, cfg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(rabbitmq.Connection), args.Error(1)
}

type mockConnection struct {
	mock.Mock
}

func (m *mockConnection) Channel() (rabbitmq.Channel, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(rabbitmq.Channel), args.Error(1)
}

func (m *mockConnection) IsClosed() bool {
	return m.Called().Bool(0)
}

func (m *mockConnection) Close() error {
	return m.Called().Error(0)
}

type mockChannel struct {
	mock.Mock
}

func (m *mockChannel) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	return m.Called(ctx, exchange, routingKey, body).Error(0)
}

func (m *mockChannel) Qos(prefetchCount int) error {
	return m.Called(prefetchCount).Error(0)
}

func (m *mockChannel) Consume(queue, consumerTag string) (<-chan amqp.Delivery, error) {
	args := m.Called(queue, consumerTag)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(<-chan amqp.Delivery), args.Error(1)
}

func (m *mockChannel) Ack(deliveryTag uint64) error {
	return m.Called(deliveryTag).Error(0)
}

func (m *mockChannel) Nack(deliveryTag uint64, requeue bool) error {
	return m.Called(deliveryTag, requeue).Error(0)
}

func (m *mockChannel) IsClosed() bool {
	return m.Called().Bool(0)
}

func (m *mockChannel) Close() error {
	return m.Called().Error(0)
}

// logBuffer is a goroutine-safe sink for slog output.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *logBuffer) Contains(level, msg string) bool {
	for _, line := range strings.Split(b.String(), "\n") {
		if strings.Contains(line, "level="+level) && strings.Contains(line, msg) {
			return true
		}
	}
	return false
}

var testConfig = config.RabbitMQ{
	HostName: "172.28.112.163",
	UserName: "admin",
	Password: "admin",
	Port:     5672,
}

type fixture struct {
	registry *Registry
	dialer   *mockDialer
	logs     *logBuffer
}

func newFixture(options ...Option) *fixture {
	f := &fixture{
		dialer: &mockDialer{},
		logs:   &logBuffer{},
	}
	logger := slog.New(slog.NewTextHandler(f.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	opts := append([]Option{WithDialer(f.dialer), WithLogger(logger)}, options...)
	f.registry = New(testConfig, opts...)
	return f
}

// expect wires one successful dial for name and returns its connection and
// channel. Close and IsClosed are allowed but not required.
func (f *fixture) expect(name string) (*mockConnection, *mockChannel) {
	conn := &mockConnection{}
	ch := &mockChannel{}

	f.dialer.On("Dial", mock.Anything, name, testConfig).Return(conn, nil).Once()
	conn.On("Channel").Return(ch, nil).Once()
	conn.On("IsClosed").Return(false).Maybe()
	ch.On("IsClosed").Return(false).Maybe()

	return conn, ch
}

func expectClose(conn *mockConnection, ch *mockChannel) {
	ch.On("Close").Return(nil).Once()
	conn.On("Close").Return(nil).Once()
}
