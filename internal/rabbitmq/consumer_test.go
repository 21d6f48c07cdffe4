package rabbitmq

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockAcker struct {
	mock.Mock
}

func (m *mockAcker) Ack(deliveryTag uint64) error {
	return m.Called(deliveryTag).Error(0)
}

func (m *mockAcker) Nack(deliveryTag uint64, requeue bool) error {
	return m.Called(deliveryTag, requeue).Error(0)
}

func runConsumer(t *testing.T, c *Consumer, handler DeliveryHandler, deliveries ...amqp.Delivery) {
	t.Helper()
	ch := make(chan amqp.Delivery, len(deliveries))
	for _, d := range deliveries {
		ch <- d
	}
	close(ch)

	c.Run(context.Background(), ch, handler)

	select {
	case <-c.Done():
	default:
		t.Fatal("Done not closed after Run returned")
	}
}

func TestConsumer(t *testing.T) {
	t.Run("NewConsumer creates with defaults", func(t *testing.T) {
		acker := &mockAcker{}
		consumer := NewConsumer("q", "tag", acker)

		assert.Equal(t, "q", consumer.Queue())
		assert.Equal(t, "tag", consumer.Tag())
		assert.Equal(t, FailureRequeue, consumer.policy)
		assert.NotNil(t, consumer.logger)
	})

	t.Run("NewConsumer applies options", func(t *testing.T) {
		logger := slog.Default()
		consumer := NewConsumer("q", "tag", &mockAcker{},
			WithFailurePolicy(FailureDiscard),
			WithConsumerLogger(logger),
		)

		assert.Equal(t, FailureDiscard, consumer.policy)
		assert.Equal(t, logger, consumer.logger)
	})

	t.Run("acks each successful delivery singly", func(t *testing.T) {
		acker := &mockAcker{}
		acker.On("Ack", uint64(1)).Return(nil).Once()
		acker.On("Ack", uint64(2)).Return(nil).Once()

		var bodies []string
		consumer := NewConsumer("q", "tag", acker)
		runConsumer(t, consumer, func(ctx context.Context, d amqp.Delivery) error {
			bodies = append(bodies, string(d.Body))
			return nil
		},
			amqp.Delivery{DeliveryTag: 1, Body: []byte("a")},
			amqp.Delivery{DeliveryTag: 2, Body: []byte("b")},
		)

		assert.Equal(t, []string{"a", "b"}, bodies)
		acker.AssertExpectations(t)
		acked, nacked := consumer.Stats()
		assert.Equal(t, int64(2), acked)
		assert.Zero(t, nacked)
	})

	t.Run("failed handler is requeued by default", func(t *testing.T) {
		acker := &mockAcker{}
		acker.On("Nack", uint64(9), true).Return(nil).Once()

		consumer := NewConsumer("q", "tag", acker)
		runConsumer(t, consumer, func(context.Context, amqp.Delivery) error {
			return errors.New("nope")
		}, amqp.Delivery{DeliveryTag: 9})

		acker.AssertExpectations(t)
		acker.AssertNotCalled(t, "Ack", mock.Anything)
		_, nacked := consumer.Stats()
		assert.Equal(t, int64(1), nacked)
	})

	t.Run("discard policy nacks without requeue", func(t *testing.T) {
		acker := &mockAcker{}
		acker.On("Nack", uint64(9), false).Return(nil).Once()

		consumer := NewConsumer("q", "tag", acker, WithFailurePolicy(FailureDiscard))
		runConsumer(t, consumer, func(context.Context, amqp.Delivery) error {
			return errors.New("nope")
		}, amqp.Delivery{DeliveryTag: 9})

		acker.AssertExpectations(t)
	})

	t.Run("panic is treated as failure", func(t *testing.T) {
		acker := &mockAcker{}
		acker.On("Nack", uint64(5), true).Return(nil).Once()
		acker.On("Ack", uint64(6)).Return(nil).Once()

		consumer := NewConsumer("q", "tag", acker)
		assert.NotPanics(t, func() {
			runConsumer(t, consumer, func(_ context.Context, d amqp.Delivery) error {
				if d.DeliveryTag == 5 {
					panic("boom")
				}
				return nil
			},
				amqp.Delivery{DeliveryTag: 5},
				amqp.Delivery{DeliveryTag: 6},
			)
		})

		acker.AssertExpectations(t)
	})

	t.Run("ack failure does not stop the consumer", func(t *testing.T) {
		acker := &mockAcker{}
		acker.On("Ack", uint64(1)).Return(ErrChannelClosed).Once()
		acker.On("Ack", uint64(2)).Return(nil).Once()

		consumer := NewConsumer("q", "tag", acker)
		runConsumer(t, consumer, func(context.Context, amqp.Delivery) error { return nil },
			amqp.Delivery{DeliveryTag: 1},
			amqp.Delivery{DeliveryTag: 2},
		)

		acker.AssertExpectations(t)
		acked, _ := consumer.Stats()
		assert.Equal(t, int64(1), acked)
	})
}

func TestHandleMessage(t *testing.T) {
	t.Run("wraps handler errors", func(t *testing.T) {
		acker := &mockAcker{}
		acker.On("Nack", uint64(1), true).Return(nil)
		consumer := NewConsumer("q", "tag", acker)
		cause := errors.New("cause")

		err := consumer.handleMessage(context.Background(), amqp.Delivery{DeliveryTag: 1},
			func(context.Context, amqp.Delivery) error { return cause })

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrHandlerFailed)
		assert.ErrorIs(t, err, cause)
	})

	t.Run("passes the context through", func(t *testing.T) {
		acker := &mockAcker{}
		acker.On("Ack", uint64(1)).Return(nil)
		consumer := NewConsumer("q", "tag", acker)

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		var got context.Context
		err := consumer.handleMessage(ctx, amqp.Delivery{DeliveryTag: 1},
			func(c context.Context, _ amqp.Delivery) error {
				got = c
				return nil
			})

		require.NoError(t, err)
		assert.Equal(t, ctx, got)
	})
}

func TestFailurePolicyString(t *testing.T) {
	assert.Equal(t, "requeue", FailureRequeue.String())
	assert.Equal(t, "discard", FailureDiscard.String())
	assert.Equal(t, "FailurePolicy(7)", FailurePolicy(7).String())
}
