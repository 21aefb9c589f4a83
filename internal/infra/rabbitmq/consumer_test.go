package rabbitmq

import (
	"context"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestBackoff(t *testing.T) {
	base := time.Second

	assert.Equal(t, time.Second, Backoff(base, 1))
	assert.Equal(t, 2*time.Second, Backoff(base, 2))
	assert.Equal(t, 16*time.Second, Backoff(base, 5))
	assert.Equal(t, 60*time.Second, Backoff(base, 7))
	assert.Equal(t, 60*time.Second, Backoff(base, 200))
	assert.Equal(t, time.Second, Backoff(base, 0))
}

func TestAttemptFromHeaders(t *testing.T) {
	assert.Equal(t, 1, AttemptFromHeaders(nil))
	assert.Equal(t, 1, AttemptFromHeaders(amqp.Table{"other": 1}))
	assert.Equal(t, 3, AttemptFromHeaders(amqp.Table{
		"x-death": []interface{}{amqp.Table{}, amqp.Table{}, amqp.Table{}},
	}))
}

type ackRecorder struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (a *ackRecorder) Ack(uint64, bool) error { a.acked = true; return nil }

func (a *ackRecorder) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked, a.requeue = true, requeue
	return nil
}

func (a *ackRecorder) Reject(uint64, bool) error { return nil }

func testConsumer(handler MessageHandler, timeout time.Duration) *Consumer {
	return &Consumer{
		cfg:     ConsumerConfig{BaseDelayMs: 1, JobTimeout: timeout},
		handler: handler,
		logger:  zap.NewNop(),
	}
}

func TestHandleAcksOnSuccess(t *testing.T) {
	ack := &ackRecorder{}
	var got []byte
	c := testConsumer(func(_ context.Context, body []byte) error {
		got = body
		return nil
	}, 0)

	c.handle(context.Background(), amqp.Delivery{Acknowledger: ack, Body: []byte("job")}, zap.NewNop())

	assert.True(t, ack.acked)
	assert.False(t, ack.nacked)
	assert.Equal(t, "job", string(got))
}

func TestHandleRequeuesOnError(t *testing.T) {
	ack := &ackRecorder{}
	c := testConsumer(func(context.Context, []byte) error { return errors.New("boom") }, 0)

	c.handle(context.Background(), amqp.Delivery{Acknowledger: ack}, zap.NewNop())

	assert.False(t, ack.acked)
	assert.True(t, ack.nacked)
	assert.True(t, ack.requeue)
}

func TestHandleBoundsJobWithTimeout(t *testing.T) {
	ack := &ackRecorder{}
	c := testConsumer(func(ctx context.Context, _ []byte) error {
		<-ctx.Done()
		return ctx.Err()
	}, 20*time.Millisecond)

	start := time.Now()
	c.handle(context.Background(), amqp.Delivery{Acknowledger: ack}, zap.NewNop())

	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, ack.nacked)
}

func TestHandleSkipsBackoffOnShutdown(t *testing.T) {
	ack := &ackRecorder{}
	c := testConsumer(func(context.Context, []byte) error { return errors.New("boom") }, 0)
	c.cfg.BaseDelayMs = int(time.Hour / time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.handle(ctx, amqp.Delivery{Acknowledger: ack}, zap.NewNop())

	assert.True(t, ack.nacked)
	assert.True(t, ack.requeue)
}

func TestCloseWithoutConnection(t *testing.T) {
	c := testConsumer(nil, 0)
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}
