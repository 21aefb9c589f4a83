package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	CaptureRoutingKey = "frames.capture"
	StatusRoutingKey  = "frames.status"

	maxBackoff = 60 * time.Second
)

// MessageHandler processes one delivery body. A returned error requeues the
// message after a backoff.
type MessageHandler func(ctx context.Context, body []byte) error

// Consumer runs a fixed pool of workers over one capture queue. Each
// delivery is acked once the handler succeeds and requeued otherwise.
type Consumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	cfg     ConsumerConfig
	handler MessageHandler
	logger  *zap.Logger

	wg        sync.WaitGroup
	closeOnce sync.Once
}

type ConsumerConfig struct {
	URL         string
	Queue       string
	Exchange    string
	DLQ         string
	StatusQueue string
	Prefetch    int
	WorkerCount int
	BaseDelayMs int
	// JobTimeout bounds a single handler call; zero means no bound.
	JobTimeout time.Duration
}

func NewConsumer(cfg ConsumerConfig, handler MessageHandler, logger *zap.Logger) (*Consumer, error) {
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareTopology(ch, cfg); err != nil {
		conn.Close()
		return nil, err
	}

	return &Consumer{
		conn:    conn,
		channel: ch,
		cfg:     cfg,
		handler: handler,
		logger:  logger.With(zap.String("queue", cfg.Queue)),
	}, nil
}

// declareTopology makes sure the exchange, the capture, status and
// dead-letter queues and their bindings exist.
func declareTopology(ch *amqp.Channel, cfg ConsumerConfig) error {
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	for _, q := range []string{cfg.Queue, cfg.DLQ, cfg.StatusQueue} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
	}

	bindings := []struct{ queue, key string }{
		{cfg.Queue, CaptureRoutingKey},
		{cfg.StatusQueue, StatusRoutingKey},
	}
	for _, b := range bindings {
		if err := ch.QueueBind(b.queue, b.key, cfg.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", b.queue, err)
		}
	}

	if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	return nil
}

// Start consumes until ctx is done, then waits for in-flight jobs.
func (c *Consumer) Start(ctx context.Context) error {
	deliveries, err := c.channel.ConsumeWithContext(ctx, c.cfg.Queue, "",
		false, // manual ack
		false, false, false, nil,
	)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	c.logger.Info("starting worker pool", zap.Int("workers", c.cfg.WorkerCount))

	for i := 0; i < c.cfg.WorkerCount; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i, deliveries)
	}

	<-ctx.Done()
	c.logger.Info("context cancelled, waiting for workers to finish")
	c.wg.Wait()
	return nil
}

func (c *Consumer) worker(ctx context.Context, id int, deliveries <-chan amqp.Delivery) {
	defer c.wg.Done()
	log := c.logger.With(zap.Int("worker_id", id))
	log.Debug("worker started")

	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				log.Info("delivery channel closed")
				return
			}
			c.handle(ctx, d, log.With(zap.Uint64("delivery_tag", d.DeliveryTag)))
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery, log *zap.Logger) {
	jobCtx := ctx
	if c.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, c.cfg.JobTimeout)
		defer cancel()
	}

	err := c.handler(jobCtx, d.Body)
	if err == nil {
		_ = d.Ack(false)
		return
	}

	attempt := AttemptFromHeaders(d.Headers)
	delay := Backoff(time.Duration(c.cfg.BaseDelayMs)*time.Millisecond, attempt)
	log.Warn("capture job failed, requeueing after backoff",
		zap.Error(err),
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay),
	)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		_ = d.Nack(false, true)
	case <-ctx.Done():
		// Shutting down: hand the message back without waiting.
		_ = d.Nack(false, true)
	}
}

// AttemptFromHeaders counts prior dead-letterings recorded by the broker.
func AttemptFromHeaders(headers amqp.Table) int {
	deaths, ok := headers["x-death"].([]interface{})
	if !ok || len(deaths) == 0 {
		return 1
	}
	return len(deaths)
}

// Backoff doubles base for every attempt after the first, capped at a minute.
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 17 {
		return maxBackoff
	}
	delay := base << (attempt - 1)
	if delay > maxBackoff || delay < 0 {
		delay = maxBackoff
	}
	return delay
}

// Close releases the channel and connection; it is safe to call twice.
func (c *Consumer) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.channel != nil {
			c.channel.Close()
		}
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}
