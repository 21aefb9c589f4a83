package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ysrdora/nextframe/internal/domain/entity"
)

// Publisher sends persistent messages on one channel. amqp channels are not
// safe for concurrent publishing, so sends are serialized.
type Publisher struct {
	mu       sync.Mutex
	channel  *amqp.Channel
	exchange string
}

func NewPublisher(conn *amqp.Connection, exchange string) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open publisher channel: %w", err)
	}
	return &Publisher{channel: ch, exchange: exchange}, nil
}

// envelope describes one outgoing message.
type envelope struct {
	exchange  string
	key       string
	messageID string
	headers   amqp.Table
	body      []byte
}

func (p *Publisher) sendJSON(ctx context.Context, env envelope, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", env.key, err)
	}
	env.body = body
	return p.send(ctx, env)
}

func (p *Publisher) send(ctx context.Context, env envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.channel.PublishWithContext(ctx, env.exchange, env.key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    env.messageID,
		Timestamp:    time.Now().UTC(),
		Headers:      env.headers,
		Body:         env.body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", env.key, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.channel.Close()
}

// StatusPublisher reports job progress on the status routing key.
type StatusPublisher struct {
	pub *Publisher
}

func NewStatusPublisher(pub *Publisher) *StatusPublisher {
	return &StatusPublisher{pub: pub}
}

func (sp *StatusPublisher) PublishStatus(ctx context.Context, msg entity.CaptureStatusMessage) error {
	return sp.pub.sendJSON(ctx, envelope{
		exchange:  sp.pub.exchange,
		key:       StatusRoutingKey,
		messageID: msg.JobID.String(),
	}, msg)
}

// RequestPublisher enqueues capture jobs for the worker.
type RequestPublisher struct {
	pub *Publisher
}

func NewRequestPublisher(pub *Publisher) *RequestPublisher {
	return &RequestPublisher{pub: pub}
}

func (rp *RequestPublisher) PublishRequest(ctx context.Context, msg entity.CaptureRequestMessage) error {
	return rp.pub.sendJSON(ctx, envelope{
		exchange:  rp.pub.exchange,
		key:       CaptureRoutingKey,
		messageID: msg.JobID.String(),
	}, msg)
}

// DLQPublisher parks unprocessable payloads, untouched, on the dead-letter
// queue through the default exchange.
type DLQPublisher struct {
	pub   *Publisher
	queue string
}

func NewDLQPublisher(pub *Publisher, dlqQueue string) *DLQPublisher {
	return &DLQPublisher{pub: pub, queue: dlqQueue}
}

func (dp *DLQPublisher) PublishToDLQ(ctx context.Context, msg []byte, reason string) error {
	return dp.pub.send(ctx, envelope{
		key:     dp.queue,
		headers: amqp.Table{"x-dlq-reason": reason},
		body:    msg,
	})
}
