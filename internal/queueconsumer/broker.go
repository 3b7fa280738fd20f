package queueconsumer

import (
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ragnarcb/chatclip/internal/pipelineerr"
)

// BrokerConfig addresses a RabbitMQ-style broker: plain credentials, virtual
// host, durable queue, manual ack, basic_get semantics.
type BrokerConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	VHost     string
	QueueName string
}

func (c BrokerConfig) url() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d%s", c.User, c.Password, c.Host, c.Port, c.VHost)
}

// Broker is the real Source, backed by amqp091-go.
type Broker struct {
	cfg         BrokerConfig
	maxRetries  int
	baseBackoff time.Duration

	conn *amqp.Connection
	ch   *amqp.Channel
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithMaxRetries bounds the connect retry budget.
func WithMaxRetries(n int) BrokerOption {
	return func(b *Broker) { b.maxRetries = n }
}

// WithBaseBackoff sets the initial connect-retry backoff.
func WithBaseBackoff(d time.Duration) BrokerOption {
	return func(b *Broker) { b.baseBackoff = d }
}

// NewBroker creates a Broker for the given configuration.
func NewBroker(cfg BrokerConfig, opts ...BrokerOption) *Broker {
	b := &Broker{
		cfg:         cfg,
		maxRetries:  3,
		baseBackoff: time.Second,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

var _ Source = (*Broker)(nil)

// Connect dials the broker, opens a channel, and declares the queue durable.
// Retries with exponential backoff up to maxRetries before giving up.
func (b *Broker) Connect() error {
	var lastErr error
	backoff := b.baseBackoff

	for attempt := 0; attempt <= b.maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff)
			backoff *= 2
		}

		conn, err := amqp.Dial(b.cfg.url())
		if err != nil {
			lastErr = err
			continue
		}

		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			lastErr = err
			continue
		}

		if _, err := ch.QueueDeclare(b.cfg.QueueName, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			lastErr = err
			continue
		}

		b.conn = conn
		b.ch = ch
		return nil
	}

	return pipelineerr.Transport(fmt.Sprintf("rabbitmq %s:%d", b.cfg.Host, b.cfg.Port), lastErr)
}

// PollOne performs a non-blocking basic_get with manual ack. A malformed
// body is nacked without requeue and surfaces as a ProtocolError; the caller
// treats that as "no usable message" and still proceeds to cleanup.
func (b *Broker) PollOne() (*Message, error) {
	delivery, ok, err := b.ch.Get(b.cfg.QueueName, false)
	if err != nil {
		return nil, pipelineerr.Transport("rabbitmq get", err)
	}
	if !ok {
		return nil, nil
	}

	if len(delivery.Body) == 0 {
		_ = delivery.Nack(false, false)
		return nil, pipelineerr.Protocol("empty message body")
	}
	if !json.Valid(delivery.Body) {
		_ = delivery.Nack(false, false)
		return nil, pipelineerr.Protocol("message body is not valid JSON")
	}

	if err := delivery.Ack(false); err != nil {
		return nil, pipelineerr.Transport("rabbitmq ack", err)
	}

	return &Message{ID: delivery.MessageId, Body: delivery.Body}, nil
}

// DeleteQueue removes the queue. Idempotent; a missing queue is not an error.
func (b *Broker) DeleteQueue() error {
	if b.ch == nil {
		return nil
	}
	_, err := b.ch.QueueDelete(b.cfg.QueueName, false, false, false)
	return err
}

// Close releases the channel and connection.
func (b *Broker) Close() error {
	if b.ch != nil {
		_ = b.ch.Close()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}
