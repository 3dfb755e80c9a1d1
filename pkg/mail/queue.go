package mail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// QueueSettings configure the RabbitMQ-backed mailer.
type QueueSettings struct {
	URL        string
	Exchange   string
	RoutingKey string
	From       string
}

// publisher is the subset of *amqp.Channel used by QueueMailer.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// QueueMailer hands messages to a topic exchange for an out-of-process email worker.
// A successful Send means the broker accepted the message, not that it was delivered.
type QueueMailer struct {
	conn     *amqp.Connection
	ch       publisher
	exchange string
	key      string
	from     string
	now      func() time.Time
}

// NewQueueMailer dials the broker and declares a durable topic exchange.
func NewQueueMailer(cfg QueueSettings) (*QueueMailer, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("mail queue: url is required")
	}
	if strings.TrimSpace(cfg.Exchange) == "" {
		return nil, errors.New("mail queue: exchange is required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("mail queue: dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("mail queue: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("mail queue: declare exchange: %w", err)
	}

	mailer := newQueueMailer(ch, cfg)
	mailer.conn = conn
	return mailer, nil
}

func newQueueMailer(ch publisher, cfg QueueSettings) *QueueMailer {
	key := strings.TrimSpace(cfg.RoutingKey)
	if key == "" {
		key = "email.send"
	}
	return &QueueMailer{
		ch:       ch,
		exchange: cfg.Exchange,
		key:      key,
		from:     strings.TrimSpace(cfg.From),
		now:      time.Now,
	}
}

// Send publishes msg as JSON. Addresses are validated before anything is published.
func (q *QueueMailer) Send(ctx context.Context, msg Message) error {
	from, recipients, err := resolveEnvelope(msg, q.from)
	if err != nil {
		return err
	}
	msg.From = from
	msg.To = recipients

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("mail queue: encode message: %w", err)
	}

	if err := q.ch.PublishWithContext(ctx, q.exchange, q.key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    q.now(),
		Body:         body,
	}); err != nil {
		return fmt.Errorf("mail queue: publish: %w", err)
	}
	return nil
}

// Close releases the channel and connection.
func (q *QueueMailer) Close() error {
	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}
