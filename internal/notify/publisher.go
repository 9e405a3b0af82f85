// Package notify publishes job and import events to a RabbitMQ topic
// exchange. Publishing is best effort: failures are logged and never fail
// the operation that produced the event. A nil *Publisher is a valid no-op.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/JonMunkholm/crmingest/internal/core"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Routing keys.
const (
	KeyJobCompleted   = "job.completed"
	KeyJobFailed      = "job.failed"
	KeyImportFinished = "import.finished"
)

// publishTimeout bounds a single publish.
const publishTimeout = 5 * time.Second

// channel is the subset of *amqp.Channel used here.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Event is the JSON body of every message.
type Event struct {
	Type string            `json:"type"`
	At   time.Time         `json:"at"`
	Job  *core.JobSnapshot `json:"job,omitempty"`
	Run  *core.ImportRun   `json:"run,omitempty"`
}

// Publisher sends events to one exchange.
type Publisher struct {
	conn     *amqp.Connection
	ch       channel
	exchange string
	logger   *slog.Logger

	mu sync.Mutex // amqp channels are not safe for concurrent publishing
}

// Dial connects to the broker and declares a durable topic exchange.
func Dial(url, exchange string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // kind
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	p := NewPublisher(ch, exchange)
	p.conn = conn
	return p, nil
}

// NewPublisher wraps an open channel.
func NewPublisher(ch channel, exchange string) *Publisher {
	return &Publisher{ch: ch, exchange: exchange, logger: slog.Default().With("component", "notify")}
}

// Publish sends v as a persistent JSON message.
func (p *Publisher) Publish(ctx context.Context, key string, v any) error {
	if p == nil {
		return nil
	}
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.PublishWithContext(ctx,
		p.exchange, // exchange
		key,        // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.NewString(),
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	return nil
}

// JobTerminal publishes job.completed or job.failed.
func (p *Publisher) JobTerminal(ctx context.Context, snap core.JobSnapshot) {
	if p == nil {
		return
	}
	key := KeyJobCompleted
	if snap.Status == core.JobFailed {
		key = KeyJobFailed
	}
	p.send(ctx, key, Event{Type: key, At: time.Now(), Job: &snap})
}

// ImportFinished publishes import.finished.
func (p *Publisher) ImportFinished(ctx context.Context, run core.ImportRun) {
	if p == nil {
		return
	}
	p.send(ctx, KeyImportFinished, Event{Type: KeyImportFinished, At: time.Now(), Run: &run})
}

func (p *Publisher) send(ctx context.Context, key string, ev Event) {
	if err := p.Publish(context.WithoutCancel(ctx), key, ev); err != nil {
		p.logger.Warn("event not published", "key", key, "error", err)
	}
}

// Close closes the channel and the connection.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

var _ core.ImportObserver = (*Publisher)(nil)
