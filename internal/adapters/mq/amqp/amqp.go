// Package amqp publishes committed readings to a RabbitMQ topic exchange.
package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/okian/ghostrelay/internal/domain/model"
	"github.com/okian/ghostrelay/pkg/logger"
	"github.com/okian/ghostrelay/pkg/metrics"
)

const (
	publisherName = "amqp"

	// DefaultExchange and DefaultRoutingKey are used when the config leaves them empty.
	DefaultExchange   = "ghostrelay.readings"
	DefaultRoutingKey = "ghost.reading.committed"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("amqp publisher closed")

// channel is the subset of *amqp.Channel the publisher needs.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends each committed reading as a persistent JSON message.
type Publisher struct {
	conn       *amqp.Connection
	mu         sync.Mutex
	ch         channel
	exchange   string
	routingKey string
	closed     bool
	logger     logger.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithExchange sets the topic exchange name.
func WithExchange(name string) Option {
	return func(p *Publisher) {
		if name != "" {
			p.exchange = name
		}
	}
}

// WithRoutingKey sets the routing key prefix. The grid state is appended,
// e.g. ghost.reading.committed.clean.
func WithRoutingKey(key string) Option {
	return func(p *Publisher) {
		if key != "" {
			p.routingKey = key
		}
	}
}

// Dial connects to the broker at rawURL and declares the durable exchange.
func Dial(ctx context.Context, rawURL string, opts ...Option) (*Publisher, error) {
	p := newPublisher(opts...)

	p.logger.Info(ctx, "connecting to rabbitmq", logger.String("url", MaskPassword(rawURL)))
	conn, err := amqp.Dial(rawURL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq %s: %w", MaskPassword(rawURL), err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		p.exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %q: %w", p.exchange, err)
	}

	p.conn = conn
	p.ch = ch
	p.logger.Info(ctx, "rabbitmq publisher ready",
		logger.String("exchange", p.exchange),
		logger.String("routing_key", p.routingKey),
	)
	return p, nil
}

func newPublisher(opts ...Option) *Publisher {
	p := &Publisher{
		exchange:   DefaultExchange,
		routingKey: DefaultRoutingKey,
		logger:     logger.Get().Named("amqp"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RoutingKey returns the key a reading is published under.
func (p *Publisher) RoutingKey(e model.CommittedReading) string { //nolint:gocritic // hugeParam: matches Publish
	switch e.GridStatus {
	case model.GridClean:
		return p.routingKey + ".clean"
	case model.GridDirty:
		return p.routingKey + ".dirty"
	default:
		return p.routingKey
	}
}

// Publish implements worker.Publisher.
func (p *Publisher) Publish(ctx context.Context, e model.CommittedReading) error { //nolint:gocritic // hugeParam: events travel by value
	msg, err := newPublishing(e)
	if err != nil {
		return err
	}
	key := p.RoutingKey(e)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.ch == nil {
		return ErrClosed
	}

	if err := p.ch.PublishWithContext(ctx, p.exchange, key, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	metrics.RecordNotificationPublished(publisherName)
	p.logger.Debug(ctx, "published committed reading",
		logger.String("routing_key", key),
		logger.String("event_id", e.EventID),
		logger.String("device_address", e.DeviceAddress),
	)
	return nil
}

func newPublishing(e model.CommittedReading) (amqp.Publishing, error) { //nolint:gocritic // hugeParam: events travel by value
	body, err := json.Marshal(e)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal event: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    e.EventID,
		Timestamp:    e.CommittedAt,
		Type:         "ghost.reading.committed",
		Body:         body,
		DeliveryMode: amqp.Persistent,
	}, nil
}

// Close closes the channel and the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	if p.ch != nil {
		if err := p.ch.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}
	return errors.Join(errs...)
}

// MaskPassword hides the password of a broker URL for logging.
func MaskPassword(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<unparseable url>"
	}
	return u.Redacted()
}
