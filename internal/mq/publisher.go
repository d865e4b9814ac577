package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ReadingIngestedEvent is published once per committed reading
type ReadingIngestedEvent struct {
	EventID    uuid.UUID `json:"event_id"`
	ReadingID  int64     `json:"reading_id"`
	DeviceName string    `json:"device_name"`
	Source     string    `json:"source"`
	ObservedAt time.Time `json:"observed_at"`
	MetricKeys []string  `json:"metric_keys"`
}

// Channel is the subset of *amqp.Channel the publisher needs
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher handles message publishing to RabbitMQ
type Publisher struct {
	mu         sync.Mutex
	channel    Channel
	exchange   string
	routingKey string
	logger     *zap.Logger
}

// NewPublisher opens a channel and declares the durable topic exchange
func NewPublisher(conn *Connection, exchange, routingKey string, logger *zap.Logger) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return NewPublisherWithChannel(ch, exchange, routingKey, logger), nil
}

// NewPublisherWithChannel wraps an already declared channel
func NewPublisherWithChannel(ch Channel, exchange, routingKey string, logger *zap.Logger) *Publisher {
	return &Publisher{
		channel:    ch,
		exchange:   exchange,
		routingKey: routingKey,
		logger:     logger,
	}
}

// PublishReadingIngested publishes a reading notification. A zero EventID is
// replaced with a fresh one.
func (p *Publisher) PublishReadingIngested(ctx context.Context, event ReadingIngestedEvent) error {
	if event.EventID == uuid.Nil {
		event.EventID = uuid.New()
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// amqp channels are not safe for concurrent publishes
	p.mu.Lock()
	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		p.routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    event.EventID.String(),
			Timestamp:    time.Now().UTC(),
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	p.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("published reading event",
		zap.String("routing_key", p.routingKey),
		zap.Int64("reading_id", event.ReadingID),
		zap.String("device", event.DeviceName),
	)

	return nil
}

// Close closes the publisher channel
func (p *Publisher) Close() error {
	if p.channel != nil {
		return p.channel.Close()
	}
	return nil
}
