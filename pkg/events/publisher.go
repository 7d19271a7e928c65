// Package events publishes sync lifecycle notifications to an AMQP
// topic exchange so downstream consumers can react to fresh data
// without polling the cache.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/creasty/defaults"
	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"github.com/solwatch/soltrail/pkg/observability"
)

// RoutingKeySyncCompleted is the routing key for sync completion events.
const RoutingKeySyncCompleted = "sync.completed"

// SyncCompleted is emitted after a subject sync finishes, whether or
// not individual records failed.
type SyncCompleted struct {
	Subject       string    `json:"subject"`
	RunID         string    `json:"run_id"`
	Trigger       string    `json:"trigger"`
	NewSignatures int       `json:"new_signatures"`
	Fetched       int       `json:"fetched"`
	FailedIDs     []string  `json:"failed_ids,omitempty"`
	Duration      string    `json:"duration"`
	CompletedAt   time.Time `json:"completed_at"`
}

// Publisher defines the public interface for event publishing
type Publisher interface {
	// PublishSyncCompleted emits a sync completion event.
	PublishSyncCompleted(ctx context.Context, event SyncCompleted) error

	// Close releases the broker connection.
	Close() error
}

type publisher struct {
	log      logrus.FieldLogger
	exchange string
	conn     *amqp.Connection
	channel  *amqp.Channel
}

// NewPublisher connects to the broker and declares the topic exchange.
// A config with an empty URL yields a no-op publisher.
func NewPublisher(log logrus.FieldLogger, cfg *Config) (Publisher, error) {
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to set defaults: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.URL == "" {
		return NewNopPublisher(), nil
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()

		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := channel.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()

		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	log.WithField("exchange", cfg.Exchange).Info("Event publisher connected")

	return &publisher{
		log:      log.WithField("component", "events"),
		exchange: cfg.Exchange,
		conn:     conn,
		channel:  channel,
	}, nil
}

func (p *publisher) PublishSyncCompleted(_ context.Context, event SyncCompleted) error {
	body, err := json.Marshal(event)
	if err != nil {
		observability.RecordEventPublished("error")

		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.channel.Publish(p.exchange, RoutingKeySyncCompleted, false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   event.RunID,
		Timestamp:   event.CompletedAt,
		Body:        body,
	})
	if err != nil {
		observability.RecordEventPublished("error")

		return fmt.Errorf("failed to publish event: %w", err)
	}

	observability.RecordEventPublished("published")

	p.log.WithFields(logrus.Fields{
		"subject": event.Subject,
		"run_id":  event.RunID,
	}).Debug("Published sync completion event")

	return nil
}

func (p *publisher) Close() error {
	if err := p.channel.Close(); err != nil {
		return fmt.Errorf("failed to close channel: %w", err)
	}

	if err := p.conn.Close(); err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}

	return nil
}

type nopPublisher struct{}

// NewNopPublisher returns a publisher that drops every event. It is
// used when no broker is configured.
func NewNopPublisher() Publisher {
	return nopPublisher{}
}

func (nopPublisher) PublishSyncCompleted(context.Context, SyncCompleted) error { return nil }

func (nopPublisher) Close() error { return nil }

// Ensure implementations satisfy the interface
var (
	_ Publisher = (*publisher)(nil)
	_ Publisher = nopPublisher{}
)
