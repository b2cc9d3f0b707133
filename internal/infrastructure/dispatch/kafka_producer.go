// Package dispatch publishes chat URL events for the external SMS
// dispatcher. The chat access service never sends messages itself; it emits
// an event carrying the fresh chat URL and the dispatcher does the rest.
package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/dmirchev92/server-maystorfix-sub010/internal/config"
	"github.com/dmirchev92/server-maystorfix-sub010/internal/domain/service"
	"github.com/dmirchev92/server-maystorfix-sub010/pkg/errors"
	"github.com/dmirchev92/server-maystorfix-sub010/pkg/logger"
)

// KafkaPublisher implements DispatchPublisher on a kafka topic. Events are
// keyed by provider id so per-provider ordering holds within a partition.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger logger.Logger
}

// NewKafkaPublisher creates the publisher.
func NewKafkaPublisher(cfg *config.DispatchConfig, log logger.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: 10 * time.Second,
	}
	return &KafkaPublisher{
		writer: writer,
		logger: log.WithComponent("dispatch_publisher"),
	}
}

// Publish emits one dispatch event.
func (p *KafkaPublisher) Publish(ctx context.Context, event service.DispatchEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "failed to encode dispatch event")
	}

	msg := kafka.Message{
		Key:   []byte(event.ProviderID),
		Value: payload,
		Time:  event.OccurredAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrap(err, "failed to publish dispatch event")
	}

	p.logger.Debug(ctx, "dispatch event published",
		logger.String("provider_id", event.ProviderID),
		logger.String("reason", event.Reason),
	)
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NoopPublisher discards events. Used when dispatch is disabled and in tests.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, service.DispatchEvent) error { return nil }
