// Package kafka provides producer and consumer clients over
// segmentio/kafka-go. Producers encode event values as JSON; consumers hand
// raw messages to a MessageHandler and commit only what was handled.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/config"
)

// Event is the unit of data published to Kafka. Key is used for partition
// hashing and Value is JSON-serialised.
type Event struct {
	Key   string
	Value any
}

// Producer publishes JSON-encoded events to one topic.
type Producer struct {
	writer  *kafka.Writer
	brokers []string
	logger  *slog.Logger
}

// NewProducer creates a Producer for topic.
func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              100,
		BatchTimeout:           10 * time.Millisecond,
		MaxAttempts:            3,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Producer{
		writer:  w,
		brokers: cfg.Brokers,
		logger:  slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

// Publish writes a single event synchronously.
func (p *Producer) Publish(ctx context.Context, event Event) error {
	return p.PublishBatch(ctx, []Event{event})
}

// PublishBatch writes events in a single call.
func (p *Producer) PublishBatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	messages := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		value, err := json.Marshal(event.Value)
		if err != nil {
			return fmt.Errorf("marshaling event %q: %w", event.Key, err)
		}
		messages = append(messages, kafka.Message{
			Key:   []byte(event.Key),
			Value: value,
		})
	}
	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		p.logger.Error("failed to publish", "count", len(messages), "error", err)
		return fmt.Errorf("publishing %d messages to kafka: %w", len(messages), err)
	}
	p.logger.Debug("published", "count", len(messages))
	return nil
}

// Close flushes pending writes and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Ping dials the first reachable broker. It backs the health check.
func (p *Producer) Ping(ctx context.Context) error {
	var lastErr error
	for _, broker := range p.brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		return conn.Close()
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no brokers configured")
	}
	return fmt.Errorf("pinging kafka: %w", lastErr)
}
