package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/resilience"
)

// MessageHandler is invoked for each message. Returning an error leaves the
// message uncommitted after retries are exhausted; wrap with
// resilience.Permanent to skip retries.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// Consumer reads one topic as part of a consumer group.
type Consumer struct {
	reader  *kafka.Reader
	handler MessageHandler
	retry   resilience.RetryConfig
	logger  *slog.Logger
}

// NewConsumer creates a Consumer for topic. The group starts from the
// earliest offset so requests queued before the first start are served.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	return &Consumer{
		reader:  r,
		handler: handler,
		retry:   resilience.RetryConfig{MaxAttempts: 3},
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic),
	}
}

// Start consumes until ctx is cancelled. Handler failures are retried with
// backoff; a message that still fails is logged and committed so one bad
// message cannot stall its partition.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	defer c.logger.Info("consumer stopped")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			c.logger.Error("failed to fetch message", "error", err)
			continue
		}
		log := c.logger.With("partition", msg.Partition, "offset", msg.Offset)
		log.Debug("message received", "key", string(msg.Key), "value_size", len(msg.Value))

		err = resilience.Retry(ctx, "kafka-handle", c.retry, func() error {
			return c.handler(ctx, msg.Key, msg.Value)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error("failed to process message, skipping", "error", err)
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			log.Error("failed to commit message", "error", err)
		}
	}
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
