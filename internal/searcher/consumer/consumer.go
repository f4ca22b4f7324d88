// Package consumer serves resolve requests arriving on Kafka. Each request
// is answered on the results topic, keyed by request ID, whether it
// succeeded or not.
package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/internal/searcher"
	apperrors "github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/proto"
)

// Resolver is satisfied by *searcher.Service.
type Resolver interface {
	Resolve(ctx context.Context, source string, req *proto.IndexRequest) (*proto.IndexResponse, error)
}

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// HandleMessage returns a MessageHandler that resolves one IndexRequest per
// message and publishes the IndexResponse to results. Client errors and
// undecodable messages are answered and committed; server-side failures are
// returned so the consumer retries them.
func HandleMessage(svc Resolver, results Publisher) kafka.MessageHandler {
	log := slog.Default().With("component", "resolve-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		req, err := kafka.DecodeJSON[proto.IndexRequest](value)
		if err != nil {
			log.Error("failed to decode index request", "error", err, "key", string(key))
			return publish(ctx, results, &proto.IndexResponse{
				RequestID: string(key),
				Error:     err.Error(),
			})
		}
		if req.RequestID == "" {
			req.RequestID = string(key)
		}
		ctx = logger.WithRequestID(ctx, req.RequestID)

		resp, err := svc.Resolve(ctx, searcher.SourceKafka, &req)
		if err != nil {
			if apperrors.HTTPStatusCode(err) >= http.StatusInternalServerError {
				return fmt.Errorf("resolving request %s: %w", req.RequestID, err)
			}
			resp = &proto.IndexResponse{RequestID: req.RequestID, Error: err.Error()}
		}
		return publish(ctx, results, resp)
	}
}

func publish(ctx context.Context, results Publisher, resp *proto.IndexResponse) error {
	if err := results.Publish(ctx, kafka.Event{Key: resp.RequestID, Value: resp}); err != nil {
		return fmt.Errorf("publishing response %s: %w", resp.RequestID, err)
	}
	return nil
}
