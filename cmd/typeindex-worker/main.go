// Command typeindex-worker serves resolve requests queued on Kafka. Each
// IndexRequest read from the requests topic is answered with an
// IndexResponse on the results topic, keyed by request ID.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/internal/searcher/consumer"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/internal/vocab"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting typeindex worker", "workers", cfg.Indexer.Workers)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	shutdownMetrics := metrics.StartServer(cfg.Metrics)
	defer shutdownMetrics(context.Background())

	opts := []searcher.Option{
		searcher.WithMetrics(m),
		searcher.WithSpanLogging(cfg.Tracing.Enabled),
	}
	var db *postgres.Client
	if cfg.Postgres.Enabled {
		db, err = postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
	}
	// bbolt holds an exclusive file lock, so a worker sharing a host with
	// typeindexd needs its own vocab.boltPath or PostgreSQL.
	vocabularies, closeVocab, err := vocab.Open(ctx, cfg.Vocab, db)
	if err != nil {
		slog.Error("failed to open vocabulary store", "error", err)
		os.Exit(1)
	}
	defer closeVocab()
	if vocabularies != nil {
		opts = append(opts, searcher.WithVocabularies(vocabularies))
	}
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, result caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			opts = append(opts, searcher.WithCache(cache.New(redisClient, cfg.Redis.CacheTTL, m, cache.WithOpTimeout(cfg.Redis.OpTimeout))))
		}
	}

	events := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
	defer events.Close()
	collector := analytics.NewCollector(events, 100, 5*time.Second)
	collector.Start(ctx)
	defer collector.Close()
	opts = append(opts, searcher.WithEvents(collector))

	svc := searcher.NewService(cfg.Indexer, opts...)

	results := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexResults)
	defer results.Close()
	requests := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexRequests, consumer.HandleMessage(svc, results))
	defer requests.Close()

	slog.Info("worker ready, consuming from kafka",
		"topic", cfg.Kafka.Topics.IndexRequests,
		"results", cfg.Kafka.Topics.IndexResults,
		"group", cfg.Kafka.ConsumerGroup,
	)
	if err := requests.Start(ctx); err != nil {
		slog.Error("consumer error", "error", err)
	}

	slog.Info("typeindex worker stopped")
}
