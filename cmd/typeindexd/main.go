// Command typeindexd serves pattern resolution over HTTP and JSON-over-TCP
// RPC.
//
// Redis (result cache), PostgreSQL (named vocabularies and analytics
// snapshots), a bbolt vocabulary file and Kafka (analytics events) are each
// optional and enabled in the config file.
//
// Usage:
//
//	go run ./cmd/typeindexd [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/internal/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/internal/vocab"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/pkg/rpc"
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
	slog.Info("starting typeindex service",
		"port", cfg.Server.Port,
		"glob", cfg.Indexer.Glob,
		"workers", cfg.Indexer.Workers,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	shutdownMetrics := metrics.StartServer(cfg.Metrics)
	checker := health.NewChecker(2 * time.Second)
	checker.Require("segments", health.WritableDir(cfg.Indexer.DataDir))

	opts := []searcher.Option{
		searcher.WithMetrics(m),
		searcher.WithSpanLogging(cfg.Tracing.Enabled),
	}

	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, result caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			opts = append(opts, searcher.WithCache(cache.New(redisClient, cfg.Redis.CacheTTL, m, cache.WithOpTimeout(cfg.Redis.OpTimeout))))
			checker.Optional("redis", health.Ping(redisClient))
			slog.Info("result cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	var (
		db        *postgres.Client
		snapshots *analytics.SnapshotStore
	)
	if cfg.Postgres.Enabled {
		db, err = postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		snapshots = analytics.NewSnapshotStore(db)
		if err := snapshots.Migrate(ctx); err != nil {
			slog.Error("analytics migration failed", "error", err)
			os.Exit(1)
		}
		checker.Require("postgres", health.Ping(db))
	}

	vocabularies, closeVocab, err := vocab.Open(ctx, cfg.Vocab, db)
	if err != nil {
		slog.Error("failed to open vocabulary store", "error", err)
		os.Exit(1)
	}
	defer closeVocab()
	if vocabularies != nil {
		opts = append(opts, searcher.WithVocabularies(vocabularies))
		slog.Info("named vocabularies enabled", "postgres", db != nil, "bolt_path", cfg.Vocab.BoltPath)

		if cfg.Vocab.WatchDir != "" {
			watcher, err := vocab.NewWatcher(cfg.Vocab.WatchDir, vocabularies, cfg.Vocab.WatchDebounce)
			if err != nil {
				slog.Error("failed to watch vocabulary directory", "error", err)
				os.Exit(1)
			}
			if err := watcher.Sync(ctx); err != nil {
				slog.Warn("initial vocabulary import incomplete", "error", err)
			}
			go watcher.Run(ctx)
		}
	} else if cfg.Vocab.WatchDir != "" {
		slog.Warn("vocab.watchDir ignored: no vocabulary store configured")
	}

	aggregator := analytics.NewAggregator()
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer producer.Close()
		collector := analytics.NewCollector(producer, 100, 5*time.Second)
		collector.Start(ctx)
		defer collector.Close()
		opts = append(opts, searcher.WithEvents(collector))

		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, analytics.HandleEvent(aggregator))
		defer consumer.Close()
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("analytics consumer error", "error", err)
			}
		}()
		checker.Optional("kafka", health.Ping(producer))
		slog.Info("analytics pipeline enabled", "topic", cfg.Kafka.Topics.AnalyticsEvents)
	} else {
		opts = append(opts, searcher.WithEvents(aggregator))
	}
	if snapshots != nil {
		go snapshots.Run(ctx, aggregator, time.Minute)
	}

	svc := searcher.NewService(cfg.Indexer, opts...)

	var rpcServer *rpc.Server
	if cfg.RPC.Enabled {
		rpcServer = rpc.NewServer()
		searcher.RegisterRPC(rpcServer, svc)
		go func() {
			addr := fmt.Sprintf(":%d", cfg.RPC.Port)
			if err := rpcServer.Serve(addr); err != nil {
				slog.Error("rpc server error", "error", err)
			}
		}()
	}

	limiter := ratelimit.New(time.Minute)
	defer limiter.Stop()

	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: handler.NewRouter(cfg.Server, handler.RouterDeps{
			Handler:   handler.New(svc, cfg.Server.MaxBodyBytes),
			Health:    checker,
			Metrics:   m,
			Analytics: analytics.NewHandler(aggregator),
			Limiter:   limiter,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if rpcServer != nil {
			rpcServer.Stop()
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if err := shutdownMetrics(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown error", "error", err)
		}
	}()

	slog.Info("typeindex service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("typeindex service stopped")
}
