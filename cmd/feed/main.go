package main

import (
	"context"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shubham-shewale/ticker-feed/cmd/feed/internal/api"
	"github.com/shubham-shewale/ticker-feed/cmd/feed/internal/auth"
	"github.com/shubham-shewale/ticker-feed/cmd/feed/internal/engine"
	"github.com/shubham-shewale/ticker-feed/cmd/feed/internal/gateway"
	"github.com/shubham-shewale/ticker-feed/cmd/feed/internal/hub"
	"github.com/shubham-shewale/ticker-feed/cmd/feed/internal/journal"
	"github.com/shubham-shewale/ticker-feed/cmd/feed/internal/repository"
	"github.com/shubham-shewale/ticker-feed/pkg/config"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	redisStore := repository.NewRedisStore(rdb, cfg.Engine.CacheTTL)

	// Watchlist source of truth: Redis sets by default, Postgres when configured
	var store repository.SubscriptionStore = redisStore
	if cfg.Store.Backend == "postgres" {
		pg, err := repository.NewPostgresStore(cfg.Postgres.DSN)
		if err != nil {
			logger.Fatal("Failed to connect to Postgres", zap.Error(err))
		}
		if err := pg.Migrate(context.Background()); err != nil {
			logger.Fatal("Failed to migrate Postgres schema", zap.Error(err))
		}
		store = pg
		defer pg.Close()
	}

	verifier := auth.NewVerifier(cfg.Auth.Secret, cfg.Auth.TokenTTL)

	wsHub := hub.NewHub(store, nil, cfg.Feed.Tickers, logger)

	sinks := []engine.Sink{wsHub, redisStore}
	var tickJournal *journal.Journal
	if cfg.Journal.Enabled {
		creator := journal.NewTopicCreator(logger, &journal.RealKafkaDialer{Dialer: kafka.DefaultDialer}, journal.RealClock{})
		creator.Create(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		tickJournal = journal.NewJournal(logger, cfg.Kafka.Brokers, cfg.Kafka.Topic)
		sinks = append(sinks, tickJournal)
	}

	priceEngine := engine.NewEngine(
		logger,
		cfg.Feed.Tickers,
		engine.RealRand{Rand: rand.New(rand.NewSource(time.Now().UnixNano()))},
		engine.RealClock{},
		cfg.Engine.TickPeriod,
		sinks...,
	)
	wsHub.SetSnapshotter(priceEngine)

	wsGateway := gateway.NewGateway(wsHub, verifier, store, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsGateway.HandleWS)
	api.NewServer(wsHub, store, redisStore, verifier, cfg.Feed.Tickers, logger).Register(mux)

	ctx, cancel := context.WithCancel(context.Background())
	go priceEngine.Run(ctx)

	srv := &http.Server{Addr: cfg.App.Port, Handler: mux}

	go func() {
		logger.Info("Server Started", zap.String("port", cfg.App.Port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("HTTP Error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("Shutdown signal received")
	cancel()
	srv.Shutdown(context.Background())

	if tickJournal != nil {
		// Flush the async Kafka buffer before exiting
		if err := tickJournal.Close(); err != nil {
			logger.Error("Error closing journal", zap.Error(err))
		}
	}
	if err := redisStore.Close(); err != nil {
		logger.Error("Error closing Redis", zap.Error(err))
	}
	logger.Info("Shutdown Complete")
}
