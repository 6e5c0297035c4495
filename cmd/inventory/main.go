package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"orderflow/internal/application/factories/infrastructure"
	"orderflow/internal/config"
	"orderflow/internal/consumer"
	"orderflow/internal/infrastructure/kafka"
	"orderflow/internal/infrastructure/postgres"
	"orderflow/internal/infrastructure/rabbit"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.New()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Metrics Server
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("Inventory metrics listening on :9091")
		http.ListenAndServe(":9091", mux)
	}()

	infraFactory := infrastructure.NewFactory(cfg)
	defer infraFactory.Close()

	pgPool, err := infraFactory.Postgres(ctx)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	store := postgres.NewStore(pgPool)

	publisher, err := infraFactory.Rabbit(ctx)
	if err != nil {
		logger.Error("failed to connect to rabbit", "error", err)
		os.Exit(1)
	}

	var mirror consumer.Mirror
	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(kafka.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		})
		defer producer.Close()
		mirror = producer
		logger.Info("firehose mirroring enabled", "topic", cfg.Kafka.Topic)
	}

	inv := consumer.NewInventory(store, publisher, mirror, cfg.Inventory.FailReservations)
	if cfg.Inventory.FailReservations {
		logger.Warn("fault injection enabled: all reservations will fail")
	}

	c := rabbit.NewConsumer(cfg.Rabbit.URL, rabbit.QueueOrderPlaced, "inventory-service")
	logger.Info("Inventory consumer started", "queue", rabbit.QueueOrderPlaced)

	if err := c.Run(ctx, inv.HandleDelivery); err != nil && ctx.Err() == nil {
		logger.Error("consumer stopped with error", "error", err)
		os.Exit(1)
	}

	logger.Info("inventory consumer exited")
}
