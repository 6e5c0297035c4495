package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"orderflow/internal/config"
	"orderflow/internal/consumer"
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

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("Notification metrics listening on :9092")
		http.ListenAndServe(":9092", mux)
	}()

	n := consumer.NewNotification()
	c := rabbit.NewConsumer(cfg.Rabbit.URL, rabbit.QueueInventoryReserved, "notification-service")
	logger.Info("Notification consumer started", "queue", rabbit.QueueInventoryReserved)

	if err := c.Run(ctx, n.HandleDelivery); err != nil && ctx.Err() == nil {
		logger.Error("consumer stopped with error", "error", err)
		os.Exit(1)
	}

	logger.Info("notification consumer exited")
}
