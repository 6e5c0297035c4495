package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"orderflow/internal/analytics"
	"orderflow/internal/config"
	"orderflow/internal/infrastructure/kafka"

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
	if len(cfg.Kafka.Brokers) == 0 {
		logger.Error("KAFKA_BROKERS is required for the analytics consumer")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("Analytics metrics listening on :9094")
		http.ListenAndServe(":9094", mux)
	}()

	c := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID)
	defer c.Close()

	agg := analytics.NewAggregator()
	logger.Info("Analytics consumer started", "topic", cfg.Kafka.Topic, "group_id", cfg.Kafka.GroupID)

	flushEvery := time.Duration(cfg.Analytics.FlushInterval) * time.Second
	go func() {
		ticker := time.NewTicker(flushEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := agg.Flush(cfg.Analytics.MetricsPath); err != nil {
					logger.Error("flush snapshot", "error", err)
				}
			}
		}
	}()

	for {
		msg, err := c.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.Error("failed to read message", "error", err)
			time.Sleep(1 * time.Second)
			continue
		}
		agg.Observe(msg.Value)
	}

	if err := agg.Flush(cfg.Analytics.MetricsPath); err != nil {
		logger.Error("final flush", "error", err)
	}
	logger.Info("analytics consumer exited")
}
