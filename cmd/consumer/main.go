package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"example.com/studysync/internal/app"
	"example.com/studysync/internal/config"
	"example.com/studysync/internal/consumer"
	"example.com/studysync/internal/logging"
	"example.com/studysync/internal/reconcile"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger, err := logging.New("login-consumer", cfg.LogLevel)
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	components, err := app.Build(ctx, cfg, logger, reg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to wire reconciler")
	}
	defer components.Close()

	handler := consumer.NewReconcileHandler(components.Reconciler, func() backoff.BackOff {
		return reconcile.NewBackOff(cfg.RetryMaxElapsed)
	}, logger)

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
	go func() {
		logger.Info().Str("address", cfg.MetricsAddress).Msg("consumer metrics listening")
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:         cfg.KafkaBrokers,
		GroupID:         cfg.ConsumerGroupID,
		Topic:           cfg.LoginTopic,
		MinBytes:        1,
		MaxBytes:        1e6,
		CommitInterval:  time.Second,
		ReadLagInterval: -1,
	})
	defer reader.Close()

	proc := consumer.NewProcessor(reader, handler,
		consumer.WithLogger(logger),
		consumer.WithMetrics(consumer.NewMetrics(reg)),
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		logger.Info().Str("topic", cfg.LoginTopic).Str("group", cfg.ConsumerGroupID).Msg("consumer started")
		if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("consumer stopped with error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info().Msg("consumer shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("metrics server shutdown error")
	}

	<-done
}
