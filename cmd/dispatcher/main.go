package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/studysync/internal/config"
	"example.com/studysync/internal/logging"
	"example.com/studysync/internal/outbox"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger, err := logging.New("outbox-dispatcher", cfg.LogLevel)
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()

	producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
	defer producer.Close()

	reg := prometheus.NewRegistry()
	queue := outbox.NewPostgresQueue(pool, cfg.OutboxMaxAttempts, cfg.OutboxBaseDelay)
	dispatcher := outbox.NewDispatcher(queue, producer, outbox.NewMetrics(reg), logger, cfg.OutboxPollInterval, cfg.OutboxBatchSize)

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
	go func() {
		logger.Info().Str("address", cfg.MetricsAddress).Msg("dispatcher metrics listening")
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()

	go dispatcher.Start(ctx)
	logger.Info().
		Dur("interval", cfg.OutboxPollInterval).
		Int("batch_size", cfg.OutboxBatchSize).
		Int("max_attempts", cfg.OutboxMaxAttempts).
		Msg("outbox dispatcher started")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info().Msg("dispatcher received shutdown signal")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("metrics server shutdown error")
	}

	dispatcher.Wait()
}
