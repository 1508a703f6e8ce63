package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"census/internal/citizens/cache"
	"census/internal/citizens/events"
	citizensmetrics "census/internal/citizens/metrics"
	"census/internal/citizens/service"
	"census/internal/citizens/store"
	"census/internal/health"
	"census/internal/platform/config"
	"census/internal/platform/database"
	"census/internal/platform/httpserver"
	"census/internal/platform/kafka"
	"census/internal/platform/logger"
	httpmetrics "census/internal/platform/metrics"
	"census/internal/platform/redis"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "census: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	checks := map[string]health.CheckFunc{}
	var (
		reader   service.Reader
		txRunner service.StoreTx
	)
	if cfg.Database.UsesMemoryStore() {
		mem := store.NewMemory()
		reader, txRunner = mem, newCitizensMemoryTx(mem)
		log.WarnContext(ctx, "using in-memory store; data is lost on restart")
	} else {
		db, err := database.Open(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		if cfg.Database.Migrate {
			if err := database.Migrate(ctx, db, log); err != nil {
				return err
			}
		}
		pg := store.NewPostgres(db)
		reader, txRunner = pg, newCitizensPostgresTx(db, cfg.Database.TxTimeout)
		checks["postgres"] = pg.Ping
	}

	opts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(citizensmetrics.New(reg)),
	}

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		checks["redis"] = redisClient.Health
		opts = append(opts, service.WithStatsCache(cache.New(redisClient.Client,
			cache.WithTTL(cfg.Redis.StatsTTL),
			cache.WithLogger(log),
			cache.WithMetrics(cache.NewMetrics(reg)),
		)))
		log.InfoContext(ctx, "stats cache enabled", "ttl", cfg.Redis.StatsTTL)
	}

	kafkaClient, err := kafka.New(ctx, cfg.Kafka)
	if err != nil {
		return err
	}
	if kafkaClient != nil {
		defer kafkaClient.Close()
		if err := kafka.EnsureTopic(ctx, kafkaClient, cfg.Kafka); err != nil {
			return err
		}
		checks["kafka"] = kafkaClient.Ping
		opts = append(opts, service.WithEventPublisher(events.NewPublisher(kafkaClient, cfg.Kafka.Topic)))
		log.InfoContext(ctx, "event publishing enabled", "topic", cfg.Kafka.Topic)
	}

	svc := service.New(reader, txRunner, opts...)
	router := newRouter(routerDeps{
		service:  svc,
		logger:   log,
		metrics:  httpmetrics.New(reg),
		gatherer: reg,
		checks:   checks,
		server:   cfg.Server,
	})

	srv := httpserver.New(cfg.Server, router)
	errCh := make(chan error, 1)
	go func() {
		log.InfoContext(ctx, "starting census", "addr", cfg.Server.Addr, "store", cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
