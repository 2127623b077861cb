package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	goredis "github.com/redis/go-redis/v9"

	"chronos/internal/adapters/clickhouse"
	"chronos/internal/adapters/config"
	"chronos/internal/adapters/errors/noop"
	"chronos/internal/adapters/errors/sentry"
	"chronos/internal/adapters/kafka"
	adapterredis "chronos/internal/adapters/redis"
	"chronos/internal/adapters/telegram"
	"chronos/internal/adapters/websocket"
	"chronos/internal/api"
	"chronos/internal/api/health"
	"chronos/internal/audit"
	"chronos/internal/domain/regime"
	"chronos/internal/events"
	"chronos/internal/metrics"
	chrepo "chronos/internal/repository/clickhouse"
	redisrepo "chronos/internal/repository/redis"
	"chronos/internal/workers"
	"chronos/pkg/errors"
	"chronos/pkg/logger"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	log := logger.Get()
	log.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Env)

	errorTracker := initErrorTracker(cfg, log)
	logger.SetErrorTracker(errorTracker)

	metrics.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Optional backends.
	var chClient *clickhouse.Client
	if cfg.ClickHouse.Enabled {
		chClient, err = clickhouse.NewClient(cfg.ClickHouse)
		if err != nil {
			log.Fatalf("Failed to connect to ClickHouse: %v", err)
		}
		defer chClient.Close()
		log.Info("ClickHouse connected")
	}

	var redisClient *adapterredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = adapterredis.NewClient(cfg.Redis)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		log.Info("Redis connected")
	}

	var producer *kafka.Producer
	var publisher *events.Publisher
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(kafka.ProducerConfig{Brokers: cfg.Kafka.Brokers})
		defer producer.Close()
		publisher = events.NewPublisher(producer, log)
		log.Info("Kafka producer initialized")
	}

	var notifier *telegram.Notifier
	if cfg.Telegram.Enabled {
		notifier, err = telegram.NewNotifier(telegram.Config{
			Token:   cfg.Telegram.BotToken,
			ChatIDs: cfg.Telegram.ChatIDs,
		}, log)
		if err != nil {
			log.Fatalf("Failed to initialize Telegram notifier: %v", err)
		}
		log.Info("Telegram notifier initialized")
	}

	// Audit fan-out.
	recorderOpts := []audit.Option{audit.WithQueueSize(cfg.Audit.QueueSize)}
	var regimeRepo *chrepo.RegimeRepository
	if chClient != nil {
		regimeRepo = chrepo.NewRegimeRepository(chClient.Conn())
		regimeRepo.Start(ctx)
		recorderOpts = append(recorderOpts, audit.WithRepository(regimeRepo))
	}
	if publisher != nil {
		recorderOpts = append(recorderOpts, audit.WithPublisher(publisher))
	}
	if notifier != nil {
		recorderOpts = append(recorderOpts, audit.WithNotifier(notifier))
	}
	recorder := audit.NewRecorder(log, recorderOpts...)
	recorder.Start(ctx)

	// Regime registry.
	service, err := regime.NewService(cfg.Regime.Domain(), recorder, log.SugaredLogger, errorTracker)
	if err != nil {
		log.Fatalf("Failed to build regime service: %v", err)
	}
	for _, symbol := range cfg.MarketData.Symbols {
		if err := service.RegisterSymbol(symbol); err != nil {
			log.Fatalf("Failed to register symbol %s: %v", symbol, err)
		}
	}
	metrics.RegisterRegistryCollector(metrics.NewRegistryCollector(service, cfg.Workers.StalenessMaxAge))

	// Market data ingest.
	var stream *websocket.BinanceKlineClient
	if cfg.MarketData.BinanceWSEnabled {
		stream, err = websocket.NewBinanceKlineClient(
			cfg.MarketData.BinanceWSURL,
			cfg.MarketData.Symbols,
			cfg.MarketData.KlineInterval,
			func(symbol string, bar regime.Bar) {
				if _, err := service.UpdateRegime(symbol, bar); err != nil {
					log.Errorw("Regime update failed", "symbol", symbol, "error", err)
				}
			},
			log,
		)
		if err != nil {
			log.Fatalf("Failed to build Binance stream: %v", err)
		}
		if err := stream.Start(ctx); err != nil {
			log.Fatalf("Failed to start Binance stream: %v", err)
		}
	}

	// Background workers.
	scheduler := workers.NewScheduler()
	scheduler.RegisterWorker(workers.NewStalenessWorker(
		service, stalePublisher(publisher),
		cfg.Workers.StalenessSweepInterval, cfg.Workers.StalenessMaxAge,
	))
	if redisClient != nil {
		cache := redisrepo.NewRegimeCache(redisClient.Client(), cfg.Redis.SnapshotTTL)
		scheduler.RegisterWorker(workers.NewSnapshotWorker(service, cache, cfg.Workers.SnapshotFlushInterval))
	}
	if err := scheduler.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	// HTTP surface.
	healthHandler := health.New(
		log,
		conn(chClient),
		rdb(redisClient),
		service,
		cfg.Workers.StalenessMaxAge,
		cfg.App.Name,
		version,
	)
	server := api.NewServer(api.ServerConfig{
		Addr:         cfg.HTTP.Addr,
		ServiceName:  cfg.App.Name,
		Version:      version,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}, healthHandler, log)

	go func() {
		if err := server.Start(); err != nil {
			log.Errorf("HTTP server error: %v", err)
			cancel()
		}
	}()

	log.Info("System initialized successfully")

	waitForShutdown(ctx, cancel, log)

	// Graceful teardown in reverse start order.
	if stream != nil {
		if err := stream.Stop(); err != nil {
			log.Warnf("Stream shutdown: %v", err)
		}
	}
	if err := scheduler.Stop(); err != nil {
		log.Warnf("Scheduler shutdown: %v", err)
	}
	recorder.Stop()
	if cfg.Audit.CSVDirectory != "" {
		if paths, err := recorder.ExportCSV(cfg.Audit.CSVDirectory); err != nil {
			log.Warnf("CSV export failed: %v", err)
		} else {
			log.Infow("Audit logs exported", "files", paths)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if regimeRepo != nil {
		if err := regimeRepo.Stop(shutdownCtx); err != nil {
			log.Warnf("Decision writer shutdown: %v", err)
		}
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warnf("HTTP shutdown: %v", err)
	}

	if err := errorTracker.Flush(shutdownCtx); err != nil {
		log.Warnf("Failed to flush error tracker: %v", err)
	}

	log.Info("Shutdown complete")
}

// initErrorTracker initializes error tracking (Sentry or no-op)
func initErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return noop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return noop.New()
	}

	log.Info("Error tracking initialized (Sentry)")
	return tracker
}

// stalePublisher keeps the worker's interface value nil when Kafka is off.
func stalePublisher(p *events.Publisher) workers.StalePublisher {
	if p == nil {
		return nil
	}
	return p
}

func conn(c *clickhouse.Client) driver.Conn {
	if c == nil {
		return nil
	}
	return c.Conn()
}

func rdb(c *adapterredis.Client) *goredis.Client {
	if c == nil {
		return nil
	}
	return c.Client()
}

// waitForShutdown blocks until a termination signal or context cancellation.
func waitForShutdown(ctx context.Context, cancel context.CancelFunc, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case <-ctx.Done():
		log.Info("Context cancelled")
	}
	cancel()

	// Give in-flight updates a moment to land in the audit queue.
	time.Sleep(100 * time.Millisecond)
}
