// Command httpd runs the newsclean service: rule management, article
// ingest and classification, reclassification on rule changes, and the
// stats API.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/orbitwire/newsclean/internal/aggregate"
	"github.com/orbitwire/newsclean/internal/api"
	"github.com/orbitwire/newsclean/internal/classify"
	"github.com/orbitwire/newsclean/internal/config"
	"github.com/orbitwire/newsclean/internal/configload"
	"github.com/orbitwire/newsclean/internal/delivery"
	"github.com/orbitwire/newsclean/internal/logging"
	"github.com/orbitwire/newsclean/internal/processor"
	"github.com/orbitwire/newsclean/internal/reclassify"
	"github.com/orbitwire/newsclean/internal/rules"
	"github.com/orbitwire/newsclean/internal/storage"
	"github.com/orbitwire/newsclean/internal/telemetry"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load(configload.GetConfigPath("config.yml"))
	if err != nil {
		logging.Must(logging.Config{Level: "info", Format: "json"}).
			Fatal("load config", logging.Error(err))
	}

	logger := logging.Must(logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Development: cfg.Service.Debug,
	})
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("starting newsclean",
		logging.String("version", cfg.Service.Version),
		logging.Int("port", cfg.Service.Port))

	if err = run(cfg, logger); err != nil {
		logger.Fatal("service failed", logging.Error(err))
	}
}

func run(cfg *config.Config, logger logging.Logger) error {
	tel := telemetry.NewProvider()

	sqlStore, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = sqlStore.Close()
	}()

	ruleStore := rules.NewStore(logger.With(logging.String("component", "rules")), sqlStore)
	persisted, version, err := sqlStore.LoadRules(context.Background())
	if err != nil {
		return err
	}
	if err = ruleStore.Seed(persisted, version); err != nil {
		return err
	}
	tel.SetRuleSet(ruleStore.Version(), ruleStore.Snapshot().EnabledCount())

	agg := aggregate.New(logger.With(logging.String("component", "aggregate")))
	articles, err := sqlStore.ListAll(context.Background())
	if err != nil {
		return err
	}
	agg.Recompute(articles)

	var notifier classify.Notifier
	var redisNotifier *delivery.RedisNotifier
	if cfg.Redis.Enabled {
		redisNotifier, err = delivery.NewRedisNotifier(
			cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.Database,
			cfg.Redis.ChannelCleaned,
			logger.With(logging.String("component", "delivery")))
		if err != nil {
			return err
		}
		defer func() {
			_ = redisNotifier.Close()
		}()
		notifier = redisNotifier
	}

	classifier := classify.New(ruleStore, sqlStore, agg, notifier, tel,
		logger.With(logging.String("component", "classify")))

	ingestor := processor.NewIngestor(sqlStore, classifier, agg, tel,
		cfg.Service.Concurrency, cfg.Service.IngestQueueSize,
		logger.With(logging.String("component", "ingest")))

	limiter := processor.NewRateLimiter(cfg.Reclassify.RatePerSecond, 0, logger)
	batch := processor.NewBatchProcessor(classifier, cfg.Reclassify.Concurrency, limiter,
		logger.With(logging.String("component", "batch")))

	scheduler := reclassify.New(ruleStore, sqlStore, batch,
		cfg.Reclassify.Debounce, cfg.Reclassify.JobTTL, tel,
		logger.With(logging.String("component", "reclassify")))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ingestor.Start(ctx)
	go scheduler.Run(ctx)
	if notifier != nil {
		go redeliverLoop(ctx, classifier, cfg.Redis.RetryInterval, logger)
	}

	handler := api.NewHandler(ruleStore, sqlStore, ingestor, agg,
		cfg.Stats.TrendWindowDays, cfg.Service.Name, cfg.Service.Version,
		logger.With(logging.String("component", "api")))

	server := api.NewServer(handler, api.ServerConfig{
		Port:  cfg.Service.Port,
		Debug: cfg.Service.Debug,
	}, tel.Handler())

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err = <-serverErrors:
		return err
	case sig := <-shutdown:
		logger.Info("shutdown signal received", logging.String("signal", sig.String()))
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err = server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	cancel()
	ingestor.Stop()

	logger.Info("server stopped gracefully")
	return nil
}

// redeliverLoop periodically retries delivery of cleaned articles whose
// earlier publish failed.
func redeliverLoop(ctx context.Context, classifier *classify.Classifier, interval time.Duration, logger logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := classifier.RedeliverUnsent(ctx); err != nil {
				logger.Warn("delivery retry sweep failed", logging.Error(err))
			}
		}
	}
}

func openStorage(cfg *config.Config) (*storage.SQLStore, error) {
	dsn := cfg.Database.DSN
	if cfg.Database.Driver == "postgres" {
		dsn = cfg.Database.PostgresDSN()
	}

	return storage.Open(storage.Config{
		Driver:          cfg.Database.Driver,
		DSN:             dsn,
		MaxOpenConns:    cfg.Database.MaxConnections,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
}
