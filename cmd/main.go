package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"store-sentinel/internal/api"
	"store-sentinel/internal/catalog"
	"store-sentinel/internal/config"
	"store-sentinel/internal/engine"
	"store-sentinel/internal/ingest"
	"store-sentinel/internal/logging"
	"store-sentinel/internal/notify"
	"store-sentinel/internal/sink"
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	// Product catalog. Weight and barcode checks are skipped without one,
	// so a missing catalog is a warning, not a failure.
	var cat *catalog.Catalog
	if cfg.Catalog.Path != "" {
		cat, err = catalog.Load(cfg.Catalog.Path)
		if err != nil {
			logger.Warnf("Catalog %s unavailable, weight checks disabled: %v", cfg.Catalog.Path, err)
			cat = nil
		} else {
			logger.Infof("Loaded catalog with %d products", cat.Len())
		}
	} else {
		logger.Warn("No CATALOG_PATH configured, weight checks disabled")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	eng := engine.New(cfg, logger, cat)

	// File sink is the primary output and must be writable.
	fileSink, err := sink.NewFileSink(cfg.Output.Dir)
	if err != nil {
		logger.Errorf("Failed to open output dir %s: %v", cfg.Output.Dir, err)
		log.Fatalf("Output sink failed: %v", err)
	}
	eng.AddSink(fileSink)

	if cfg.Sink.PostgresDSN != "" {
		pg, err := sink.NewPostgresSink(ctx, cfg.Sink.PostgresDSN)
		if err != nil {
			logger.Errorf("Failed to connect to database: %v", err)
			log.Fatalf("Database connection failed: %v", err)
		}
		eng.AddSink(pg)
	}

	if cfg.Telegram.BotToken != "" {
		tg, err := notify.NewTelegram(ctx, cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger)
		if err != nil {
			logger.Errorf("Telegram notifier disabled: %v", err)
		} else {
			eng.AddSink(tg)
		}
	}

	var src ingest.Source
	switch cfg.Source.Mode {
	case config.SourceKafka:
		src = ingest.NewKafkaSource(cfg.Source.KafkaBrokers, cfg.Source.KafkaTopic,
			cfg.Source.KafkaGroupID, &eng.IngestCounters, logger)
		logger.Infof("Kafka source initialized with topic: %s", cfg.Source.KafkaTopic)
	case config.SourceFile:
		src = ingest.NewFileSource(cfg.Source.File, &eng.IngestCounters, logger)
		logger.Infof("Replaying records from %s", cfg.Source.File)
	default:
		src = ingest.NewTCPSource(cfg.Source.TCPAddr, cfg.Source.MaxReconnects,
			cfg.Source.ReconnectDelay, &eng.IngestCounters, logger)
		logger.Infof("TCP source initialized on %s", cfg.Source.TCPAddr)
	}

	// Start API server
	router, feed := api.NewRouter(eng, logger, cfg)
	defer feed.Close()
	go func() {
		logger.Infof("Starting API server on %s", cfg.API.Port)
		if err := router.Run(cfg.API.Port); err != nil {
			logger.Errorf("API server failed: %v", err)
		}
	}()

	if err := eng.Run(ctx, src); err != nil {
		logger.Errorf("Run finished with error: %v", err)
		os.Exit(1)
	}
}
