package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/prior-auth-engine/internal/api"
	"github.com/prior-auth-engine/internal/audit"
	"github.com/prior-auth-engine/internal/config"
	"github.com/prior-auth-engine/internal/database"
	"github.com/prior-auth-engine/internal/domain"
	"github.com/prior-auth-engine/internal/engine"
	"github.com/prior-auth-engine/internal/llm"
	"github.com/prior-auth-engine/internal/repository"
	"github.com/prior-auth-engine/internal/rules"
	"github.com/prior-auth-engine/internal/submission"
)

func main() {
	// Load configuration
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger := newLogger(cfg.Logging)

	// Load the payer rule document; malformed criteria are fatal here.
	ruleStore, err := rules.LoadFile(cfg.Rules.Path, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load payer rules")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cache := newClassificationCache(cfg.Cache, logger)
	classifier := llm.NewClassifierClient(cfg.Collaborators.Classifier, cache, logger)
	generator := llm.NewGeneratorClient(cfg.Collaborators.Generator, logger)

	transport := submission.NewTransport(cfg.Collaborators.Status.Timeout, logger)
	tracker := submission.NewPollingTracker(
		cfg.Collaborators.Status.BaseURL,
		cfg.Collaborators.Status.Timeout,
		logger,
	)

	var (
		auditStore audit.Store
		records    domain.SubmissionStore
	)

	switch cfg.Audit.Backend {
	case "postgres":
		db, err := database.NewConnection(ctx, cfg.Database, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to database")
		}
		defer db.Close()

		runner, err := database.NewMigrationRunner(configManager.GetDatabaseURL(), cfg.Database.MigrationsPath, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create migration runner")
		}
		if err := runner.Up(); err != nil {
			logger.WithError(err).Fatal("Failed to run migrations")
		}
		runner.Close()

		auditStore, err = audit.NewPostgresStoreFromURL(configManager.GetDatabaseURL())
		if err != nil {
			logger.WithError(err).Fatal("Failed to open audit store")
		}

		records = repository.NewSubmissionRepository(db.Pool, logger)

	default:
		auditStore, err = audit.NewSQLiteStore(cfg.Audit.SQLitePath)
		if err != nil {
			logger.WithError(err).Fatal("Failed to open audit store")
		}
	}
	defer auditStore.Close()

	pipeline := engine.NewPipeline(
		logger,
		ruleStore,
		engine.NewExtractor(logger, classifier),
		engine.NewAnalyzer(logger),
		generator,
		transport,
		records,
		auditStore,
	)

	server := api.NewServer(cfg.Server, cfg.Logging.Level, logger, pipeline, records, tracker)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down")
		cancel()
	}()

	logger.WithFields(logrus.Fields{
		"host":  cfg.Server.Host,
		"port":  cfg.Server.Port,
		"rules": ruleStore.RuleCount(),
	}).Info("Starting prior authorization server")

	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}

	logger.Info("Server stopped")
}

// newLogger builds the process logger from logging configuration.
func newLogger(cfg domain.LoggingConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return logger
}

// newClassificationCache builds the classifier response cache. A Redis
// outage degrades to the in-memory cache rather than failing startup.
func newClassificationCache(cfg domain.CacheConfig, logger *logrus.Logger) llm.ClassificationCache {
	if cfg.Backend == "redis" {
		cache, err := llm.NewRedisCache(cfg)
		if err == nil {
			logger.Info("Using Redis classification cache")
			return cache
		}
		logger.WithError(err).Warn("Redis unavailable, falling back to in-memory cache")
	}
	return llm.NewMemoryCache(cfg.MaxEntries, cfg.DefaultTTL)
}
