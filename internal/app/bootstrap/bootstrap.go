package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	exceptionservice "waivery/contexts/remediation/exception-service"
	postgresadapter "waivery/contexts/remediation/exception-service/adapters/postgres"
	redisadapter "waivery/contexts/remediation/exception-service/adapters/redis"
	"waivery/contexts/remediation/exception-service/adapters/upstream"
	"waivery/contexts/remediation/exception-service/application"
	workerapp "waivery/contexts/remediation/exception-service/application/workers"
	"waivery/contexts/remediation/exception-service/ports"
	"waivery/internal/platform/config"
	"waivery/internal/platform/db"
	"waivery/internal/platform/httpserver"
	"waivery/internal/platform/messaging"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

type APIApp struct {
	server     *httpserver.Server
	postgres   *db.Postgres
	redis      *redis.Client
	exceptions exceptionservice.Module
	logger     *slog.Logger
}

type WorkerApp struct {
	postgres     *db.Postgres
	exceptions   exceptionservice.Module
	sweeper      *workerapp.ExpirationSweeper
	outboxRelay  workerapp.OutboxRelay
	cfg          config.Config
	pollInterval time.Duration
	logger       *slog.Logger
}

func BuildAPI() (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "api")
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}

	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	if err := postgresadapter.AutoMigrate(pg.DB); err != nil {
		_ = pg.Close()
		return nil, err
	}

	var redisClient *redis.Client
	var pendingSink ports.PendingCountSink
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pendingSink = redisadapter.NewPendingCountCache(redisClient)
	}

	module, err := buildModule(pg, pendingSink, cfg, logger)
	if err != nil {
		_ = pg.Close()
		return nil, err
	}

	if err := module.SeedPendingCount(context.Background()); err != nil {
		_ = pg.Close()
		return nil, err
	}

	server := httpserver.New(module, logger, normalizeAddr(cfg.HTTPPort))
	return &APIApp{
		server:     server,
		postgres:   pg,
		redis:      redisClient,
		exceptions: module,
		logger:     logger,
	}, nil
}

func BuildWorker() (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "worker")
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}

	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}

	kafka, err := messaging.NewKafka(cfg.KafkaBrokers, logger)
	if err != nil {
		_ = pg.Close()
		return nil, err
	}

	module, err := buildModule(pg, nil, cfg, logger)
	if err != nil {
		_ = pg.Close()
		return nil, err
	}

	repo := postgresadapter.NewRepository(pg.DB, logger)
	return &WorkerApp{
		postgres:   pg,
		exceptions: module,
		sweeper: &workerapp.ExpirationSweeper{
			Service: module.Service,
			Repo:    repo,
			Outbox:  repo,
			Clock:   postgresadapter.SystemClock{},
			IDGen:   postgresadapter.UUIDGenerator{},
			Logger:  logger,

			DisableReminders: !cfg.EnableExpiryReminders,
		},
		outboxRelay: workerapp.OutboxRelay{
			Outbox:    repo,
			Publisher: kafka,
			Clock:     postgresadapter.SystemClock{},
			Topic:     application.TopicExceptionTransitions,
			BatchSize: 100,
			Logger:    logger,
		},
		cfg:          cfg,
		pollInterval: cfg.WorkerPollInterval,
		logger:       logger,
	}, nil
}

func buildModule(pg *db.Postgres, pendingSink ports.PendingCountSink, cfg config.Config, logger *slog.Logger) (exceptionservice.Module, error) {
	if strings.TrimSpace(cfg.FindingAPIURL) == "" {
		return exceptionservice.Module{}, errors.New("FINDING_API_URL is required")
	}
	if strings.TrimSpace(cfg.IdentityAPIURL) == "" {
		return exceptionservice.Module{}, errors.New("IDENTITY_API_URL is required")
	}

	repo := postgresadapter.NewRepository(pg.DB, logger)
	return exceptionservice.NewModule(exceptionservice.Dependencies{
		Repository:  repo,
		AuditLog:    repo,
		Identities:  upstream.NewIdentityClient(cfg.IdentityAPIURL, nil),
		Inventory:   upstream.NewFindingClient(cfg.FindingAPIURL, nil),
		Outbox:      repo,
		PendingSink: pendingSink,
		Clock:       postgresadapter.SystemClock{},
		IDGenerator: postgresadapter.UUIDGenerator{},
		Logger:      logger,
	}), nil
}

func (a *APIApp) Run(_ context.Context) error {
	if a.logger != nil {
		a.logger.Info("api app started",
			"event", "bootstrap_api_started",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
	}
	return a.server.Start()
}

func (a *APIApp) Close() error {
	a.exceptions.Close()
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.postgres != nil {
		return a.postgres.Close()
	}
	return nil
}

func (w *WorkerApp) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", w.pollInterval.String(),
	)

	for {
		if w.cfg.EnableExpirySweeper {
			if err := w.sweeper.RunOnce(ctx); err != nil {
				return err
			}
		}
		if w.cfg.EnableOutboxRelay {
			if err := w.outboxRelay.RunOnce(ctx); err != nil {
				return err
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *WorkerApp) Close() error {
	w.exceptions.Close()
	if w.postgres != nil {
		return w.postgres.Close()
	}
	return nil
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
