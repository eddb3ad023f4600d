package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marine_leads_backend/internal/adapters/storage"
	"marine_leads_backend/internal/bootstrap"
	"marine_leads_backend/internal/email"
	"marine_leads_backend/internal/events"
	apphttp "marine_leads_backend/internal/http"
	"marine_leads_backend/internal/http/router"
	"marine_leads_backend/internal/notification"
	"marine_leads_backend/internal/scheduler"
	"marine_leads_backend/internal/webhook"
	"marine_leads_backend/migrations"
	"marine_leads_backend/platform/config"
	"marine_leads_backend/platform/db"
	"marine_leads_backend/platform/ids"
	"marine_leads_backend/platform/logger"
	"marine_leads_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := ids.Init(cfg.SnowflakeNodeID); err != nil {
		panic("failed to initialize id generator: " + err.Error())
	}

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, pool, migrations.FS)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	infra := bootstrap.Infra{Pool: pool, Bus: eventBus}

	redisClient := initRedis(cfg, log)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
		infra.Redis = redisClient
	}

	if archive := initArchive(ctx, cfg, log); archive != nil {
		infra.Archive = archive
	}

	// Shared validator instance for dependency injection
	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	// Notification module subscribes to domain events (not HTTP-facing)
	notificationModule := notification.New(email.NewSender(cfg), cfg, log)
	notificationModule.RegisterHandlers(eventBus)

	modules, err := bootstrap.Build(ctx, cfg, infra, val, log)
	if err != nil {
		log.Error("failed to initialize modules", "error", err)
		panic("failed to initialize modules: " + err.Error())
	}

	rerouter, closeScheduler := initRerouteScheduler(cfg, log)
	if closeScheduler != nil {
		defer closeScheduler()
		modules.Leads.SetRerouter(rerouter)
	}

	webhookModule := webhook.NewModule(pool, modules.Leads.Pipeline(), val)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config: cfg,
		Logger: log,
		Health: pool,
		Modules: []apphttp.Module{
			webhookModule,
			modules.Routing,
			modules.Vendors,
			modules.Leads,
			modules.CRMSync,
		},
	}

	engine := router.New(app)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
		// let in-flight event handlers (operator alerts) finish
		eventBus.Wait()
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func initRedis(cfg config.SchedulerConfig, log *logger.Logger) *redis.Client {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; duplicate submissions are not collapsed")
		return nil
	}

	opt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		log.Error("invalid REDIS_URL; duplicate submissions are not collapsed", "error", err)
		return nil
	}
	if cfg.GetRedisTLSInsecure() && opt.TLSConfig != nil {
		opt.TLSConfig.InsecureSkipVerify = true
	}
	return redis.NewClient(opt)
}

func initArchive(ctx context.Context, cfg storage.Config, log *logger.Logger) *storage.MinIOArchive {
	if !cfg.IsMinIOEnabled() {
		log.Warn("MINIO_ENDPOINT not configured; raw payloads are kept in the database only")
		return nil
	}

	archive, err := storage.NewMinIOArchive(cfg)
	if err != nil {
		log.Error("failed to initialize raw payload archive", "error", err)
		panic("failed to initialize raw payload archive: " + err.Error())
	}

	if err := withRetry(ctx, log, "ensure raw payload bucket", 5, 2*time.Second, func() error {
		return archive.EnsureBucketExists(ctx)
	}); err != nil {
		log.Error("failed to ensure storage bucket exists", "error", err, "bucket", cfg.GetMinioBucketRawPayloads())
		panic("failed to ensure storage bucket exists: " + err.Error())
	}
	log.Info("raw payload archive initialized", "bucket", cfg.GetMinioBucketRawPayloads())
	return archive
}

func initRerouteScheduler(cfg config.SchedulerConfig, log *logger.Logger) (*scheduler.Client, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; unroutable leads wait for a manual resume")
		return nil, nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize reroute scheduler client", "error", err)
		return nil, nil
	}

	return client, func() {
		_ = client.Close()
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
