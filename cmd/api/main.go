// Package main is the HTTP API of the progression engine.
//
// It wires PostgreSQL persistence, the optional Redis layer (progress view
// cache, schedule locks and cross-instance event fan-out), the command and
// query handlers and the gin server, then serves until SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/wingtsun-academy/progression-engine/config"
	"github.com/wingtsun-academy/progression-engine/internal/application/command"
	"github.com/wingtsun-academy/progression-engine/internal/application/eventhandler"
	"github.com/wingtsun-academy/progression-engine/internal/application/query"
	"github.com/wingtsun-academy/progression-engine/internal/domain/progression"
	"github.com/wingtsun-academy/progression-engine/internal/domain/shared"
	"github.com/wingtsun-academy/progression-engine/internal/infrastructure/messaging"
	"github.com/wingtsun-academy/progression-engine/internal/infrastructure/metrics"
	"github.com/wingtsun-academy/progression-engine/internal/infrastructure/persistence/postgres"
	"github.com/wingtsun-academy/progression-engine/internal/infrastructure/persistence/redis"
	httpapi "github.com/wingtsun-academy/progression-engine/internal/interface/http"
	"github.com/wingtsun-academy/progression-engine/internal/interface/http/handlers"
	"github.com/wingtsun-academy/progression-engine/pkg/circuitbreaker"
	"github.com/wingtsun-academy/progression-engine/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

// eventBus is what run needs from either bus implementation.
type eventBus interface {
	shared.EventBus
	io.Closer
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION & LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		Format:    logger.ParseFormat(cfg.Observability.LogFormat),
		AddCaller: cfg.App.Debug,
	}).With(logger.String("service", cfg.App.Name), logger.String("version", cfg.App.Version))

	log.Info("starting progression engine",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("timezone", cfg.App.Timezone))

	table, err := progression.NewRequirementTable(cfg.Progression.Bands)
	if err != nil {
		return fmt.Errorf("invalid grade bands: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. DATABASE
	// ─────────────────────────────────────────────────────────────────────────
	dbConn, err := postgres.NewConnection(ctx, cfg.Database.URL, postgres.PoolOptions{
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection")
		dbConn.Close()
	}()
	log.Info("database connection established")

	unitOfWork := postgres.NewUnitOfWork(dbConn, cfg.App.Location, log,
		postgres.WithMaxTxAttempts(cfg.Database.MaxTxAttempts))

	// ─────────────────────────────────────────────────────────────────────────
	// 3. REDIS & EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	var (
		bus           eventBus
		progressCache query.ProgressCache
		locker        command.Locker
		redisCache    *redis.Cache
	)

	if !cfg.Redis.Disabled {
		redisCache, err = redis.NewCache(redis.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   3,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			log.Warn("redis unavailable, running without cache, locks and fan-out", logger.Err(err))
			redisCache = nil
		}
	}

	if redisCache != nil {
		defer redisCache.Close()
		log.Info("redis connection established")

		onBreakerChange := func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()))
		}
		if cfg.Features.IsEnabled(config.FeatureProgressCache) {
			progressCache = redis.NewProgressCache(redisCache,
				circuitbreaker.CacheBreaker("progress-cache", onBreakerChange))
		}
		if cfg.Features.IsEnabled(config.FeatureScheduleDistributedLock) {
			locker = redis.NewLocker(redisCache, redis.TTLDistributedLock,
				circuitbreaker.CacheBreaker("schedule-lock", onBreakerChange), log)
		}

		redisBus, err := messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
			Client:         redis.NewPubSub(redisCache),
			LocalBusConfig: messaging.DefaultInMemoryEventBusConfig(),
			Logger:         log,
		})
		if err != nil {
			return fmt.Errorf("failed to start redis event bus: %w", err)
		}
		bus = redisBus
	} else {
		busConfig := messaging.DefaultInMemoryEventBusConfig()
		busConfig.Logger = log
		bus = messaging.NewInMemoryEventBus(busConfig)
	}
	defer func() {
		log.Info("closing event bus")
		_ = bus.Close()
	}()

	if progressCache != nil {
		if err := eventhandler.NewProgressCacheInvalidator(progressCache, log).Register(bus); err != nil {
			return fmt.Errorf("failed to register cache invalidator: %w", err)
		}
	}

	var m *metrics.Metrics
	if cfg.Observability.MetricsEnabled {
		m = metrics.New()
		if err := bus.SubscribeAll(m.RecordEvent); err != nil {
			return fmt.Errorf("failed to subscribe metrics: %w", err)
		}
	}

	log.Info("infrastructure ready",
		logger.Bool("redis", redisCache != nil),
		logger.Bool("progress_cache", progressCache != nil),
		logger.Bool("schedule_locks", locker != nil),
		logger.Bool("metrics", m != nil))

	// ─────────────────────────────────────────────────────────────────────────
	// 4. APPLICATION HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	cmdDeps := command.Deps{
		UoW:       unitOfWork,
		Publisher: bus,
		Logger:    log,
		Location:  cfg.App.Location,
	}
	qryDeps := query.Deps{
		UoW:      unitOfWork,
		Table:    table,
		Logger:   log,
		Location: cfg.App.Location,
	}
	durations := cfg.Progression.Durations

	keys := make([]httpapi.APIKey, 0, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		keys = append(keys, httpapi.APIKey{Name: k.Name, Role: k.Role, Hash: k.Hash})
	}

	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("postgres", handlers.PingCheck(dbConn))
	if redisCache != nil {
		health.AddCheck("redis", handlers.PingCheck(redisCache))
	}

	deps := httpapi.Dependencies{
		CreditAttendance:   command.NewCreditAttendanceHandler(cmdDeps),
		RecordAttendance:   command.NewRecordAttendanceHandler(cmdDeps),
		RevertAttendance:   command.NewRevertAttendanceHandler(cmdDeps),
		CreateLesson:       command.NewCreateLessonHandler(cmdDeps, durations),
		DeleteLesson:       command.NewDeleteLessonHandler(cmdDeps),
		CreateSchedule:     command.NewCreateScheduleHandler(cmdDeps, durations),
		ExtendSchedule:     command.NewExtendScheduleHandler(cmdDeps, locker),
		DeactivateSchedule: command.NewDeactivateScheduleHandler(cmdDeps, locker),
		CreateEvent:        command.NewCreateEventHandler(cmdDeps),
		RegisterForEvent:   command.NewRegisterForEventHandler(cmdDeps),
		EvaluateSeminar: command.NewEvaluateSeminarHandler(cmdDeps, table, command.EvaluationOptions{
			RequireEligibility: cfg.Features.IsEnabled(config.FeatureExamRequireEligibility),
		}),
		DecideStudent:   command.NewDecideStudentHandler(cmdDeps),
		ChangeGrade:     command.NewChangeGradeHandler(cmdDeps),
		SaveRequirement: command.NewSaveRequirementHandler(cmdDeps),

		HoursForGrade:    query.NewHoursForGradeHandler(qryDeps),
		CheckEligibility: query.NewCheckEligibilityHandler(qryDeps),
		StudentProgress:  query.NewGetStudentProgressHandler(qryDeps, progressCache),
		Lessons:          query.NewLessonsHandler(qryDeps),
		Catalog:          query.NewCatalogHandler(qryDeps),

		Auth:          httpapi.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, keys),
		HealthChecker: health,
		Logger:        log,
	}
	if m != nil {
		deps.Metrics = m
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. HTTP SERVER & GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	serverCfg := httpapi.DefaultConfig()
	serverCfg.Host = cfg.HTTP.Host
	serverCfg.Port = cfg.HTTP.Port
	serverCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	serverCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	serverCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	serverCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins

	server := httpapi.NewServer(serverCfg, deps)
	errCh := server.StartAsync()
	log.Info("http server listening", logger.String("address", serverCfg.Address()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", logger.Err(err))
		return err
	}
	log.Info("shutdown completed", logger.Duration("timeout", cfg.App.ShutdownTimeout))
	return nil
}
