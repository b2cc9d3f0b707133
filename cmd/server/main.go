// Command server runs the chat access service: the HTTP API plus the
// background expiry sweeper.
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

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	appservice "github.com/dmirchev92/server-maystorfix-sub010/internal/application/service"
	"github.com/dmirchev92/server-maystorfix-sub010/internal/config"
	"github.com/dmirchev92/server-maystorfix-sub010/internal/domain/repository"
	domainsvc "github.com/dmirchev92/server-maystorfix-sub010/internal/domain/service"
	"github.com/dmirchev92/server-maystorfix-sub010/internal/infrastructure/audit"
	"github.com/dmirchev92/server-maystorfix-sub010/internal/infrastructure/conversation"
	"github.com/dmirchev92/server-maystorfix-sub010/internal/infrastructure/crypto"
	"github.com/dmirchev92/server-maystorfix-sub010/internal/infrastructure/dispatch"
	"github.com/dmirchev92/server-maystorfix-sub010/internal/infrastructure/monitoring"
	"github.com/dmirchev92/server-maystorfix-sub010/internal/infrastructure/persistence/memory"
	"github.com/dmirchev92/server-maystorfix-sub010/internal/infrastructure/persistence/postgres"
	redisconn "github.com/dmirchev92/server-maystorfix-sub010/internal/infrastructure/persistence/redis"
	"github.com/dmirchev92/server-maystorfix-sub010/internal/infrastructure/ratelimit"
	"github.com/dmirchev92/server-maystorfix-sub010/internal/interfaces/http/handlers"
	"github.com/dmirchev92/server-maystorfix-sub010/internal/interfaces/http/router"
	"github.com/dmirchev92/server-maystorfix-sub010/pkg/constants"
	"github.com/dmirchev92/server-maystorfix-sub010/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, v, err := config.Load("")
	if err != nil {
		return err
	}

	zapLogger := monitoring.NewZapLogger(&cfg.Log)
	defer zapLogger.Sync()
	log := logger.Logger(zapLogger)

	config.WatchLogLevel(v, func(level string) {
		zapLogger.SetLevel(level)
		log.Info(ctx, "log level changed", logger.String("level", level))
	})

	shutdownTracing, err := monitoring.SetupTracing(&cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)

	var (
		providers repository.ProviderRepository
		tokens    repository.TokenRepository
		sessions  repository.SessionRepository
		limiter   domainsvc.RateLimitService
		lock      domainsvc.LeaderLock
		health    = make(map[string]handlers.Pinger)
	)

	policies := map[constants.RateLimitScope]ratelimit.Policy{
		constants.RateLimitScopeRegenerate: {
			Limit:  cfg.RateLimit.RegenerateLimit,
			Window: cfg.RateLimit.RegenerateWindow,
		},
		constants.RateLimitScopeValidate: {
			Limit:  cfg.RateLimit.ValidateRPM,
			Window: time.Minute,
		},
	}

	var auditDB *gorm.DB

	switch cfg.Storage.Driver {
	case "postgres":
		db, err := postgres.NewDBConnection(ctx, &cfg.Database, log)
		if err != nil {
			return err
		}
		defer db.Close()
		providers = postgres.NewProviderRepository(db, log)
		tokens = postgres.NewTokenRepository(db, log)
		sessions = postgres.NewSessionRepository(db, log)
		health["postgres"] = db

		redis, err := redisconn.NewConnection(ctx, &cfg.Redis, log)
		if err != nil {
			return err
		}
		defer redis.Close()
		limiter = ratelimit.NewRedisRateLimiter(redis.Client(), policies, log)
		lock = redisconn.NewLeaderLock(redis)
		health["redis"] = redis

		if cfg.Audit.Enabled {
			auditDB, err = gorm.Open(gormpostgres.Open(cfg.Database.GetDSN()), &gorm.Config{
				Logger: gormlogger.Default.LogMode(gormlogger.Silent),
			})
			if err != nil {
				return err
			}
		}

	case "memory":
		store := memory.NewStore()
		providers = store.Providers()
		tokens = store.Tokens()
		sessions = store.Sessions()
		limiter = ratelimit.NewLocalRateLimiter(policies)

		if cfg.Audit.Enabled {
			auditDB, err = gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
				Logger: gormlogger.Default.LogMode(gormlogger.Silent),
			})
			if err != nil {
				return err
			}
		}
		log.Warn(ctx, "running on the in-memory storage driver, state will not survive restarts")

	default:
		return fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	var auditService domainsvc.AuditService = audit.NoopAuditService{}
	if auditDB != nil {
		gormAudit, err := audit.NewGormAuditService(auditDB, log)
		if err != nil {
			return err
		}
		auditService = gormAudit
	}

	var dispatcher domainsvc.DispatchPublisher = dispatch.NoopPublisher{}
	if cfg.Dispatch.Enabled {
		kafkaPublisher := dispatch.NewKafkaPublisher(&cfg.Dispatch, log)
		defer kafkaPublisher.Close()
		dispatcher = kafkaPublisher
	}

	adminSecret, err := crypto.AdminSecret(ctx, cfg, log)
	if err != nil {
		return err
	}

	service := appservice.NewChatAccessService(appservice.Options{
		Providers:     providers,
		Tokens:        tokens,
		Sessions:      sessions,
		Conversations: conversation.NewClient(&cfg.Conversation, log),
		Dispatcher:    dispatcher,
		Limiter:       limiter,
		Audit:         auditService,
		Metrics:       metrics,
		Logger:        log,
		TokenTTL:      cfg.Token.TTL,
		ChatBaseURL:   cfg.Chat.BaseURL,
	})

	engine := router.New(router.Options{
		Service:     service,
		Limiter:     limiter,
		Health:      health,
		AdminSecret: adminSecret,
		Config:      cfg,
		Logger:      log,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	sweeper := appservice.NewSweeper(service, lock, cfg.Sweep.Interval, cfg.Sweep.LeaderLockTTL, log)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info(groupCtx, "http server listening", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		if err := sweeper.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		log.Info(shutdownCtx, "shutting down http server")
		return server.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
