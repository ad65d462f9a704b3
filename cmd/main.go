package main

import (
	"context"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/rryowa/botgate/internal/api"
	"github.com/rryowa/botgate/internal/controller"
	"github.com/rryowa/botgate/internal/migrations"
	"github.com/rryowa/botgate/internal/obs"
	"github.com/rryowa/botgate/internal/service"
	"github.com/rryowa/botgate/internal/storage"
	"github.com/rryowa/botgate/internal/storage/memory"
	"github.com/rryowa/botgate/internal/storage/postgres"
	"github.com/rryowa/botgate/internal/storage/redis"
	"github.com/rryowa/botgate/internal/util"
)

func main() {
	ctx := context.Background()

	exitCode := 0
	defer func() {
		if exitCode != 0 {
			os.Exit(exitCode)
		}
	}()

	cfg, err := util.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := util.NewZapLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	cleanupFuncs := []func(){}
	defer func() {
		for i := len(cleanupFuncs) - 1; i >= 0; i-- {
			cleanupFuncs[i]()
		}
	}()

	otel, err := obs.SetupOTel(ctx, cfg.OTEL)
	if err != nil {
		logger.Fatal(zap.Error(err))
	}
	cleanupFuncs = append(cleanupFuncs, func() {
		if err := otel.Shutdown(context.Background()); err != nil {
			logger.Errorf("otel shutdown: %v", err)
		}
	})

	redisClient, redisCleanup, err := util.NewRedisClient(ctx, logger, cfg.Redis)
	if err != nil {
		logger.Fatal(zap.Error(err))
	}
	cleanupFuncs = append(cleanupFuncs, redisCleanup)
	kv := redis.NewKeyValueStore(redisClient)

	health := []api.HealthCheck{{Name: "redis", Check: kv.Ping}}

	var users storage.UserRepository
	switch cfg.DB.Driver {
	case util.DriverMemory:
		logger.Warn("Using in-memory user storage, data is lost on restart.")
		users = memory.NewUserRepository(logger)
	default:
		if cfg.DB.MigrationsRun {
			db, dbCleanup, err := util.NewDBConnection(logger, cfg.DB)
			if err != nil {
				logger.Fatal(zap.Error(err))
			}
			err = migrations.RunMigrations(db, logger)
			dbCleanup()
			if err != nil {
				logger.Fatal(zap.Error(err))
			}
		}

		pool, poolCleanup, err := util.NewPgxPool(ctx, logger, cfg.DB)
		if err != nil {
			logger.Fatal(zap.Error(err))
		}
		cleanupFuncs = append(cleanupFuncs, poolCleanup)
		users = postgres.NewStorage(pool, cfg.DB.QueryTimeout)
		health = append(health, api.HealthCheck{Name: "postgres", Check: pool.Ping})
	}

	notifier, notifierCleanup, err := service.NewSecurityNotifier(logger, cfg.Notifier)
	if err != nil {
		logger.Fatal(zap.Error(err))
	}
	cleanupFuncs = append(cleanupFuncs, notifierCleanup)

	metrics := obs.NewMetrics()
	tokenService := service.NewTokenService(cfg.Token)
	sessionService := service.NewSessionService(logger, users, tokenService,
		service.NewBcryptHasher(service.DefaultBcryptCost), notifier, metrics)

	rateLimitGate := api.NewRateLimitGate(logger,
		service.NewRateLimiter(kv),
		service.NewViolationTracker(kv, cfg.RateLimiter.Violations, cfg.RateLimiter.KeyPrefixes),
		tokenService, cfg.RateLimiter, metrics)

	ctrl := controller.NewController(logger, sessionService, cfg.Cookie, cfg.Token)

	apiServer := api.NewAPI(ctrl, logger, cfg.Server, cfg.App.IsProduction(), tokenService, rateLimitGate, metrics, health...)
	if err := apiServer.Run(ctx); err != nil {
		logger.Errorf("server: %v", err)
		exitCode = 1
	}
}
