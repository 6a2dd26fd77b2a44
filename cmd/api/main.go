package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/user/seo-audit-service/internal/adapter/postgres"
	redis_adapter "github.com/user/seo-audit-service/internal/adapter/redis"
	"github.com/user/seo-audit-service/internal/delivery/http/handler"
	"github.com/user/seo-audit-service/internal/delivery/http/router"
	"github.com/user/seo-audit-service/internal/usecase"
	"github.com/user/seo-audit-service/pkg/config"
	"github.com/user/seo-audit-service/pkg/logger"
)

func main() {
	// --- Configuration ---
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	// --- Logger ---
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Database Connections ---
	dbpool, err := postgres.Connect(ctx, cfg.PostgresDSN())
	if err != nil {
		log.Fatal("unable to connect to database", zap.Error(err))
	}
	defer dbpool.Close()
	if err := postgres.Migrate(ctx, dbpool); err != nil {
		log.Fatal("unable to migrate database", zap.Error(err))
	}
	log.Info("PostgreSQL connection pool established")

	rdb, err := redis_adapter.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatal("unable to connect to redis", zap.Error(err))
	}
	defer rdb.Close()
	log.Info("Redis connection established")

	// --- Use Cases ---
	repos := postgres.NewRepositories(dbpool)
	audits := usecase.NewAuditManager(&usecase.Deps{
		Audits:   repos.Audits,
		Queue:    redis_adapter.NewQueueRepo(rdb),
		Settings: usecase.NewSettings(cfg),
		Logger:   log,
	})

	// --- HTTP Server ---
	apiHandler := handler.NewHandler(audits, log,
		handler.HealthCheck{Name: "postgres", Check: dbpool.Ping},
		handler.HealthCheck{Name: "redis", Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
	)
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router.New(apiHandler, log),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", zap.Error(err))
		}
	}()

	log.Info("starting server", zap.String("port", cfg.ServerPort))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("could not listen on port", zap.String("port", cfg.ServerPort), zap.Error(err))
	}
	log.Info("server stopped")
}
