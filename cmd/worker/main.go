package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/user/seo-audit-service/internal/adapter/chromedp_probe"
	"github.com/user/seo-audit-service/internal/adapter/goquery_parser"
	"github.com/user/seo-audit-service/internal/adapter/httpfetch"
	"github.com/user/seo-audit-service/internal/adapter/postgres"
	redis_adapter "github.com/user/seo-audit-service/internal/adapter/redis"
	"github.com/user/seo-audit-service/internal/adapter/sitemap"
	"github.com/user/seo-audit-service/internal/rules"
	"github.com/user/seo-audit-service/internal/usecase"
	"github.com/user/seo-audit-service/pkg/config"
	"github.com/user/seo-audit-service/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbpool, err := postgres.Connect(ctx, cfg.PostgresDSN())
	if err != nil {
		log.Fatal("unable to connect to database", zap.Error(err))
	}
	defer dbpool.Close()
	if err := postgres.Migrate(ctx, dbpool); err != nil {
		log.Fatal("unable to migrate database", zap.Error(err))
	}

	rdb, err := redis_adapter.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatal("unable to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	fetcher, err := httpfetch.New(httpfetch.Options{
		FetchTimeout:  cfg.CrawlTimeout(),
		ProbeTimeout:  cfg.ProbeTimeout(),
		MaxRedirects:  cfg.MaxRedirects,
		MaxBodyBytes:  cfg.MaxPageBytes,
		HostRateLimit: cfg.HostRateLimit,
		UserAgent:     cfg.UserAgent,
		Proxies:       cfg.Proxies(),
	})
	if err != nil {
		log.Fatal("invalid fetcher configuration", zap.Error(err))
	}

	repos := postgres.NewRepositories(dbpool)
	queue := redis_adapter.NewQueueRepo(rdb)
	deps := &usecase.Deps{
		Audits:   repos.Audits,
		Frontier: repos.Frontier,
		Pages:    repos.Pages,
		Links:    repos.Links,
		Queue:    queue,
		Guard:    redis_adapter.NewFinalizeLock(rdb),
		Fetcher:  fetcher,
		Prober:   fetcher,
		Parser:   goquery_parser.NewGoqueryParser(),
		Sitemaps: sitemap.NewDiscoverer(fetcher, log),
		Meter:    redis_adapter.NewUsageMeter(rdb),
		Rules:    rules.Default(),
		Settings: usecase.NewSettings(cfg),
		Logger:   log,
	}
	if cfg.PerfProbeEnabled {
		probe := chromedp_probe.NewChromedpProbe(cfg.PerfProbeTimeout(), cfg.UserAgent, log)
		defer probe.Close()
		deps.Perf = probe
	}

	pipeline := usecase.NewPipeline(deps)
	runner := usecase.NewTaskRunner(queue, pipeline.Handlers(), usecase.RunnerOptions{
		Workers:      cfg.WorkerConcurrency,
		PollInterval: cfg.TaskPollInterval(),
		TaskTimeout:  cfg.TaskTimeout(),
		Visibility:   cfg.TaskVisibility(),
		MaxAttempts:  cfg.TaskMaxAttempts,
		RetryBackoff: cfg.TaskPollInterval(),
	}, log)

	runner.Start()
	log.Info("worker started",
		zap.Int("workers", cfg.WorkerConcurrency),
		zap.Bool("perf_probe", cfg.PerfProbeEnabled))

	<-ctx.Done()
	log.Info("shutting down worker")
	runner.Stop()
	pipeline.Flush()
	log.Info("worker stopped")
}
