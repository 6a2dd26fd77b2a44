// Command audit runs one audit in-process against in-memory storage and prints the result.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/user/seo-audit-service/internal/adapter/chromedp_probe"
	"github.com/user/seo-audit-service/internal/adapter/goquery_parser"
	"github.com/user/seo-audit-service/internal/adapter/httpfetch"
	"github.com/user/seo-audit-service/internal/adapter/memory"
	"github.com/user/seo-audit-service/internal/adapter/sitemap"
	"github.com/user/seo-audit-service/internal/delivery/http/response"
	"github.com/user/seo-audit-service/internal/rules"
	"github.com/user/seo-audit-service/internal/usecase"
	"github.com/user/seo-audit-service/pkg/config"
	"github.com/user/seo-audit-service/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	pages := pflag.IntP("pages", "p", cfg.DefaultPagesLimit, "maximum number of pages to crawl")
	depth := pflag.IntP("depth", "d", cfg.DefaultCrawlDepth, "maximum link depth from the seed")
	perf := pflag.Bool("perf", cfg.PerfProbeEnabled, "measure lab performance with headless Chrome")
	logLevel := pflag.String("log-level", "warn", "log level")
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <url>\n", os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.Parse()
	if pflag.NArg() != 1 {
		pflag.Usage()
		os.Exit(2)
	}

	log, err := logger.New(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, log, pflag.Arg(0), *pages, *depth, *perf); err != nil {
		log.Error("audit failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger, target string, pages, depth int, perf bool) error {
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
		return err
	}

	store := memory.NewStore()
	queue := memory.NewQueue()
	settings := usecase.NewSettings(cfg)
	// Nothing else shares the target host from this process.
	settings.DispatchJitter = 0
	settings.FinalizeDelay = 0

	deps := &usecase.Deps{
		Audits:   store,
		Frontier: store.Frontier(),
		Pages:    store.Pages(),
		Links:    store.Links(),
		Queue:    queue,
		Guard:    memory.NewGuard(),
		Fetcher:  fetcher,
		Prober:   fetcher,
		Parser:   goquery_parser.NewGoqueryParser(),
		Sitemaps: sitemap.NewDiscoverer(fetcher, log),
		Meter:    &memory.Meter{},
		Rules:    rules.Default(),
		Settings: settings,
		Logger:   log,
	}
	if perf {
		probe := chromedp_probe.NewChromedpProbe(cfg.PerfProbeTimeout(), cfg.UserAgent, log)
		defer probe.Close()
		deps.Perf = probe
	}

	pipeline := usecase.NewPipeline(deps)
	runner := usecase.NewTaskRunner(queue, pipeline.Handlers(), usecase.RunnerOptions{
		Workers:      max(cfg.CrawlConcurrency, 1),
		PollInterval: 20 * time.Millisecond,
		TaskTimeout:  cfg.TaskTimeout(),
		Visibility:   cfg.TaskVisibility(),
		MaxAttempts:  cfg.TaskMaxAttempts,
	}, log)

	manager := usecase.NewAuditManager(deps)
	a, err := manager.Create(ctx, usecase.CreateAuditInput{URL: target, PagesLimit: pages, CrawlDepth: &depth})
	if err != nil {
		return err
	}

	runner.Start()
	defer runner.Stop()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for !a.Status.Terminal() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if a, err = manager.Get(ctx, a.ID); err != nil {
			return err
		}
	}
	pipeline.Flush()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(response.NewAuditResponse(a))
}
