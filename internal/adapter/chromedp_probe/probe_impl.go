package chromedp_probe

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/user/seo-audit-service/internal/entity"
	"github.com/user/seo-audit-service/internal/repository"
)

// navigationTimingJS reads the navigation and paint entries once the load event has fired.
const navigationTimingJS = `(() => {
	const nav = performance.getEntriesByType('navigation')[0];
	const paint = performance.getEntriesByName('first-contentful-paint')[0];
	return {
		ttfb: nav ? nav.responseStart - nav.requestStart : 0,
		fcp: paint ? paint.startTime : 0,
		dcl: nav ? nav.domContentLoadedEventEnd : 0,
		load: nav ? nav.loadEventEnd : 0,
	};
})()`

type navigationTiming struct {
	TTFB float64 `json:"ttfb"`
	FCP  float64 `json:"fcp"`
	DCL  float64 `json:"dcl"`
	Load float64 `json:"load"`
}

type ChromedpProbe struct {
	allocCtx context.Context
	cancel   context.CancelFunc
	timeout  time.Duration
	logger   *zap.Logger
}

// NewChromedpProbe starts one headless browser allocator shared by all measurements.
func NewChromedpProbe(pageLoadTimeout time.Duration, userAgent string, logger *zap.Logger) *ChromedpProbe {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(userAgent),
	)
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &ChromedpProbe{
		allocCtx: allocCtx,
		cancel:   cancel,
		timeout:  pageLoadTimeout,
		logger:   logger,
	}
}

// Close shuts the browser down.
func (p *ChromedpProbe) Close() {
	p.cancel()
}

// Measure loads the page in a fresh tab with the device emulated and scores its timings.
func (p *ChromedpProbe) Measure(ctx context.Context, url string, device repository.DeviceProfile) (*entity.PerformanceMetrics, error) {
	taskCtx, cancel := chromedp.NewContext(p.allocCtx)
	defer cancel()

	taskCtx, cancelTimeout := context.WithTimeout(taskCtx, p.timeout)
	defer cancelTimeout()

	// Stop the tab when the caller gives up.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var timing navigationTiming
	actions := append(emulate(device),
		chromedp.Navigate(url),
		chromedp.Evaluate(navigationTimingJS, &timing),
	)
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		p.logger.Warn("performance probe failed", zap.String("url", url), zap.String("device", string(device)), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", repository.ErrProbeUnavailable, err)
	}

	m := &entity.PerformanceMetrics{
		TTFBMS:           timing.TTFB,
		FCPMS:            timing.FCP,
		DOMContentLoaded: timing.DCL,
		LoadMS:           timing.Load,
	}
	m.Score = Score(m, device)
	p.logger.Debug("performance probe finished",
		zap.String("url", url),
		zap.String("device", string(device)),
		zap.Float64("score", m.Score),
	)
	return m, nil
}

func emulate(device repository.DeviceProfile) []chromedp.Action {
	if device == repository.DeviceMobile {
		return []chromedp.Action{
			chromedp.EmulateViewport(412, 915, chromedp.EmulateScale(2.625), chromedp.EmulateMobile, chromedp.EmulateTouch),
			emulation.SetCPUThrottlingRate(4),
		}
	}
	return []chromedp.Action{
		chromedp.EmulateViewport(1350, 940),
	}
}

var _ repository.PerformanceProbe = (*ChromedpProbe)(nil)
