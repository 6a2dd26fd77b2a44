package httpfetch

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// hostLimiter keeps one token bucket per host so a crawl never hammers a single site,
// while probes to unrelated hosts proceed in parallel.
type hostLimiter struct {
	mu       sync.Mutex
	perHost  rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

func newHostLimiter(perSecond float64) *hostLimiter {
	if perSecond <= 0 {
		return nil
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return &hostLimiter{
		perHost:  rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (l *hostLimiter) Wait(ctx context.Context, host string) error {
	if l == nil {
		return nil
	}
	host = strings.ToLower(host)
	l.mu.Lock()
	lim, ok := l.limiters[host]
	if !ok {
		lim = rate.NewLimiter(l.perHost, l.burst)
		l.limiters[host] = lim
	}
	l.mu.Unlock()
	return lim.Wait(ctx)
}
