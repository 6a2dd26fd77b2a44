package usecase

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/user/seo-audit-service/internal/repository"
)

const (
	EventPageCrawled    = "page_crawled"
	EventAuditCompleted = "audit_completed"
)

// usageRecorder publishes metering events off the calling goroutine. A failing meter only
// produces a log line.
type usageRecorder struct {
	meter   repository.UsageMeter
	timeout time.Duration
	logger  *zap.Logger
	wg      sync.WaitGroup
}

func newUsageRecorder(meter repository.UsageMeter, timeout time.Duration, logger *zap.Logger) *usageRecorder {
	return &usageRecorder{meter: meter, timeout: timeout, logger: logger}
}

func (u *usageRecorder) emit(event repository.UsageEvent) {
	if u.meter == nil {
		return
	}
	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), u.timeout)
		defer cancel()
		if err := u.meter.Record(ctx, event); err != nil {
			u.logger.Warn("failed to record usage event",
				zap.String("event_type", event.EventType),
				zap.String("audit_id", event.AuditID),
				zap.Error(err))
		}
	}()
}

// wait blocks until every emitted event has been handed to the meter.
func (u *usageRecorder) wait() {
	u.wg.Wait()
}

func itoa(n int) string { return strconv.Itoa(n) }
