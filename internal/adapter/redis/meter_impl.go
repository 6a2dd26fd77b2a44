package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/user/seo-audit-service/internal/repository"
)

const usageStreamKey = "usage:events"

// usageStreamMaxLen bounds the stream; a billing consumer is expected to keep up.
const usageStreamMaxLen = 100000

// UsageMeterImpl appends usage events to a Redis stream.
type UsageMeterImpl struct {
	client *redis.Client
}

// NewUsageMeter creates a new instance of UsageMeterImpl.
func NewUsageMeter(client *redis.Client) *UsageMeterImpl {
	return &UsageMeterImpl{client: client}
}

// Record appends one event.
func (r *UsageMeterImpl) Record(ctx context.Context, event repository.UsageEvent) error {
	values := map[string]any{
		"org_id":      event.OrgID,
		"event_type":  event.EventType,
		"quantity":    event.Quantity,
		"audit_id":    event.AuditID,
		"recorded_at": time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range event.Context {
		values["ctx_"+k] = v
	}
	return r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: usageStreamKey,
		MaxLen: usageStreamMaxLen,
		Approx: true,
		Values: values,
	}).Err()
}

var _ repository.UsageMeter = (*UsageMeterImpl)(nil)
