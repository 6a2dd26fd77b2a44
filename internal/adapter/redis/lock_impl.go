package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/user/seo-audit-service/internal/repository"
)

const finalizeLockPrefix = "audit:finalize:"

// FinalizeLockImpl provides a concrete implementation for the FinalizeGuard interface using Redis keys with expiry.
type FinalizeLockImpl struct {
	client *redis.Client
}

// NewFinalizeLock creates a new instance of FinalizeLockImpl.
func NewFinalizeLock(client *redis.Client) *FinalizeLockImpl {
	return &FinalizeLockImpl{client: client}
}

func (r *FinalizeLockImpl) generateKey(auditID string) string {
	return fmt.Sprintf("%s%s", finalizeLockPrefix, auditID)
}

// Acquire sets the key only if it is absent. The expiry lets a redelivered task finalize
// after the holder crashed.
func (r *FinalizeLockImpl) Acquire(ctx context.Context, auditID string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, r.generateKey(auditID), "1", ttl).Result()
}

// Release removes the key.
func (r *FinalizeLockImpl) Release(ctx context.Context, auditID string) error {
	return r.client.Del(ctx, r.generateKey(auditID)).Err()
}

var _ repository.FinalizeGuard = (*FinalizeLockImpl)(nil)
