package repository

import (
	"context"
	"time"
)

// FinalizeGuard dampens concurrent finalization of the same audit. It is an optimisation,
// not the correctness mechanism: finalization itself is idempotent.
type FinalizeGuard interface {
	// Acquire returns true if no other holder owns the key. The hold expires after ttl.
	Acquire(ctx context.Context, auditID string, ttl time.Duration) (bool, error)
	// Release drops the hold early.
	Release(ctx context.Context, auditID string) error
}
