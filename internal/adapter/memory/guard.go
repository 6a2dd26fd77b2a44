package memory

import (
	"context"
	"sync"
	"time"

	"github.com/user/seo-audit-service/internal/repository"
)

// Guard is the in-process FinalizeGuard.
type Guard struct {
	mu    sync.Mutex
	holds map[string]time.Time
}

func NewGuard() *Guard {
	return &Guard{holds: make(map[string]time.Time)}
}

func (g *Guard) Acquire(ctx context.Context, auditID string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if until, ok := g.holds[auditID]; ok && time.Now().Before(until) {
		return false, nil
	}
	g.holds[auditID] = time.Now().Add(ttl)
	return true, nil
}

func (g *Guard) Release(ctx context.Context, auditID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.holds, auditID)
	return nil
}

// Meter keeps usage events in memory.
type Meter struct {
	mu     sync.Mutex
	events []repository.UsageEvent
}

func (m *Meter) Record(ctx context.Context, event repository.UsageEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// Events returns a copy of the recorded events.
func (m *Meter) Events() []repository.UsageEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]repository.UsageEvent(nil), m.events...)
}

var (
	_ repository.FinalizeGuard = (*Guard)(nil)
	_ repository.UsageMeter    = (*Meter)(nil)
)
