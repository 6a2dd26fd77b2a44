package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/user/seo-audit-service/internal/entity"
	"github.com/user/seo-audit-service/internal/repository"
)

type scheduledTask struct {
	task  entity.Task
	dueAt time.Time
}

// Queue is an in-process TaskQueue with delayed delivery and visibility timeouts.
type Queue struct {
	mu       sync.Mutex
	pending  []scheduledTask
	inflight map[string]scheduledTask
	now      func() time.Time
}

func NewQueue() *Queue {
	return &Queue{
		inflight: make(map[string]scheduledTask),
		now:      time.Now,
	}
}

func (q *Queue) Submit(ctx context.Context, task *entity.Task, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	t := *task
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = q.now().UTC()
	}
	t.Receipt = ""
	q.pending = append(q.pending, scheduledTask{task: t, dueAt: q.now().Add(delay)})
	return nil
}

func (q *Queue) Reserve(ctx context.Context, visibility time.Duration) (*entity.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()

	for receipt, st := range q.inflight {
		if !st.dueAt.After(now) {
			delete(q.inflight, receipt)
			q.pending = append(q.pending, scheduledTask{task: st.task, dueAt: now})
		}
	}

	best := -1
	for i, st := range q.pending {
		if st.dueAt.After(now) {
			continue
		}
		if best == -1 || st.dueAt.Before(q.pending[best].dueAt) {
			best = i
		}
	}
	if best == -1 {
		return nil, repository.ErrQueueEmpty
	}

	st := q.pending[best]
	q.pending = append(q.pending[:best], q.pending[best+1:]...)

	receipt := uuid.NewString()
	q.inflight[receipt] = scheduledTask{task: st.task, dueAt: now.Add(visibility)}

	t := st.task
	t.Receipt = receipt
	return &t, nil
}

func (q *Queue) Ack(ctx context.Context, task *entity.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inflight, task.Receipt)
	return nil
}

// Len returns scheduled plus in-flight tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) + len(q.inflight)
}

// Size reports the same count as Len for the runner's queue gauge.
func (q *Queue) Size(ctx context.Context) (int64, error) {
	return int64(q.Len()), nil
}

var _ repository.TaskQueue = (*Queue)(nil)
