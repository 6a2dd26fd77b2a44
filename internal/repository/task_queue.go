package repository

import (
	"context"
	"time"

	"github.com/user/seo-audit-service/internal/entity"
)

// TaskQueue is a durable at-least-once work queue.
type TaskQueue interface {
	// Submit schedules the task to become visible after delay.
	Submit(ctx context.Context, task *entity.Task, delay time.Duration) error
	// Reserve hands out one due task. It stays invisible for the visibility timeout and is
	// redelivered if it is not acknowledged in time. Returns ErrQueueEmpty when nothing is due.
	Reserve(ctx context.Context, visibility time.Duration) (*entity.Task, error)
	// Ack removes a reserved task for good.
	Ack(ctx context.Context, task *entity.Task) error
}
