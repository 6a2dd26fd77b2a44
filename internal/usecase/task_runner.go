package usecase

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/user/seo-audit-service/internal/entity"
	"github.com/user/seo-audit-service/internal/repository"
	"github.com/user/seo-audit-service/pkg/metrics"
)

// TaskHandler runs one task type. Handle errors are retried; Exhausted runs once the
// attempts are used up.
type TaskHandler interface {
	Handle(ctx context.Context, task *entity.Task) error
	Exhausted(ctx context.Context, task *entity.Task, cause error) error
}

// RunnerOptions tune the task runner.
type RunnerOptions struct {
	Workers      int
	PollInterval time.Duration
	TaskTimeout  time.Duration
	Visibility   time.Duration
	MaxAttempts  int
	RetryBackoff time.Duration
}

// queueSizer is implemented by queues that can report their depth.
type queueSizer interface {
	Size(ctx context.Context) (int64, error)
}

// TaskRunner manages the worker pool that drains the durable task queue.
type TaskRunner struct {
	queue    repository.TaskQueue
	handlers map[entity.TaskType]TaskHandler
	opts     RunnerOptions
	logger   *zap.Logger
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewTaskRunner(queue repository.TaskQueue, handlers map[entity.TaskType]TaskHandler, opts RunnerOptions, logger *zap.Logger) *TaskRunner {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 250 * time.Millisecond
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = 90 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.Visibility <= opts.TaskTimeout {
		opts.Visibility = 2*opts.TaskTimeout + time.Second
	}
	return &TaskRunner{
		queue:    queue,
		handlers: handlers,
		opts:     opts,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

func (r *TaskRunner) Start() {
	for i := 0; i < r.opts.Workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
	if _, ok := r.queue.(queueSizer); ok {
		r.wg.Add(1)
		go r.reportQueueSize()
	}
}

// Stop signals the workers and waits for in-flight tasks to finish.
func (r *TaskRunner) Stop() {
	r.stopOnce.Do(func() { close(r.stopChan) })
	r.wg.Wait()
}

func (r *TaskRunner) worker(id int) {
	defer r.wg.Done()
	for {
		select {
		case <-r.stopChan:
			return
		default:
		}

		processed, err := r.RunOnce(context.Background())
		if err != nil {
			r.logger.Error("task queue error", zap.Int("worker", id), zap.Error(err))
		}
		if processed {
			continue
		}
		select {
		case <-r.stopChan:
			return
		case <-time.After(r.opts.PollInterval):
		}
	}
}

// RunOnce reserves and processes one task. It reports whether a task was processed.
func (r *TaskRunner) RunOnce(ctx context.Context) (bool, error) {
	task, err := r.queue.Reserve(ctx, r.opts.Visibility)
	if errors.Is(err, repository.ErrQueueEmpty) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to reserve task: %w", err)
	}
	r.process(ctx, task)
	return true, nil
}

func (r *TaskRunner) process(ctx context.Context, task *entity.Task) {
	logger := r.logger.With(
		zap.String("task_id", task.ID),
		zap.String("type", string(task.Type)),
		zap.String("audit_id", task.AuditID),
		zap.Int("attempt", task.Attempt))

	handler, ok := r.handlers[task.Type]
	if !ok {
		logger.Error("no handler for task type, dropping")
		metrics.TasksTotal.WithLabelValues(string(task.Type), "dropped").Inc()
		r.ack(ctx, task, logger)
		return
	}

	taskCtx, cancel := context.WithTimeout(ctx, r.opts.TaskTimeout)
	err := r.safeCall(func() error { return handler.Handle(taskCtx, task) })
	cancel()

	if err == nil {
		metrics.TasksTotal.WithLabelValues(string(task.Type), "success").Inc()
		r.ack(ctx, task, logger)
		return
	}

	if task.Attempt+1 < r.opts.MaxAttempts {
		logger.Warn("task failed, retrying", zap.Error(err))
		if subErr := r.queue.Submit(ctx, task.Retry(), r.opts.RetryBackoff); subErr != nil {
			// Leave the task unacknowledged; the queue redelivers it after the visibility timeout.
			logger.Error("failed to resubmit task", zap.Error(subErr))
			return
		}
		metrics.TasksTotal.WithLabelValues(string(task.Type), "retry").Inc()
		r.ack(ctx, task, logger)
		return
	}

	logger.Error("task attempts exhausted", zap.Error(err))
	exhCtx, cancel := context.WithTimeout(ctx, r.opts.TaskTimeout)
	exhErr := r.safeCall(func() error { return handler.Exhausted(exhCtx, task, err) })
	cancel()
	if exhErr != nil {
		logger.Error("exhausted hook failed", zap.Error(exhErr))
		return
	}
	metrics.TasksTotal.WithLabelValues(string(task.Type), "exhausted").Inc()
	r.ack(ctx, task, logger)
}

func (r *TaskRunner) ack(ctx context.Context, task *entity.Task, logger *zap.Logger) {
	if err := r.queue.Ack(ctx, task); err != nil {
		logger.Error("failed to ack task", zap.Error(err))
	}
}

// safeCall turns a handler panic into an error so one bad task cannot take down a worker.
func (r *TaskRunner) safeCall(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("task handler panicked", zap.Any("panic", p), zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return fn()
}

func (r *TaskRunner) reportQueueSize() {
	defer r.wg.Done()
	sizer := r.queue.(queueSizer)
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopChan:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			n, err := sizer.Size(ctx)
			cancel()
			if err != nil {
				r.logger.Warn("failed to read task queue size", zap.Error(err))
				continue
			}
			metrics.TasksInQueue.Set(float64(n))
		}
	}
}
