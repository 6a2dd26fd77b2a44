package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/user/seo-audit-service/internal/entity"
	"github.com/user/seo-audit-service/internal/repository"
)

const (
	scheduledKey = "tasks:scheduled"
	inflightKey  = "tasks:inflight"
)

// reserveScript first returns expired in-flight tasks to the schedule, then moves the earliest
// due task into the in-flight set with its visibility deadline as score.
var reserveScript = redis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1])
for _, member in ipairs(expired) do
	redis.call('ZREM', KEYS[2], member)
	redis.call('ZADD', KEYS[1], ARGV[1], member)
end
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #due == 0 then
	return false
end
redis.call('ZREM', KEYS[1], due[1])
redis.call('ZADD', KEYS[2], ARGV[2], due[1])
return due[1]
`)

// QueueRepoImpl provides a concrete implementation for the TaskQueue interface using two Redis
// sorted sets: one scored by due time, one by visibility deadline.
type QueueRepoImpl struct {
	client *redis.Client
	now    func() time.Time
}

// NewQueueRepo creates a new instance of QueueRepoImpl.
func NewQueueRepo(client *redis.Client) *QueueRepoImpl {
	return &QueueRepoImpl{client: client, now: time.Now}
}

// Submit adds the serialized task to the schedule. The member itself is the receipt, so a
// retry (different attempt) never collides with the copy it replaces.
func (r *QueueRepoImpl) Submit(ctx context.Context, task *entity.Task, delay time.Duration) error {
	t := *task
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = r.now().UTC()
	}
	payload, err := json.Marshal(t)
	if err != nil {
		return err
	}
	due := r.now().Add(delay).UnixMilli()
	return r.client.ZAdd(ctx, scheduledKey, redis.Z{Score: float64(due), Member: string(payload)}).Err()
}

// Reserve hands out the earliest due task. It returns ErrQueueEmpty if nothing is due.
func (r *QueueRepoImpl) Reserve(ctx context.Context, visibility time.Duration) (*entity.Task, error) {
	now := r.now()
	member, err := reserveScript.Run(ctx, r.client,
		[]string{scheduledKey, inflightKey},
		strconv.FormatInt(now.UnixMilli(), 10),
		strconv.FormatInt(now.Add(visibility).UnixMilli(), 10),
	).Text()
	if errors.Is(err, redis.Nil) {
		return nil, repository.ErrQueueEmpty
	}
	if err != nil {
		return nil, err
	}

	var t entity.Task
	if err := json.Unmarshal([]byte(member), &t); err != nil {
		// A payload that cannot be decoded would be redelivered forever.
		r.client.ZRem(ctx, inflightKey, member)
		return nil, err
	}
	t.Receipt = member
	return &t, nil
}

// Ack removes a reserved task from the in-flight set.
func (r *QueueRepoImpl) Ack(ctx context.Context, task *entity.Task) error {
	return r.client.ZRem(ctx, inflightKey, task.Receipt).Err()
}

// Size returns the number of scheduled plus in-flight tasks.
func (r *QueueRepoImpl) Size(ctx context.Context) (int64, error) {
	pipe := r.client.Pipeline()
	scheduled := pipe.ZCard(ctx, scheduledKey)
	inflight := pipe.ZCard(ctx, inflightKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return scheduled.Val() + inflight.Val(), nil
}

var _ repository.TaskQueue = (*QueueRepoImpl)(nil)
