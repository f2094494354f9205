package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// Task is the envelope stored in the Redis list.
type Task struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Args       []string  `json:"args"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Queue is a Redis list consumed from the right and pushed on the left.
type Queue struct {
	client *goredis.Client
	key    string
	now    func() time.Time
}

func NewQueue(client *goredis.Client, key string) *Queue {
	return &Queue{client: client, key: key, now: time.Now}
}

func (q *Queue) ProcessingKey() string { return q.key + ":processing" }

func (q *Queue) DeadKey() string { return q.key + ":dead" }

// DelayedKey is a sorted set of retries scored by the unix milliseconds
// they become due.
func (q *Queue) DelayedKey() string { return q.key + ":delayed" }

// Enqueue submits a task for at-least-once execution.
func (q *Queue) Enqueue(ctx context.Context, name string, args ...string) error {
	if name == "" {
		return fmt.Errorf("task name is required")
	}
	return q.push(ctx, q.key, Task{
		ID:         uuid.NewString(),
		Name:       name,
		Args:       args,
		Attempt:    1,
		EnqueuedAt: q.now().UTC(),
	})
}

func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

func (q *Queue) DeadLen(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.DeadKey()).Result()
}

func (q *Queue) DelayedLen(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, q.DelayedKey()).Result()
}

// Retry schedules the task to be pushed back onto the queue after delay.
func (q *Queue) Retry(ctx context.Context, t Task, delay time.Duration) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return err
	}
	due := q.now().Add(delay).UnixMilli()
	if err := q.client.ZAdd(ctx, q.DelayedKey(), goredis.Z{Score: float64(due), Member: raw}).Err(); err != nil {
		return fmt.Errorf("schedule retry %s: %w", t.Name, err)
	}
	return nil
}

var promoteScript = goredis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 100)
for _, raw in ipairs(due) do
  redis.call('ZREM', KEYS[1], raw)
  redis.call('LPUSH', KEYS[2], raw)
end
return #due
`)

// PromoteDue moves retries whose delay has passed onto the queue.
func (q *Queue) PromoteDue(ctx context.Context) (int, error) {
	n, err := promoteScript.Run(ctx, q.client, []string{q.DelayedKey(), q.key}, q.now().UnixMilli()).Int()
	if err != nil {
		return 0, fmt.Errorf("promote delayed tasks: %w", err)
	}
	return n, nil
}

// RequeueStale moves tasks left in the processing list by a crashed worker
// back onto the queue.
func (q *Queue) RequeueStale(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := q.client.RPopLPush(ctx, q.ProcessingKey(), q.key).Err()
		if err == goredis.Nil {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("requeue stale tasks: %w", err)
		}
		moved++
	}
}

func (q *Queue) push(ctx context.Context, key string, t Task) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, key, raw).Err(); err != nil {
		return fmt.Errorf("push task %s: %w", t.Name, err)
	}
	return nil
}
