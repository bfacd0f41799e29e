package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/fastandpray/promo-dispatch/internal/pkg/logger"
)

const (
	readyKey   = "dispatch:ready"
	delayedKey = "dispatch:delayed"

	dequeueBlock = time.Second
	pumpBatch    = 100
)

// promoteLua atomically moves due jobs from the delayed sorted set to the
// ready list, so a job is never visible in both or in neither.
const promoteLua = `
local due = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, ARGV[2])
for _, job in ipairs(due) do
    redis.call("LPUSH", KEYS[2], job)
    redis.call("ZREM", KEYS[1], job)
end
return #due
`

// RedisQueue implements Queue and Dequeuer on Redis: immediate jobs go on a
// list consumed with BRPOP, delayed jobs wait in a sorted set scored by due
// time and are promoted by the pump.
type RedisQueue struct {
	client        *redis.Client
	promoteScript *redis.Script
}

// NewRedisQueue creates a queue over the given Redis client.
func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{
		client:        client,
		promoteScript: redis.NewScript(promoteLua),
	}
}

// Enqueue schedules a dispatch job, immediately or after delay.
func (q *RedisQueue) Enqueue(ctx context.Context, job Job, delay time.Duration) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}

	if delay <= 0 {
		if err := q.client.LPush(ctx, readyKey, data).Err(); err != nil {
			return fmt.Errorf("enqueue job: %w", err)
		}
		return nil
	}

	due := float64(time.Now().Add(delay).Unix())
	if err := q.client.ZAdd(ctx, delayedKey, redis.Z{Score: due, Member: data}).Err(); err != nil {
		return fmt.Errorf("enqueue delayed job: %w", err)
	}
	return nil
}

// Dequeue pops the next ready job, blocking up to one second.
func (q *RedisQueue) Dequeue(ctx context.Context) (Job, error) {
	res, err := q.client.BRPop(ctx, dequeueBlock, readyKey).Result()
	if errors.Is(err, redis.Nil) {
		return Job{}, ErrEmpty
	}
	if err != nil {
		return Job{}, fmt.Errorf("dequeue: %w", err)
	}
	if len(res) < 2 {
		return Job{}, ErrEmpty
	}

	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		// A malformed payload is dropped, not retried forever.
		logger.Error("dropping malformed dispatch job", "payload", res[1], "error", err)
		return Job{}, ErrEmpty
	}
	return job, nil
}

// PromoteDue moves jobs whose due time has passed onto the ready list and
// returns how many moved.
func (q *RedisQueue) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	n, err := q.promoteScript.Run(ctx, q.client,
		[]string{delayedKey, readyKey},
		strconv.FormatInt(now.Unix(), 10),
		pumpBatch,
	).Int()
	if err != nil {
		return 0, fmt.Errorf("promote due jobs: %w", err)
	}
	return n, nil
}

// RunPump promotes due delayed jobs on an interval until ctx is cancelled.
func (q *RedisQueue) RunPump(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := q.PromoteDue(ctx, time.Now())
			if err != nil {
				logger.Error("delayed job promotion failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("promoted delayed dispatch jobs", "count", n)
			}
		}
	}
}
