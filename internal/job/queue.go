package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// queueKey is the Redis list holding queued job ids, oldest at the tail.
const queueKey = "talkdub:jobs:queue"

// Queue distributes job ids to workers through a Redis list. Enqueue pushes
// to the head; Dequeue pops from the tail, so ids are delivered in
// submission order. Multiple worker processes may consume concurrently; each
// id is claimed by exactly one.
type Queue struct {
	rdb redis.UniversalClient
}

// NewQueue creates a Queue over the given Redis client.
func NewQueue(rdb redis.UniversalClient) *Queue {
	return &Queue{rdb: rdb}
}

// Enqueue appends id to the work queue.
func (q *Queue) Enqueue(ctx context.Context, id string) error {
	if err := q.rdb.LPush(ctx, queueKey, id).Err(); err != nil {
		return fmt.Errorf("job: enqueue %s: %w", id, err)
	}
	return nil
}

// Dequeue blocks until a job id is available or ctx is cancelled. It polls
// in bounded BRPOP intervals so cancellation is observed promptly.
func (q *Queue) Dequeue(ctx context.Context) (string, error) {
	for {
		vals, err := q.rdb.BRPop(ctx, 5*time.Second, queueKey).Result()
		switch {
		case errors.Is(err, redis.Nil):
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			continue
		case err != nil:
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", fmt.Errorf("job: dequeue: %w", err)
		}
		// BRPOP returns [key, value].
		return vals[1], nil
	}
}

// Len returns the number of queued job ids.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	n, err := q.rdb.LLen(ctx, queueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("job: queue length: %w", err)
	}
	return n, nil
}
