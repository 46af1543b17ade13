package messaging

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Queue carries serialized dispatch jobs. Implementations must be safe for
// concurrent producers and consumers.
type Queue interface {
	Push(ctx context.Context, payload []byte) error
	// Pop blocks up to wait for a payload; a nil payload with nil error means
	// the wait elapsed with nothing to do.
	Pop(ctx context.Context, wait time.Duration) ([]byte, error)
}

// RedisQueue is a Queue over a Redis list, surviving process restarts.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue wraps the client; key is the list the jobs live in.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if client == nil {
		return nil
	}
	if key == "" {
		key = "callops:dispatch"
	}
	return &RedisQueue{client: client, key: key}
}

func (q *RedisQueue) Push(ctx context.Context, payload []byte) error {
	return q.client.LPush(ctx, q.key, payload).Err()
}

func (q *RedisQueue) Pop(ctx context.Context, wait time.Duration) ([]byte, error) {
	values, err := q.client.BRPop(ctx, wait, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(values) < 2 {
		return nil, nil
	}
	return []byte(values[1]), nil
}

// MemoryQueue is a Queue over a buffered channel, used when Redis is not
// configured and in tests.
type MemoryQueue struct {
	ch chan []byte
}

// NewMemoryQueue creates a MemoryQueue with the given buffer capacity.
func NewMemoryQueue(buffer int) *MemoryQueue {
	if buffer <= 0 {
		buffer = 128
	}
	return &MemoryQueue{ch: make(chan []byte, buffer)}
}

func (q *MemoryQueue) Push(ctx context.Context, payload []byte) error {
	select {
	case q.ch <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Pop(ctx context.Context, wait time.Duration) ([]byte, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case payload := <-q.ch:
		return payload, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
