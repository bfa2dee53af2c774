// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jason-s-yu/uno/internal/game"
	"github.com/redis/go-redis/v9"
)

// DefaultQueueName is the Redis list (queue) name for game action logs.
const DefaultQueueName = "uno_actions"

// Connect opens a Redis client and pings it.
func Connect(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// Historian is the producer and consumer side of the action log queue.
type Historian struct {
	rdb   *redis.Client
	queue string
}

// NewHistorian wraps rdb. An empty queue uses DefaultQueueName.
func NewHistorian(rdb *redis.Client, queue string) *Historian {
	if queue == "" {
		queue = DefaultQueueName
	}
	return &Historian{rdb: rdb, queue: queue}
}

// Queue is the list the historian reads from.
func (h *Historian) Queue() string { return h.queue }

// Record serializes the given record to JSON, then pushes it to the Redis queue.
func (h *Historian) Record(ctx context.Context, rec game.ActionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal ActionRecord: %w", err)
	}
	if err := h.rdb.RPush(ctx, h.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", h.queue, err)
	}
	return nil
}

// Pop blocks up to timeout for the next record. It returns nil, nil when the queue stayed empty.
func (h *Historian) Pop(ctx context.Context, timeout time.Duration) (*game.ActionRecord, error) {
	res, err := h.rdb.BLPop(ctx, timeout, h.queue).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("BLPop %s: %w", h.queue, err)
	}
	// res[0] is the queue name and res[1] the payload.
	if len(res) < 2 {
		return nil, nil
	}
	var rec game.ActionRecord
	if err := json.Unmarshal([]byte(res[1]), &rec); err != nil {
		return nil, fmt.Errorf("invalid action record: %w", err)
	}
	return &rec, nil
}

// Close releases the underlying client.
func (h *Historian) Close() error {
	return h.rdb.Close()
}
