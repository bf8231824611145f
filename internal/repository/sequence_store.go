package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// SequenceStore issues the per-day ticket sequence. Next must return strictly
// increasing values without gaps for a given day, even under concurrency.
type SequenceStore interface {
	Next(ctx context.Context, day string) (int, error)
}

type postgresSequenceStore struct {
	pool *pgxpool.Pool
}

// NewPostgresSequenceStore keeps counters in the ticket_sequences table.
func NewPostgresSequenceStore(pool *pgxpool.Pool) SequenceStore {
	return &postgresSequenceStore{pool: pool}
}

func (s *postgresSequenceStore) Next(ctx context.Context, day string) (int, error) {
	const query = `
        INSERT INTO ticket_sequences (day, last_value) VALUES ($1, 1)
        ON CONFLICT (day) DO UPDATE SET last_value = ticket_sequences.last_value + 1
        RETURNING last_value`
	var next int
	if err := s.pool.QueryRow(ctx, query, day).Scan(&next); err != nil {
		return 0, err
	}
	return next, nil
}

// sequenceCounter is the slice of the go-redis client the Redis store needs.
type sequenceCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// sequenceKeyTTL keeps yesterday's counter around for late writers.
const sequenceKeyTTL = 48 * time.Hour

type redisSequenceStore struct {
	client sequenceCounter
	prefix string
}

// NewRedisSequenceStore counts with INCR on ticket:seq:<day>.
func NewRedisSequenceStore(client sequenceCounter) SequenceStore {
	return &redisSequenceStore{client: client, prefix: "ticket:seq:"}
}

func (s *redisSequenceStore) Next(ctx context.Context, day string) (int, error) {
	key := s.prefix + day
	next, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", key, err)
	}
	if next == 1 {
		if err := s.client.Expire(ctx, key, sequenceKeyTTL).Err(); err != nil {
			return 0, fmt.Errorf("expire %s: %w", key, err)
		}
	}
	return int(next), nil
}

// MemorySequenceStore is a process-local SequenceStore.
type MemorySequenceStore struct {
	mu       sync.Mutex
	counters map[string]int
}

// NewMemorySequenceStore creates an empty store.
func NewMemorySequenceStore() *MemorySequenceStore {
	return &MemorySequenceStore{counters: make(map[string]int)}
}

// Next implements SequenceStore.
func (s *MemorySequenceStore) Next(_ context.Context, day string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[day]++
	return s.counters[day], nil
}
