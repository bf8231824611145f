package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCounter struct {
	values  map[string]int64
	expired map[string]time.Duration
	err     error
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{values: map[string]int64{}, expired: map[string]time.Duration{}}
}

func (f *fakeCounter) Incr(ctx context.Context, key string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	f.values[key]++
	cmd.SetVal(f.values[key])
	return cmd
}

func (f *fakeCounter) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	f.expired[key] = expiration
	cmd := redis.NewBoolCmd(ctx)
	cmd.SetVal(true)
	return cmd
}

func TestRedisSequenceStore_IncrementsAndExpiresOnce(t *testing.T) {
	counter := newFakeCounter()
	store := NewRedisSequenceStore(counter)
	ctx := context.Background()

	first, err := store.Next(ctx, "20260210")
	require.NoError(t, err)
	second, err := store.Next(ctx, "20260210")
	require.NoError(t, err)

	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
	assert.Equal(t, sequenceKeyTTL, counter.expired["ticket:seq:20260210"])
}

func TestRedisSequenceStore_PropagatesErrors(t *testing.T) {
	counter := newFakeCounter()
	counter.err = errors.New("redis down")
	_, err := NewRedisSequenceStore(counter).Next(context.Background(), "20260210")
	assert.Error(t, err)
}
