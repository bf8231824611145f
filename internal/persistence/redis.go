package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/config"
)

const redisPingTimeout = 5 * time.Second

// Redis wraps the go-redis client used for ticket sequences and event
// fan-out.
type Redis struct {
	Client *redis.Client
}

// NewRedis creates the client and pings it. When required is set an
// unreachable server is an error; otherwise it is logged and the client is
// returned so health checks can report it.
func NewRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger, required bool) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: redisPingTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		if required {
			_ = client.Close()
			return nil, fmt.Errorf("redis %s unreachable: %w", cfg.Addr, err)
		}
		logger.Warn("unable to reach redis", zap.String("addr", cfg.Addr), zap.Error(err))
	} else {
		logger.Info("connected to redis", zap.String("addr", cfg.Addr))
	}

	return &Redis{Client: client}, nil
}

// RedisRequired reports whether cfg routes anything through Redis.
func RedisRequired(cfg *config.Config) bool {
	return cfg.Sequence.Backend == "redis" || cfg.Notification.PublishToRedis
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis client not configured")
	}
	return r.Client.Ping(ctx).Err()
}
