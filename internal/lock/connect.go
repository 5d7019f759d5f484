package lock

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/prn-tf/keygate/internal/config"
)

// New returns the locker selected by cfg: Redis when enabled, memory otherwise.
// The returned close function releases the Redis client or stops the
// memory locker's sweeper.
func New(ctx context.Context, cfg config.RedisConfig, logger zerolog.Logger) (Locker, func() error, error) {
	if !cfg.Enabled {
		logger.Info().Msg("using in-memory locker")
		ml := NewMemoryLocker()
		return ml, func() error {
			ml.Close()
			return nil
		}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr(),
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info().Str("addr", cfg.Addr()).Msg("using redis locker")
	return NewRedisLocker(client), client.Close, nil
}
