package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"NewsHarvester/internal/config"
	"NewsHarvester/internal/ports"
)

const (
	defaultKey     = "newsharvester:pipeline:lock"
	defaultTTL     = time.Hour
	releaseTimeout = 5 * time.Second
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisGuard is a cross-process run guard backed by SET NX PX.
type RedisGuard struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
	logger *slog.Logger
}

var _ ports.RunGuard = (*RedisGuard)(nil)

// NewRedisClient connects using cfg and verifies the server answers.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// NewRedisGuard uses key with ttl as an upper bound on a crashed holder's lease.
func NewRedisGuard(client redis.Cmdable, key string, ttl time.Duration, logger *slog.Logger) *RedisGuard {
	if key == "" {
		key = defaultKey
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisGuard{client: client, key: key, ttl: ttl, logger: logger}
}

// TryAcquire returns ok=false without waiting when another holder owns the key.
func (g *RedisGuard) TryAcquire(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := g.client.SetNX(ctx, g.key, token, g.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire %s: %w", g.key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		if err := releaseScript.Run(ctx, g.client, []string{g.key}, token).Err(); err != nil {
			g.logger.Warn("release run lock failed", "key", g.key, "error", err)
		}
	}
	return release, true, nil
}
