package lock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL is the lease length when none is configured.
const DefaultTTL = 30 * time.Second

const keyPrefix = "bulkimport:lock:"

// Release and refresh only touch the key while it still holds our token.
const (
	releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) end return 0`
	refreshScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("PEXPIRE", KEYS[1], ARGV[2]) end return 0`
)

// Cmdable is the subset of the redis client the lock needs.
type Cmdable interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// Redis is a Locker backed by a SET NX PX lease. The lease is refreshed in
// the background until released, so long imports keep it.
type Redis struct {
	client Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedis returns a lease-based locker. A non-positive ttl uses DefaultTTL.
func NewRedis(client Cmdable, ttl time.Duration, logger *slog.Logger) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{client: client, ttl: ttl, logger: logger}
}

// NewRedisClient parses url and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

// TryLock implements Locker.
func (r *Redis) TryLock(ctx context.Context, key string) (func(), error) {
	k := keyPrefix + key
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, k, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go r.refresh(k, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			// The caller's context may already be cancelled.
			relCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := r.client.Eval(relCtx, releaseScript, []string{k}, token).Err(); err != nil {
				r.logger.Warn("release lock failed", "key", key, "error", err)
			}
		})
	}, nil
}

func (r *Redis) refresh(key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.ttl/3)
			err := r.client.Eval(ctx, refreshScript, []string{key}, token, r.ttl.Milliseconds()).Err()
			cancel()
			if err != nil {
				r.logger.Warn("refresh lock failed", "key", key, "error", err)
			}
		}
	}
}
