package lock

import (
	"context"
	"errors"
	"time"

	"chainsign/internal/usecase"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis is a lease-based lock shared by every process using the same Redis. The lease TTL bounds
// how long a crashed holder blocks a device; it must exceed the longest signing operation.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
	poll   time.Duration
	prefix string
	logger *zap.Logger
}

type RedisOptions struct {
	TTL    time.Duration
	Poll   time.Duration
	Prefix string
	Logger *zap.Logger
}

var redisReleaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

func NewRedis(client redis.UniversalClient, opts RedisOptions) (*Redis, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Second
	}
	if opts.Poll <= 0 {
		opts.Poll = 25 * time.Millisecond
	}
	if opts.Prefix == "" {
		opts.Prefix = "chainsign:lock:device:"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Redis{
		client: client,
		ttl:    opts.TTL,
		poll:   opts.Poll,
		prefix: opts.Prefix,
		logger: opts.Logger,
	}, nil
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := r.prefix + key
	token := uuid.NewString()
	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()
	for {
		ok, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, err
		}
		if ok {
			return r.releaser(redisKey, token), nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Redis) releaser(redisKey, token string) func() {
	released := false
	return func() {
		if released {
			return
		}
		released = true
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := redisReleaseScript.Run(ctx, r.client, []string{redisKey}, token).Err(); err != nil {
			r.logger.Warn("redis lock release failed", zap.String("key", redisKey), zap.Error(err))
		}
	}
}

var _ usecase.DeviceLocker = (*Redis)(nil)
