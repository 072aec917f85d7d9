// Package lease implements a single-owner lease on redis: SET NX PX to take
// it, compare-and-delete to give it back. A crashed owner loses the lease when
// the TTL runs out.
package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/paydesk/pkg/apperr"
	"github.com/fatflowers/paydesk/pkg/config"
	"github.com/fatflowers/paydesk/pkg/tool"
)

const keyPrefix = "paydesk:lease:"

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

type Locker struct {
	rdb redis.Cmdable
	log *zap.SugaredLogger
}

func NewLocker(rdb *redis.Client, log *zap.SugaredLogger) *Locker {
	return &Locker{rdb: rdb, log: log}
}

// Lease is held until Release or until its TTL expires.
type Lease struct {
	rdb   redis.Cmdable
	key   string
	token string
}

// Acquire takes name for ttl, or fails with apperr.ErrLeaseNotAcquired when
// another owner holds it.
func (l *Locker) Acquire(ctx context.Context, name string, ttl time.Duration) (*Lease, error) {
	key := keyPrefix + name
	token := tool.GenerateUUIDV7()
	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lease %s: %w: %w", name, apperr.ErrStorageUnavailable, err)
	}
	if !ok {
		return nil, fmt.Errorf("acquire lease %s: %w", name, apperr.ErrLeaseNotAcquired)
	}
	l.log.Debugw("lease acquired", "lease", name, "ttl", ttl)
	return &Lease{rdb: l.rdb, key: key, token: token}, nil
}

// Refresh extends a still-held lease. It fails with ErrLeaseNotAcquired when
// the lease expired and was taken by someone else.
func (le *Lease) Refresh(ctx context.Context, ttl time.Duration) error {
	n, err := refreshScript.Run(ctx, le.rdb, []string{le.key}, le.token, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("refresh lease %s: %w: %w", le.key, apperr.ErrStorageUnavailable, err)
	}
	if n == 0 {
		return fmt.Errorf("refresh lease %s: %w", le.key, apperr.ErrLeaseNotAcquired)
	}
	return nil
}

// Release deletes the lease only if this owner still holds it.
func (le *Lease) Release(ctx context.Context) error {
	err := releaseScript.Run(ctx, le.rdb, []string{le.key}, le.token).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lease %s: %w", le.key, err)
	}
	return nil
}

func NewRedis(cfg *config.Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func registerRedisClose(lc fx.Lifecycle, l *zap.SugaredLogger, rdb *redis.Client) {
	lc.Append(fx.StopHook(func() error {
		l.Infow("closing redis client")
		return rdb.Close()
	}))
}

var Module = fx.Options(
	fx.Provide(NewRedis, NewLocker),
	fx.Invoke(registerRedisClose),
)
