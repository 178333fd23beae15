package ratelimit

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// Redis is a fixed-window limiter shared by every instance pointing at the
// same Redis.
type Redis struct {
	limiter *limiter.Limiter
}

// NewRedis builds a limiter whose counters live under prefix.
func NewRedis(client *redis.Client, prefix string, p Policy) (*Redis, error) {
	p = p.normalize()
	store, err := limiterredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: prefix})
	if err != nil {
		return nil, fmt.Errorf("ratelimit: redis store: %w", err)
	}
	rate := limiter.Rate{Period: p.Window, Limit: int64(p.Max)}
	return &Redis{limiter: limiter.New(store, rate)}, nil
}

// Check implements Limiter.
func (r *Redis) Check(ctx context.Context, identifier string) (Result, error) {
	lctx, err := r.limiter.Get(ctx, identifier)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Allowed:   !lctx.Reached,
		Remaining: int(lctx.Remaining),
		ResetAt:   time.Unix(lctx.Reset, 0),
		Limit:     int(lctx.Limit),
	}, nil
}
