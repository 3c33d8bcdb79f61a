package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"gatekeep.dev/internal/obs"
)

// keyPrefix namespaces cache entries so Clear never touches rate-limit or
// queue keys sharing the same Redis database.
const keyPrefix = "cache:"

// Redis backs the cache with a shared Redis instance.
type Redis struct {
	client redis.UniversalClient
}

// NewRedis wraps an existing client.
func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Get(ctx context.Context, key string, dest any) (bool, error) {
	raw, err := r.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		obs.ObserveCacheOp("miss")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	obs.ObserveCacheOp("hit")
	return true, json.Unmarshal(raw, dest)
}

func (r *Redis) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, keyPrefix+key, raw, ttl).Err(); err != nil {
		return err
	}
	obs.ObserveCacheOp("set")
	return nil
}

func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = keyPrefix + key
	}
	if err := r.client.Del(ctx, prefixed...).Err(); err != nil {
		return err
	}
	obs.ObserveCacheOp("delete")
	return nil
}

func (r *Redis) DeletePattern(ctx context.Context, pattern string) error {
	if err := r.deleteScan(ctx, keyPrefix+pattern); err != nil {
		return err
	}
	obs.ObserveCacheOp("delete")
	return nil
}

func (r *Redis) Clear(ctx context.Context) error {
	if err := r.deleteScan(ctx, keyPrefix+"*"); err != nil {
		return err
	}
	obs.ObserveCacheOp("clear")
	return nil
}

func (r *Redis) deleteScan(ctx context.Context, match string) error {
	iter := r.client.Scan(ctx, 0, match, 100).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= 100 {
			if err := r.client.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return r.client.Del(ctx, batch...).Err()
	}
	return nil
}

func (r *Redis) Stats(ctx context.Context) (Stats, error) {
	iter := r.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	keys := []string{}
	for iter.Next(ctx) {
		keys = append(keys, iter.Val()[len(keyPrefix):])
	}
	if err := iter.Err(); err != nil {
		return Stats{}, err
	}
	return Stats{Size: len(keys), Keys: keys}, nil
}

var _ Cache = (*Redis)(nil)
