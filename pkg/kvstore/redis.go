package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// casScript compares the current value (absent reads as emptystring)
// against ARGV[1] and, on match, writes ARGV[2] or deletes when it is
// empty. Runs atomically on the Redis side.
const casScript = `
local cur = redis.call('GET', KEYS[1])
if cur == false then cur = '' end
if cur ~= ARGV[1] then return 0 end
if ARGV[2] == '' then
  redis.call('DEL', KEYS[1])
else
  redis.call('SET', KEYS[1], ARGV[2])
end
return 1
`

type redisCommands interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Eval(ctx context.Context, script string, keys []string, args ...any) (any, error)
	KVKey(name string) string
}

// Redis is a Store backed by a shared Redis instance, for multi-node
// deployments where every counter and storefront replica must see the
// same reservations and counter state.
type Redis struct {
	client redisCommands
}

// NewRedis wraps an established redis client as a Store.
func NewRedis(client redisCommands) (*Redis, error) {
	if client == nil {
		return nil, errors.New("kvstore: redis client is required")
	}
	return &Redis{client: client}, nil
}

// Get implements Store.
func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := r.client.Get(ctx, r.client.KVKey(key))
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kvstore get %s: %w", key, err)
	}
	return value, true, nil
}

// Set implements Store. Values never expire; lifecycle is owned by the
// callers that delete or swap them.
func (r *Redis) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, r.client.KVKey(key), value, 0); err != nil {
		return fmt.Errorf("kvstore set %s: %w", key, err)
	}
	return nil
}

// Delete implements Store.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.client.KVKey(key)); err != nil {
		return fmt.Errorf("kvstore delete %s: %w", key, err)
	}
	return nil
}

// CompareAndSwap implements Store via a server-side Lua script.
func (r *Redis) CompareAndSwap(ctx context.Context, key, expected, next string) (bool, error) {
	result, err := r.client.Eval(ctx, casScript, []string{r.client.KVKey(key)}, expected, next)
	if err != nil {
		return false, fmt.Errorf("kvstore cas %s: %w", key, err)
	}
	won, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("kvstore cas %s: unexpected script result %T", key, result)
	}
	return won == 1, nil
}
