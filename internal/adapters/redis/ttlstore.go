package redisad

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrScript sets the expiry only on the increment that creates the key.
var incrScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// TTLStore stores JSON values with Redis-native expiry.
type TTLStore struct {
	c      *redis.Client
	prefix string
}

func NewTTLStore(c *redis.Client, prefix string) *TTLStore {
	return &TTLStore{c: c, prefix: prefix}
}

func (s *TTLStore) Get(ctx context.Context, key string, dst any) (bool, error) {
	b, err := s.c.Get(ctx, s.prefix+key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(b, dst)
}

func (s *TTLStore) Set(ctx context.Context, key string, v any, ttl time.Duration) error {
	if ttl <= 0 {
		return s.Delete(ctx, key)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.c.Set(ctx, s.prefix+key, b, ttl).Err()
}

func (s *TTLStore) Delete(ctx context.Context, key string) error {
	return s.c.Del(ctx, s.prefix+key).Err()
}

func (s *TTLStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	ms := ttl.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return incrScript.Run(ctx, s.c, []string{s.prefix + key}, ms).Int64()
}

// SweepExpired is a no-op: Redis evicts expired keys itself.
func (s *TTLStore) SweepExpired(context.Context) (int, error) { return 0, nil }
