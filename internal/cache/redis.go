package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis is a Provider backed by a Redis instance. Rows are stored as JSON
// strings under the keys produced by BuildKey.
type Redis struct {
	client *redis.Client
}

// NewRedis connects a provider to the given address.
func NewRedis(addr, password string, db int) *Redis {
	return &Redis{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// GetMany fetches all keys in one MGET. Nil results (absent keys) are
// omitted from the returned map.
func (r *Redis) GetMany(ctx context.Context, keys []string) (map[string][]byte, error) {
	if len(keys) == 0 {
		return map[string][]byte{}, nil
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("error fetching cache keys: %v", err)
	}
	out := make(map[string][]byte, len(keys))
	for i, v := range values {
		if v == nil {
			continue
		}
		switch value := v.(type) {
		case string:
			out[keys[i]] = []byte(value)
		case []byte:
			out[keys[i]] = value
		}
	}
	return out, nil
}

// Close releases the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
