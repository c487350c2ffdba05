package flowstore

import (
	"context"
	stderrors "errors"

	"github.com/redis/go-redis/v9"

	"github.com/c360/eipcanvas/errors"
)

// DefaultRedisPrefix prefixes every record key.
const DefaultRedisPrefix = "eipcanvas:flow:"

// RedisBackend stores each record as a string value under <prefix><key>.
type RedisBackend struct {
	client     *redis.Client
	prefix     string
	ownsClient bool
}

var _ Backend = (*RedisBackend)(nil)

// DialRedisBackend connects to the server at url (redis://host:port/db) and
// checks it with PING.
func DialRedisBackend(ctx context.Context, url, prefix string) (*RedisBackend, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.WrapInvalid(err, "flowstore", "DialRedisBackend", "parse url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.WrapTransient(err, "flowstore", "DialRedisBackend", "ping")
	}
	b := NewRedisBackend(client, prefix)
	b.ownsClient = true
	return b, nil
}

// NewRedisBackend wraps an existing client. An empty prefix selects
// DefaultRedisPrefix.
func NewRedisBackend(client *redis.Client, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisBackend{client: client, prefix: prefix}
}

func (b *RedisBackend) key(key string) string {
	return b.prefix + key
}

// Name implements Backend.
func (b *RedisBackend) Name() string { return "redis" }

// Put implements Backend.
func (b *RedisBackend) Put(ctx context.Context, key string, data []byte) error {
	if err := b.client.Set(ctx, b.key(key), data, 0).Err(); err != nil {
		return errors.WrapTransient(err, "flowstore", "RedisBackend.Put", "set "+key)
	}
	return nil
}

// Get implements Backend.
func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := b.client.Get(ctx, b.key(key)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.WrapTransient(err, "flowstore", "RedisBackend.Get", "get "+key)
	}
	return data, nil
}

// Delete implements Backend.
func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, b.key(key)).Err(); err != nil {
		return errors.WrapTransient(err, "flowstore", "RedisBackend.Delete", "del "+key)
	}
	return nil
}

// Close closes the client when the backend dialed it.
func (b *RedisBackend) Close() error {
	if !b.ownsClient {
		return nil
	}
	return b.client.Close()
}
