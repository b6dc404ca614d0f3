package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists records as plain string keys namespaced as
// "{prefix}:{kind}:{key}".
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps an existing client. prefix defaults to "heartline".
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "heartline"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// DialRedis connects to addr and verifies the connection.
func DialRedis(ctx context.Context, addr, prefix string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return NewRedisStore(client, prefix), nil
}

func (r *RedisStore) redisKey(kind, key string) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, kind, key)
}

func (r *RedisStore) Get(ctx context.Context, kind, key string) ([]byte, error) {
	v, err := r.client.Get(ctx, r.redisKey(kind, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (r *RedisStore) Put(ctx context.Context, kind, key string, value []byte) error {
	if err := validate(kind, key); err != nil {
		return err
	}
	return r.client.Set(ctx, r.redisKey(kind, key), value, 0).Err()
}

func (r *RedisStore) Delete(ctx context.Context, kind, key string) error {
	return r.client.Del(ctx, r.redisKey(kind, key)).Err()
}

func (r *RedisStore) List(ctx context.Context, kind, prefix string) ([]Entry, error) {
	base := r.redisKey(kind, "")
	pattern := escapeGlob(base+prefix) + "*"

	var keys []string
	iter := r.client.Scan(ctx, 0, pattern, 200).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Strings(keys)

	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		v, err := r.client.Get(ctx, k).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, Entry{Key: strings.TrimPrefix(k, base), Value: v})
	}
	return out, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, c := range s {
		switch c {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}
