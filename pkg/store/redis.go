package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"groupchat/pkg/logger"
)

// Redis backs the store with a redis server. Useful when several server
// instances need to share transcripts.
type Redis struct {
	client *redis.Client
}

// OpenRedis connects to a redis server and verifies it with a ping.
func OpenRedis(addr, password string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	logger.Info("store_open", "backend", "redis", "addr", addr)
	return &Redis{client: client}, nil
}

func (r *Redis) Get(key string) ([]byte, error) {
	v, err := r.client.Get(context.Background(), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return v, err
}

func (r *Redis) Set(key string, val []byte) error {
	return r.client.Set(context.Background(), key, val, 0).Err()
}

func (r *Redis) Delete(key string) error {
	return r.client.Del(context.Background(), key).Err()
}

func (r *Redis) Scan(prefix string) (map[string][]byte, error) {
	ctx := context.Background()
	out := make(map[string][]byte)
	iter := r.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		v, err := r.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[key] = v
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Redis) Close() error {
	logger.Info("store_close", "backend", "redis")
	return r.client.Close()
}
