package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "evoflow:snapshot:"

// RedisStore persists snapshots in Redis so an interrupted run can resume
// from another process.
type RedisStore struct {
	client *redis.Client
}

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		MinIdleConns: opts.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Save(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot for run %s: %w", snap.RunID, err)
	}
	key := keyPrefix + snap.RunID
	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("set %s in Redis: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, runID string) (Snapshot, error) {
	key := keyPrefix + runID
	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return Snapshot{}, fmt.Errorf("%w: run=%s", ErrNotFound, runID)
	} else if err != nil {
		return Snapshot{}, fmt.Errorf("get %s from Redis: %w", key, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return snap, nil
}

func (s *RedisStore) Delete(ctx context.Context, runID string) error {
	if err := s.client.Del(ctx, keyPrefix+runID).Err(); err != nil {
		return fmt.Errorf("delete snapshot for run %s: %w", runID, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
