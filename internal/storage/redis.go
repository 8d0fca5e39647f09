package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "skipper:"

// RedisStore implements Store on top of Redis. Records are stored as JSON
// strings; extracted-data records live in a per-session list.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore connects to the Redis instance described by redisURL
// (redis://host:port/db). A zero ttl keeps records forever.
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisStore{rdb: redis.NewClient(opt), ttl: ttl}, nil
}

// Ping verifies connectivity at startup.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func sessionKey(id string) string   { return redisKeyPrefix + "session:" + id }
func executionKey(id string) string { return redisKeyPrefix + "execution:" + id }
func extractedKey(id string) string { return redisKeyPrefix + "session:" + id + ":extracted" }

func (s *RedisStore) SaveSession(ctx context.Context, record SessionRecord) error {
	now := time.Now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal session record: %w", err)
	}
	return s.rdb.Set(ctx, sessionKey(record.ID), data, s.ttl).Err()
}

func (s *RedisStore) UpdateSessionStatus(ctx context.Context, id string, status SessionStatus, metadata map[string]any) error {
	record, err := s.FindSession(ctx, id)
	if err != nil {
		return err
	}

	record.Status = status
	if len(metadata) > 0 {
		if record.Metadata == nil {
			record.Metadata = make(map[string]any, len(metadata))
		}
		for k, v := range metadata {
			record.Metadata[k] = v
		}
	}
	return s.SaveSession(ctx, *record)
}

func (s *RedisStore) FindSession(ctx context.Context, id string) (*SessionRecord, error) {
	val, err := s.rdb.Get(ctx, sessionKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	} else if err != nil {
		return nil, err
	}

	var record SessionRecord
	if err := json.Unmarshal([]byte(val), &record); err != nil {
		return nil, fmt.Errorf("decode session record: %w", err)
	}
	return &record, nil
}

func (s *RedisStore) SaveExecution(ctx context.Context, record ExecutionRecord) error {
	if record.ID == "" {
		record.ID = fmt.Sprintf("exec-%s", uuid.New().String())
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal execution record: %w", err)
	}
	return s.rdb.Set(ctx, executionKey(record.ID), data, s.ttl).Err()
}

func (s *RedisStore) FindExecution(ctx context.Context, id string) (*ExecutionRecord, error) {
	val, err := s.rdb.Get(ctx, executionKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("execution %s: %w", id, ErrNotFound)
	} else if err != nil {
		return nil, err
	}

	var record ExecutionRecord
	if err := json.Unmarshal([]byte(val), &record); err != nil {
		return nil, fmt.Errorf("decode execution record: %w", err)
	}
	return &record, nil
}

func (s *RedisStore) SaveExtractedData(ctx context.Context, record ExtractedDataRecord) error {
	if record.ID == "" {
		record.ID = fmt.Sprintf("data-%s", uuid.New().String())
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal extracted data record: %w", err)
	}

	key := extractedKey(record.SessionID)
	if err := s.rdb.RPush(ctx, key, data).Err(); err != nil {
		return err
	}
	if s.ttl > 0 {
		return s.rdb.Expire(ctx, key, s.ttl).Err()
	}
	return nil
}
