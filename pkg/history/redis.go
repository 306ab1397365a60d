package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps records in a capped Redis list, newest at the head.
type RedisStore struct {
	client *redis.Client
	key    string
	keep   int
}

// NewRedisStore connects to url, which is either a redis:// URL or a bare
// host:port, and pings the server.
func NewRedisStore(ctx context.Context, url, key string, keep int) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		opt = &redis.Options{Addr: url}
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, &unavailableError{fmt.Errorf("connect redis: %w", err)}
	}
	return NewRedisStoreFromClient(client, key, keep), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, key string, keep int) *RedisStore {
	if keep <= 0 {
		keep = DefaultKeep
	}
	return &RedisStore{client: client, key: key, keep: keep}
}

func (s *RedisStore) Add(ctx context.Context, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, s.key, data)
	pipe.LTrim(ctx, s.key, 0, int64(s.keep-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis add: %w", err)
	}
	return nil
}

func (s *RedisStore) Recent(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 || limit > s.keep {
		limit = s.keep
	}
	raw, err := s.client.LRange(ctx, s.key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis recent: %w", err)
	}
	out := make([]*Record, 0, len(raw))
	for _, item := range raw {
		var rec Record
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			continue
		}
		out = append(out, &rec)
	}
	return out, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
