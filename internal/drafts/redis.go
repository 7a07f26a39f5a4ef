package drafts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/starford/quire/internal/apperr"
)

// RedisStore keeps drafts in Redis as JSON values with a TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to redisURL and checks the connection.
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisStoreWithClient(client, ttl), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, prefix: "draft:", ttl: ttl}
}

func (s *RedisStore) key(articleID int64) string {
	return s.prefix + strconv.FormatInt(articleID, 10)
}

// Save stores d, replacing any earlier draft of the same article.
func (s *RedisStore) Save(ctx context.Context, d Draft) error {
	if d.SavedAt.IsZero() {
		d.SavedAt = time.Now().UTC()
	}
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal draft: %w", err)
	}
	if err := s.client.Set(ctx, s.key(d.ArticleID), data, s.ttl).Err(); err != nil {
		return apperr.Transport("save draft", err)
	}
	return nil
}

// Get loads the draft of an article.
func (s *RedisStore) Get(ctx context.Context, articleID int64) (Draft, error) {
	data, err := s.client.Get(ctx, s.key(articleID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Draft{}, fmt.Errorf("draft for article %d: %w", articleID, apperr.ErrNotFound)
	}
	if err != nil {
		return Draft{}, apperr.Transport("get draft", err)
	}
	var d Draft
	if err := json.Unmarshal(data, &d); err != nil {
		return Draft{}, fmt.Errorf("unmarshal draft: %w", err)
	}
	return d, nil
}

// Delete removes the draft of an article. Deleting a missing draft is not an error.
func (s *RedisStore) Delete(ctx context.Context, articleID int64) error {
	if err := s.client.Del(ctx, s.key(articleID)).Err(); err != nil {
		return apperr.Transport("delete draft", err)
	}
	return nil
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
