package question

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultCacheTTL = 5 * time.Minute

// Cache keeps candidate pools per (difficulty, type) in Redis so round
// starts do not hit Postgres.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ PoolCache = (*Cache)(nil)

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) key(criteria Criteria) string {
	return "questionpool:" + criteria.Difficulty + ":" + criteria.QuestionType
}

// Get returns nil without error on a miss.
func (c *Cache) Get(ctx context.Context, criteria Criteria) ([]Question, error) {
	data, err := c.client.Get(ctx, c.key(criteria)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var pool []Question
	if err := json.Unmarshal(data, &pool); err != nil {
		return nil, err
	}
	return pool, nil
}

func (c *Cache) Set(ctx context.Context, criteria Criteria, pool []Question) error {
	data, err := json.Marshal(pool)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(criteria), data, c.ttl).Err()
}

func (c *Cache) Invalidate(ctx context.Context, criteria Criteria) error {
	return c.client.Del(ctx, c.key(criteria)).Err()
}
