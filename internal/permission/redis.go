package permission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/pkordes/tripsync/backend/internal/domain"
)

// nonMember is stored for users confirmed not to belong to the trip.
const nonMember = "-"

// RedisCache shares resolved roles between API instances.
// Keys are "role:{trip}:{user}" so a whole trip can be dropped with one scan.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache connects to redisURL and verifies the connection.
func NewRedisCache(ctx context.Context, redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisCacheWithClient(client), nil
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client, prefix: "role:"}
}

var _ Cache = (*RedisCache)(nil)

func (c *RedisCache) key(userID, tripID uuid.UUID) string {
	return c.prefix + tripID.String() + ":" + userID.String()
}

func (c *RedisCache) Get(ctx context.Context, userID, tripID uuid.UUID) (domain.Role, bool, error) {
	v, err := c.client.Get(ctx, c.key(userID, tripID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get role: %w", err)
	}
	if v == nonMember {
		return "", true, nil
	}
	role, err := domain.ParseRole(v)
	if err != nil {
		// Unreadable entries count as misses; the next Set overwrites them.
		return "", false, nil
	}
	return role, true, nil
}

func (c *RedisCache) Set(ctx context.Context, userID, tripID uuid.UUID, role domain.Role, ttl time.Duration) error {
	v := string(role)
	if v == "" {
		v = nonMember
	}
	if err := c.client.Set(ctx, c.key(userID, tripID), v, ttl).Err(); err != nil {
		return fmt.Errorf("set role: %w", err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, userID, tripID uuid.UUID) error {
	if err := c.client.Del(ctx, c.key(userID, tripID)).Err(); err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	return nil
}

func (c *RedisCache) DeleteTrip(ctx context.Context, tripID uuid.UUID) error {
	pattern := c.prefix + tripID.String() + ":*"
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan roles: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete trip roles: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
