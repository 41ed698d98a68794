package rediscache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zanzhit/securecam/internal/config"
)

const (
	patPrefix = "securecam:pat:"
	revoked   = "revoked"
)

// Cache remembers which personal access tokens are still live, so the
// authentication path does not hit postgres on every request.
type Cache struct {
	client redis.Cmdable
}

func New(ctx context.Context, cfg config.Redis) (*Cache, *redis.Client, error) {
	const op = "storage.redis.New"

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	return NewWithClient(client), client, nil
}

func NewWithClient(client redis.Cmdable) *Cache {
	return &Cache{client: client}
}

func (c *Cache) SetPAT(ctx context.Context, id string, userID int64, ttl time.Duration) error {
	const op = "storage.redis.SetPAT"

	if err := c.client.Set(ctx, patKey(id), userID, ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// AddPAT caches the owner unless the id already has an entry, live or revoked.
func (c *Cache) AddPAT(ctx context.Context, id string, userID int64, ttl time.Duration) (bool, error) {
	const op = "storage.redis.AddPAT"

	ok, err := c.client.SetNX(ctx, patKey(id), userID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return ok, nil
}

// RevokePAT replaces any entry with a tombstone that outlives cached owners.
func (c *Cache) RevokePAT(ctx context.Context, id string, ttl time.Duration) error {
	const op = "storage.redis.RevokePAT"

	if err := c.client.Set(ctx, patKey(id), revoked, ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// PAT returns the owner of a cached token. found is false on a cache miss,
// a revoked token is found with owner 0.
func (c *Cache) PAT(ctx context.Context, id string) (userID int64, found bool, err error) {
	const op = "storage.redis.PAT"

	val, err := c.client.Get(ctx, patKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("%s: %w", op, err)
	}

	if val == revoked {
		return 0, true, nil
	}

	userID, err = strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", op, err)
	}

	return userID, true, nil
}

func patKey(id string) string {
	return patPrefix + id
}
