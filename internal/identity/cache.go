package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/AgaveCraft/PlotSquared/internal/logging"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// CachedLookup кэширует найденных игроков в Redis. Промахи не кэшируются.
type CachedLookup struct {
	next   Lookup
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

// NewCachedLookup оборачивает next кэшем Redis по адресу addr.
func NewCachedLookup(next Lookup, addr string, ttl time.Duration) (*CachedLookup, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return &CachedLookup{next: next, rdb: rdb, ttl: ttl, prefix: "plots:identity:"}, nil
}

func (c *CachedLookup) key(name string) string {
	return c.prefix + strings.ToLower(name)
}

func (c *CachedLookup) Lookup(ctx context.Context, name string) (uuid.UUID, bool, error) {
	val, err := c.rdb.Get(ctx, c.key(name)).Result()
	switch {
	case err == nil:
		if id, perr := uuid.Parse(val); perr == nil {
			return id, true, nil
		}
	case errors.Is(err, redis.Nil):
	case errors.Is(err, context.DeadlineExceeded):
		return uuid.Nil, false, err
	default:
		logging.Warn("⚠️ Redis кэш игроков недоступен: %v", err)
	}

	id, ok, err := c.next.Lookup(ctx, name)
	if err != nil || !ok {
		return id, ok, err
	}
	if err := c.rdb.Set(ctx, c.key(name), id.String(), c.ttl).Err(); err != nil {
		logging.Warn("⚠️ Не удалось закэшировать игрока %s: %v", name, err)
	}
	return id, true, nil
}

// Close closes the Redis client.
func (c *CachedLookup) Close() error {
	return c.rdb.Close()
}
