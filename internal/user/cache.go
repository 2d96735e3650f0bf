package user

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	notFoundMarker = "notfound"
	notFoundTTL    = time.Minute
)

// CachedLookup is a cache-aside decorator over another Lookup. Redis
// failures are logged and the call falls through to the wrapped lookup.
type CachedLookup struct {
	next Lookup
	rdb  *redis.Client
	ttl  time.Duration
	log  zerolog.Logger
}

func NewCachedLookup(next Lookup, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *CachedLookup {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedLookup{next: next, rdb: rdb, ttl: ttl, log: log}
}

func userKey(id string) string { return "user:" + id }

func (c *CachedLookup) GetUser(ctx context.Context, id string) (*User, error) {
	key := userKey(id)
	data, err := c.rdb.Get(ctx, key).Bytes()

	switch {
	case err == nil:
		if string(data) == notFoundMarker {
			return nil, ErrNotFound
		}
		var u User
		if err := json.Unmarshal(data, &u); err != nil {
			c.log.Warn().Err(err).Str("key", key).Msg("bad cached user, reading through")
			break
		}
		return &u, nil
	case errors.Is(err, redis.Nil):
	default:
		c.log.Warn().Err(err).Msg("redis error, reading through")
	}

	u, err := c.next.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			if setErr := c.rdb.Set(ctx, key, notFoundMarker, notFoundTTL).Err(); setErr != nil {
				c.log.Warn().Err(setErr).Msg("failed to cache notfound")
			}
		}
		return nil, err
	}

	b, err := json.Marshal(u)
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to marshal user")
		return u, nil
	}
	if err := c.rdb.Set(ctx, key, b, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Msg("failed to cache user")
	}
	return u, nil
}

// Invalidate drops the cached entry for id.
func (c *CachedLookup) Invalidate(ctx context.Context, id string) {
	if err := c.rdb.Del(ctx, userKey(id)).Err(); err != nil {
		c.log.Warn().Err(err).Str("user", id).Msg("failed to invalidate cached user")
	}
}
