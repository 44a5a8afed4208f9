package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/svglol/dinkdonkbot/internal/domain"
	"github.com/svglol/dinkdonkbot/internal/metrics"
)

const (
	nameCachePrefix = "autocomplete:"
	nameCacheTTL    = 5 * time.Minute
)

// NameCache provides read-through caching of per-guild subscription
// names for command autocomplete: Redis → PostgreSQL.
type NameCache struct {
	rdb  goredis.Cmdable
	subs domain.SubscriptionRepository
}

// NewNameCache creates a new read-through autocomplete name cache.
// rdb may be nil, in which case every lookup goes to the store.
func NewNameCache(rdb goredis.Cmdable, subs domain.SubscriptionRepository) *NameCache {
	return &NameCache{rdb: rdb, subs: subs}
}

// ListNames returns the guild's subscription names for a platform.
// Redis errors fall through to the store; the cache is best-effort.
func (c *NameCache) ListNames(ctx context.Context, platform domain.Platform, guildID string) ([]string, error) {
	key := nameCachePrefix + string(platform) + ":" + guildID

	if c.rdb != nil {
		data, err := c.rdb.Get(ctx, key).Bytes()
		if err == nil {
			var names []string
			if err := json.Unmarshal(data, &names); err != nil {
				slog.Warn("Failed to unmarshal cached names, falling through to store",
					"guild_id", guildID, "error", err)
			} else {
				metrics.AutocompleteCacheHits.WithLabelValues("redis").Inc()
				return names, nil
			}
		} else if !errors.Is(err, goredis.Nil) && !errors.Is(err, ErrCircuitOpen) {
			slog.Warn("Redis name cache GET failed, falling through to store",
				"guild_id", guildID, "error", err)
		}
	}

	names, err := c.subs.ListNames(ctx, platform, guildID)
	if err != nil {
		return nil, fmt.Errorf("name lookup failed: %w", err)
	}
	metrics.AutocompleteCacheHits.WithLabelValues("postgres").Inc()

	if c.rdb != nil {
		if encoded, err := json.Marshal(names); err == nil {
			if err := c.rdb.Set(ctx, key, encoded, nameCacheTTL).Err(); err != nil && !errors.Is(err, ErrCircuitOpen) {
				slog.Warn("Failed to populate name cache", "guild_id", guildID, "error", err)
			}
		}
	}

	return names, nil
}

// Invalidate drops the cached names for a guild on both platforms.
// Called after subscriptions change.
func (c *NameCache) Invalidate(ctx context.Context, guildID string) {
	if c.rdb == nil {
		return
	}
	keys := []string{
		nameCachePrefix + string(domain.PlatformTwitch) + ":" + guildID,
		nameCachePrefix + string(domain.PlatformKick) + ":" + guildID,
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil && !errors.Is(err, ErrCircuitOpen) {
		slog.Warn("Failed to invalidate name cache", "guild_id", guildID, "error", err)
	}
}
