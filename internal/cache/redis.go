package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/keepswell/keepswell-api/internal/template"
)

type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Get unmarshals the value at key into dest. A miss returns redis.Nil.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return fmt.Errorf("cache get %s: %w", key, err)
	}
	return json.Unmarshal(val, dest)
}

func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value: %w", err)
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	return c.client.Del(ctx, keys...).Err()
}

// ConfigCache stores ResolvedConfigs keyed by journal id and generation.
// Invalidate bumps the generation, so a load that started before it writes
// to a key no reader will ask for again. Redis failures degrade to a miss;
// the config is always recomputable from its sources.
type ConfigCache struct {
	cache *Cache
	ttl   time.Duration
	group singleflight.Group
}

func NewConfigCache(client *redis.Client, ttl time.Duration) *ConfigCache {
	return &ConfigCache{cache: NewCache(client), ttl: ttl}
}

func configKey(journalID uuid.UUID, gen int64) string {
	return fmt.Sprintf("journal:%s:config:%d", journalID, gen)
}

func generationKey(journalID uuid.UUID) string {
	return "journal:" + journalID.String() + ":config:gen"
}

func (c *ConfigCache) generation(ctx context.Context, journalID uuid.UUID) (int64, error) {
	gen, err := c.cache.client.Get(ctx, generationKey(journalID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// GetOrLoad returns the cached config or calls load, deduplicating
// concurrent loads for the same journal generation.
func (c *ConfigCache) GetOrLoad(ctx context.Context, journalID uuid.UUID, load func(context.Context) (*template.ResolvedConfig, error)) (*template.ResolvedConfig, error) {
	gen, err := c.generation(ctx, journalID)
	if err != nil {
		slog.Warn("config cache read failed", "journal_id", journalID, "error", err)
		return load(ctx)
	}
	key := configKey(journalID, gen)

	var rc template.ResolvedConfig
	err = c.cache.Get(ctx, key, &rc)
	if err == nil {
		return &rc, nil
	}
	if !errors.Is(err, redis.Nil) {
		slog.Warn("config cache read failed", "journal_id", journalID, "error", err)
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		loaded, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.cache.Set(ctx, key, loaded, c.ttl); err != nil {
			slog.Warn("config cache write failed", "journal_id", journalID, "error", err)
		}
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*template.ResolvedConfig), nil
}

// Invalidate moves each journal to a new generation and drops the entry
// cached under the old one.
func (c *ConfigCache) Invalidate(ctx context.Context, journalIDs ...uuid.UUID) error {
	if len(journalIDs) == 0 {
		return nil
	}
	incrs := make([]*redis.IntCmd, len(journalIDs))
	_, err := c.cache.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range journalIDs {
			incrs[i] = pipe.Incr(ctx, generationKey(id))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate config cache: %w", err)
	}

	stale := make([]string, len(journalIDs))
	for i, id := range journalIDs {
		stale[i] = configKey(id, incrs[i].Val()-1)
	}
	if err := c.cache.Delete(ctx, stale...); err != nil {
		slog.Warn("config cache cleanup failed", "error", err)
	}
	return nil
}
