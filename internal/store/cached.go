package store

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/voyagen/epgsync/internal/cache"
	"github.com/voyagen/epgsync/internal/logging"
	"github.com/voyagen/epgsync/internal/models"
)

// Cache TTLs for different entity types.
const (
	ttlSources  = 2 * time.Minute
	ttlCatalog  = 10 * time.Minute
	ttlMappings = 5 * time.Minute
	ttlChannels = 1 * time.Minute
	ttlChannel  = 5 * time.Minute
)

var (
	keySources  = cache.Key("epg", "sources")
	keyCatalog  = cache.Key("epg", "catalog")
	keyMappings = cache.Key("epg", "mappings")

	patternCatalogPages = cache.Key("epg", "catalog", "*")
	patternChannelPages = cache.Key("channels", "*")
)

func keyChannel(id string) string { return cache.Key("channel", id) }

// CachedStore wraps a Store with a Redis caching layer. Reads are served
// from cache when possible; writes invalidate the keys they affect.
// AllChannels always reads through so that a reconciliation pass sees the
// current rows.
type CachedStore struct {
	inner  Store
	cache  *cache.Redis
	logger *zap.Logger
}

// NewCachedStore creates a CachedStore that wraps inner with Redis caching.
func NewCachedStore(inner Store, c *cache.Redis, logger *zap.Logger) *CachedStore {
	return &CachedStore{inner: inner, cache: c, logger: logging.Component(logger, "cache")}
}

// cached serves key from Redis or loads and stores it.
func cached[T any](ctx context.Context, c *CachedStore, key string, ttl time.Duration, load func() (T, error)) (T, error) {
	if v, err := cache.Get[T](ctx, c.cache, key); err == nil {
		return v, nil
	} else if !cache.IsMiss(err) {
		c.logger.Debug("cache get failed", zap.String("key", key), zap.Error(err))
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	if err := cache.Set(ctx, c.cache, key, v, ttl); err != nil {
		c.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
	return v, nil
}

type page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

// --- cached reads ---

func (c *CachedStore) ListChannels(ctx context.Context, filter ChannelFilter) ([]models.Channel, int, error) {
	key := cache.Key("channels", filterHash(filter))
	p, err := cached(ctx, c, key, ttlChannels, func() (page[models.Channel], error) {
		items, total, err := c.inner.ListChannels(ctx, filter)
		return page[models.Channel]{Items: items, Total: total}, err
	})
	return p.Items, p.Total, err
}

func (c *CachedStore) GetChannel(ctx context.Context, id string) (*models.Channel, error) {
	return cached(ctx, c, keyChannel(id), ttlChannel, func() (*models.Channel, error) {
		return c.inner.GetChannel(ctx, id)
	})
}

func (c *CachedStore) ListEPGSources(ctx context.Context) ([]models.EPGSource, error) {
	return cached(ctx, c, keySources, ttlSources, func() ([]models.EPGSource, error) {
		return c.inner.ListEPGSources(ctx)
	})
}

func (c *CachedStore) ListCatalog(ctx context.Context) ([]models.CatalogEntry, error) {
	return cached(ctx, c, keyCatalog, ttlCatalog, func() ([]models.CatalogEntry, error) {
		return c.inner.ListCatalog(ctx)
	})
}

func (c *CachedStore) SearchCatalog(ctx context.Context, filter CatalogFilter) ([]models.CatalogEntry, int, error) {
	key := cache.Key("epg", "catalog", catalogFilterHash(filter))
	p, err := cached(ctx, c, key, ttlCatalog, func() (page[models.CatalogEntry], error) {
		items, total, err := c.inner.SearchCatalog(ctx, filter)
		return page[models.CatalogEntry]{Items: items, Total: total}, err
	})
	return p.Items, p.Total, err
}

func (c *CachedStore) ListMappings(ctx context.Context) ([]models.PatternMapping, error) {
	return cached(ctx, c, keyMappings, ttlMappings, func() ([]models.PatternMapping, error) {
		return c.inner.ListMappings(ctx)
	})
}

// --- passthrough ---

func (c *CachedStore) AllChannels(ctx context.Context) ([]models.Channel, error) {
	return c.inner.AllChannels(ctx)
}

func (c *CachedStore) GetEPGSource(ctx context.Context, id int64) (*models.EPGSource, error) {
	return c.inner.GetEPGSource(ctx, id)
}

func (c *CachedStore) NearestCatalog(ctx context.Context, vec []float32, limit int) ([]models.CatalogEntry, error) {
	return c.inner.NearestCatalog(ctx, vec, limit)
}

// --- writes with invalidation ---

func (c *CachedStore) CreateChannel(ctx context.Context, ch *models.Channel) error {
	if err := c.inner.CreateChannel(ctx, ch); err != nil {
		return err
	}
	c.invalidatePattern(ctx, patternChannelPages)
	return nil
}

func (c *CachedStore) UpsertChannel(ctx context.Context, ch *models.Channel) (bool, error) {
	created, err := c.inner.UpsertChannel(ctx, ch)
	if err != nil {
		return false, err
	}
	c.invalidate(ctx, keyChannel(ch.ID))
	c.invalidatePattern(ctx, patternChannelPages)
	return created, nil
}

func (c *CachedStore) UpdateChannel(ctx context.Context, id string, fields ChannelUpdate) error {
	return c.channelWrite(ctx, id, c.inner.UpdateChannel(ctx, id, fields))
}

func (c *CachedStore) SetChannelEPG(ctx context.Context, id string, fields models.EPGFields) error {
	return c.channelWrite(ctx, id, c.inner.SetChannelEPG(ctx, id, fields))
}

func (c *CachedStore) ApplyChannelEPG(ctx context.Context, id string, fields models.EPGFields) error {
	return c.channelWrite(ctx, id, c.inner.ApplyChannelEPG(ctx, id, fields))
}

func (c *CachedStore) SetChannelProtection(ctx context.Context, id string, protected bool) error {
	return c.channelWrite(ctx, id, c.inner.SetChannelProtection(ctx, id, protected))
}

func (c *CachedStore) DeleteChannel(ctx context.Context, id string) error {
	return c.channelWrite(ctx, id, c.inner.DeleteChannel(ctx, id))
}

func (c *CachedStore) channelWrite(ctx context.Context, id string, err error) error {
	if err != nil {
		return err
	}
	c.invalidate(ctx, keyChannel(id))
	c.invalidatePattern(ctx, patternChannelPages)
	return nil
}

func (c *CachedStore) CreateEPGSource(ctx context.Context, src *models.EPGSource) error {
	return c.sourceWrite(ctx, c.inner.CreateEPGSource(ctx, src))
}

func (c *CachedStore) UpdateEPGSource(ctx context.Context, id int64, fields EPGSourceUpdate) error {
	return c.sourceWrite(ctx, c.inner.UpdateEPGSource(ctx, id, fields))
}

func (c *CachedStore) DeleteEPGSource(ctx context.Context, id int64) error {
	return c.sourceWrite(ctx, c.inner.DeleteEPGSource(ctx, id))
}

func (c *CachedStore) RecordEPGFetch(ctx context.Context, id int64, fetchErr error) error {
	return c.sourceWrite(ctx, c.inner.RecordEPGFetch(ctx, id, fetchErr))
}

func (c *CachedStore) ReplaceCatalog(ctx context.Context, sourceID int64, entries []models.CatalogEntry) error {
	return c.sourceWrite(ctx, c.inner.ReplaceCatalog(ctx, sourceID, entries))
}

// sourceWrite drops the source list and every catalog key: source state
// decides which entries are visible and how ties break.
func (c *CachedStore) sourceWrite(ctx context.Context, err error) error {
	if err != nil {
		return err
	}
	c.invalidate(ctx, keySources, keyCatalog)
	c.invalidatePattern(ctx, patternCatalogPages)
	return nil
}

func (c *CachedStore) CreateMapping(ctx context.Context, m *models.PatternMapping) error {
	if err := c.inner.CreateMapping(ctx, m); err != nil {
		return err
	}
	c.invalidate(ctx, keyMappings)
	return nil
}

func (c *CachedStore) DeleteMapping(ctx context.Context, id int64) error {
	if err := c.inner.DeleteMapping(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, keyMappings)
	return nil
}

// --- helpers ---

func (c *CachedStore) invalidate(ctx context.Context, keys ...string) {
	if err := cache.Del(ctx, c.cache, keys...); err != nil && !cache.IsMiss(err) {
		c.logger.Warn("cache del failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func (c *CachedStore) invalidatePattern(ctx context.Context, patterns ...string) {
	for _, p := range patterns {
		if err := cache.DelPattern(ctx, c.cache, p); err != nil {
			c.logger.Warn("cache del pattern failed", zap.String("pattern", p), zap.Error(err))
		}
	}
}

// filterHash produces a short deterministic hash of a ChannelFilter for use
// in a cache key.
func filterHash(f ChannelFilter) string {
	raw := fmt.Sprintf("%q|%s|%s|%s|%d|%d",
		f.Search, ptrString(f.Group), ptrString(f.HasEPG), ptrString(f.Protected), ClampLimit(f.Limit), f.Offset)
	return shortHash(raw)
}

func catalogFilterHash(f CatalogFilter) string {
	raw := fmt.Sprintf("%q|%s|%d|%d", f.Search, ptrString(f.SourceID), ClampLimit(f.Limit), f.Offset)
	return "q" + shortHash(raw)
}

func ptrString[T any](p *T) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%v", *p)
}

func shortHash(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", h[:8])
}
