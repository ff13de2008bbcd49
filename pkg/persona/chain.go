package persona

import (
	"context"
	"errors"

	"github.com/dotsetgreg/aizoo/pkg/logger"
)

// CachedLookup asks the primary source first and remembers successful
// results in the cache. When the primary fails for any reason other than a
// definitive not-found, the cached copy is served instead.
type CachedLookup struct {
	primary Lookup
	cache   *SQLiteCache
}

func NewCachedLookup(primary Lookup, cache *SQLiteCache) *CachedLookup {
	return &CachedLookup{primary: primary, cache: cache}
}

func (c *CachedLookup) Get(ctx context.Context, identityKey string) (*Persona, error) {
	p, err := c.primary.Get(ctx, identityKey)
	if err == nil && !p.IsEmpty() {
		if saveErr := c.cache.Save(ctx, identityKey, *p); saveErr != nil {
			logger.WarnCF("persona", "Failed to cache persona", map[string]any{
				"identity_key": identityKey,
				"error":        saveErr.Error(),
			})
		}
		return p, nil
	}
	if err != nil && errors.Is(err, ErrNotFound) {
		return nil, err
	}

	cached, cacheErr := c.cache.Get(ctx, identityKey)
	if cacheErr != nil {
		if err != nil {
			return nil, errors.Join(err, cacheErr)
		}
		return p, nil
	}
	logger.WarnCF("persona", "Serving cached persona", map[string]any{
		"identity_key": identityKey,
	})
	return cached, nil
}
