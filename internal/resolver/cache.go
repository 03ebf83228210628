package resolver

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/scrypster/recall/pkg/types"
)

// resolutionCache is a bounded LRU over recent deterministic resolutions.
// Only exact and alias outcomes are cached: fuzzy and inference outcomes
// depend on per-request context and must be recomputed.
type resolutionCache struct {
	cache *lru.Cache[string, types.ResolvedEntity]
}

func newResolutionCache(size int) (*resolutionCache, error) {
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New[string, types.ResolvedEntity](size)
	if err != nil {
		return nil, err
	}
	return &resolutionCache{cache: cache}, nil
}

// key scopes cached resolutions per user; alias tables are per-user so the
// same mention may resolve differently across users.
func (c *resolutionCache) key(userID, normalizedMention string) string {
	return userID + "\x00" + normalizedMention
}

func (c *resolutionCache) get(userID, normalizedMention string) (types.ResolvedEntity, bool) {
	return c.cache.Get(c.key(userID, normalizedMention))
}

func (c *resolutionCache) put(userID, normalizedMention string, resolved types.ResolvedEntity) {
	c.cache.Add(c.key(userID, normalizedMention), resolved)
}

func (c *resolutionCache) invalidate(userID, normalizedMention string) {
	c.cache.Remove(c.key(userID, normalizedMention))
}
