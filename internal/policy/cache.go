package policy

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"harmonia.org/internal/obs"
)

// DefaultCacheCapacity bounds memoization growth from path-parameterized
// routes producing many distinct concrete paths.
const DefaultCacheCapacity = 10_000

type cacheKey struct {
	method string
	path   string
}

// Finder resolves the allowance for a method and path. *Policy is the
// production implementation; tests substitute counting doubles.
type Finder interface {
	Find(method, path string) Allowance
}

// Cache memoizes allowance lookups. It is a pure memoization layer over a
// static policy table: a hit must never diverge from a fresh Find on the
// same key. Safe for concurrent use; two goroutines racing on the same miss
// may both evaluate the policy, which is harmless because Find is a pure
// function of its inputs.
type Cache struct {
	entries *lru.Cache[cacheKey, Allowance]
}

// NewCache returns a bounded LRU cache. Capacities below one fall back to
// the default.
func NewCache(capacity int) (*Cache, error) {
	if capacity < 1 {
		capacity = DefaultCacheCapacity
	}
	entries, err := lru.New[cacheKey, Allowance](capacity)
	if err != nil {
		return nil, err
	}
	return &Cache{entries: entries}, nil
}

// Lookup checks the cache first and falls back to the policy table on a
// miss, storing the result before returning it.
func (c *Cache) Lookup(p Finder, method, path string) Allowance {
	key := cacheKey{method: method, path: path}
	if allowance, ok := c.entries.Get(key); ok {
		obs.PolicyCacheHit()
		return allowance
	}
	obs.PolicyCacheMiss()
	allowance := p.Find(method, path)
	c.entries.Add(key, allowance)
	return allowance
}
