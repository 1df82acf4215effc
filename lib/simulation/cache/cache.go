// Package cache implements the lineage cache of spec §4.5: a
// fingerprint (token id) to computed-lineage map with TTL expiry, a
// pluggable eviction policy, and a dependency index supporting
// invalidation by changed token. It follows the same coarse-grained,
// single-mutex shared-resource style as infrastructure/cache in the
// ambient stack (a map guarded by one sync.RWMutex; expired entries are
// dropped lazily on Get and swept by an explicit Maintenance call, with
// no background goroutine), extended with the dependency index and
// four eviction strategies the lineage cache additionally requires.
package cache

import (
	"sync"
	"time"
)

// Lineage is the minimal shape the cache needs to know about a cached
// value: its dependency set (every ancestor/descendant token id that,
// if it changes, invalidates this entry) and an estimated memory size.
// *lib/simulation/lineage.Lineage satisfies this directly.
type Lineage interface {
	Dependencies() []string
	SizeBytes() int64
}

type entry struct {
	lineage     Lineage
	computeTime time.Duration
	sizeBytes   int64
	createdAt   time.Time
	lastAccess  time.Time
	accessCount int64
}

// Config controls cache construction.
type Config struct {
	Policy     EvictionPolicy
	TTL        time.Duration
	MaxEntries int
	MaxBytes   int64
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits            int64
	Misses          int64
	Evictions       int64
	Invalidations   int64
	Entries         int
	TotalBytes      int64
}

// Cache is the lineage cache. A single coarse-grained RWMutex guards
// every map (entries, dependency index, counters) so that a get/set
// pair is atomic relative to any other cache operation, per spec §4.5's
// "mutated atomically relative to a single cache operation" requirement.
type Cache struct {
	mu     sync.RWMutex
	cfg    Config
	items  map[string]*entry
	deps   map[string]map[string]bool // token id -> set of cache keys depending on it
	stats  Stats
}

// New constructs a Cache. A zero Policy defaults to LRU; zero
// MaxEntries/MaxBytes are treated as "unbounded" on that dimension.
func New(cfg Config) *Cache {
	if cfg.Policy == "" {
		cfg.Policy = PolicyLRU
	}
	return &Cache{
		cfg:   cfg,
		items: make(map[string]*entry),
		deps:  make(map[string]map[string]bool),
	}
}

// Get retrieves the cached lineage for id. Expired entries are
// invalidated in place and reported as a miss (spec invariant #6).
func (c *Cache) Get(id string) (Lineage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[id]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	if c.cfg.TTL > 0 && time.Since(e.createdAt) > c.cfg.TTL {
		c.removeLocked(id)
		c.stats.Misses++
		return nil, false
	}
	e.lastAccess = time.Now()
	e.accessCount++
	c.stats.Hits++
	return e.lineage, true
}

// Set stores a computed lineage, evicting under the configured policy
// beforehand until both the entry-count and byte-size caps are met.
func (c *Cache) Set(id string, lineage Lineage, computeTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	e := &entry{
		lineage:     lineage,
		computeTime: computeTime,
		sizeBytes:   lineage.SizeBytes(),
		createdAt:   now,
		lastAccess:  now,
		accessCount: 0,
	}

	if old, ok := c.items[id]; ok {
		c.unindexDepsLocked(id, old)
	}
	c.items[id] = e
	c.indexDepsLocked(id, e)

	c.evictToFitLocked()
}

// Invalidate drops a single cache entry. A second call on an already
// invalidated id is a no-op, satisfying the idempotence law in spec §8.
func (c *Cache) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[id]; !ok {
		return
	}
	c.removeLocked(id)
	c.stats.Invalidations++
}

// InvalidateDependents drops every cached entry whose dependency set
// includes changedTokenID.
func (c *Cache) InvalidateDependents(changedTokenID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := c.deps[changedTokenID]
	n := 0
	for key := range keys {
		if _, ok := c.items[key]; ok {
			c.removeLocked(key)
			c.stats.Invalidations++
			n++
		}
	}
	return n
}

// InvalidateByHistoryChanges invalidates every cache entry that
// references any of the given token ids, either because the id is a
// direct dependency or because it appears in the entry's lineage
// dependency set. Callers pass newly appended token ids (both the
// newly created token and its declared sources).
func (c *Cache) InvalidateByHistoryChanges(changedTokenIDs []string) int {
	total := 0
	for _, id := range changedTokenIDs {
		total += c.InvalidateDependents(id)
	}
	return total
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*entry)
	c.deps = make(map[string]map[string]bool)
}

// Stats returns a snapshot of cache counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.stats
	s.Entries = len(c.items)
	var total int64
	for _, e := range c.items {
		total += e.sizeBytes
	}
	s.TotalBytes = total
	return s
}

// Maintenance sweeps expired entries proactively; callers may invoke it
// periodically instead of relying solely on lazy expiry in Get.
func (c *Cache) Maintenance() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cfg.TTL <= 0 {
		return 0
	}
	removed := 0
	for id, e := range c.items {
		if time.Since(e.createdAt) > c.cfg.TTL {
			c.removeLocked(id)
			removed++
		}
	}
	return removed
}

func (c *Cache) evictToFitLocked() {
	for {
		overCount := c.cfg.MaxEntries > 0 && len(c.items) > c.cfg.MaxEntries
		overBytes := c.cfg.MaxBytes > 0 && c.totalBytesLocked() > c.cfg.MaxBytes
		if !overCount && !overBytes {
			return
		}
		victim := selectVictim(c.cfg.Policy, c.items)
		if victim == "" {
			return
		}
		c.removeLocked(victim)
		c.stats.Evictions++
	}
}

func (c *Cache) totalBytesLocked() int64 {
	var total int64
	for _, e := range c.items {
		total += e.sizeBytes
	}
	return total
}

func (c *Cache) removeLocked(id string) {
	if e, ok := c.items[id]; ok {
		c.unindexDepsLocked(id, e)
		delete(c.items, id)
	}
}

func (c *Cache) indexDepsLocked(key string, e *entry) {
	for _, dep := range e.lineage.Dependencies() {
		set, ok := c.deps[dep]
		if !ok {
			set = make(map[string]bool)
			c.deps[dep] = set
		}
		set[key] = true
	}
}

func (c *Cache) unindexDepsLocked(key string, e *entry) {
	for _, dep := range e.lineage.Dependencies() {
		if set, ok := c.deps[dep]; ok {
			delete(set, key)
			if len(set) == 0 {
				delete(c.deps, dep)
			}
		}
	}
}
