package cache

// EvictionPolicy selects which cached entry to evict first when the
// cache is over capacity. Spec §4.5/§9 calls for a single cache type
// parameterised by a pluggable policy rather than one cache
// implementation per strategy.
type EvictionPolicy string

const (
	PolicyLRU    EvictionPolicy = "lru"
	PolicyLFU    EvictionPolicy = "lfu"
	PolicyTTL    EvictionPolicy = "ttl"
	PolicyMemory EvictionPolicy = "memory"
)

// evictFirst reports whether a should be evicted before b under policy:
// LRU evicts the least-recently-accessed entry first, LFU the
// least-frequently-accessed, TTL the oldest by creation timestamp, and
// Memory the largest by estimated size.
func evictFirst(policy EvictionPolicy, a, b *entry) bool {
	switch policy {
	case PolicyLFU:
		return a.accessCount < b.accessCount
	case PolicyTTL:
		return a.createdAt.Before(b.createdAt)
	case PolicyMemory:
		return a.sizeBytes > b.sizeBytes
	default: // PolicyLRU and unknown policies fall back to LRU
		return a.lastAccess.Before(b.lastAccess)
	}
}

// selectVictim returns the cache key the given policy would evict
// first among entries. Ties are broken by key order for determinism.
func selectVictim(policy EvictionPolicy, entries map[string]*entry) string {
	var victimKey string
	var victim *entry

	for key, e := range entries {
		switch {
		case victim == nil:
			victimKey, victim = key, e
		case evictFirst(policy, e, victim):
			victimKey, victim = key, e
		case !evictFirst(policy, victim, e) && key < victimKey:
			victimKey, victim = key, e
		}
	}
	return victimKey
}
