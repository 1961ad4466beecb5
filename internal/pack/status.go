package pack

// CacheStatus classifies a cache lookup for a code package.
type CacheStatus string

const (
	// CacheAbsent indicates that no usable cache entry exists for the package.
	CacheAbsent CacheStatus = "absent"
	// CacheStale indicates that a cache entry exists but can't be reused,
	// because the package sources changed or a rebuild was forced.
	CacheStale CacheStatus = "stale"
	// CacheValid indicates that the cache entry matches the package sources.
	CacheValid CacheStatus = "valid"
)

// ResolveCacheStatus classifies a cache entry against the package's current
// content hash. A nil entry means the package was never cached. forceRebuild
// marks an existing entry stale regardless of its hash.
func ResolveCacheStatus(entry *Entry, hash string, forceRebuild bool) CacheStatus {
	switch {
	case entry == nil:
		return CacheAbsent
	case forceRebuild || entry.Hash != hash:
		return CacheStale
	default:
		return CacheValid
	}
}
