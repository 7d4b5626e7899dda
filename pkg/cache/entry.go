package cache

import (
	"time"
)

// CacheEntry is a cached upstream response body plus its validators.
type CacheEntry struct {
	Data []byte `json:"data"`

	// ETag and LastModified drive conditional revalidation.
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"last_modified,omitempty"`

	// Expires is when the entry stops being fresh.
	Expires time.Time `json:"expires"`

	StatusCode int       `json:"status_code"`
	CachedAt   time.Time `json:"cached_at"`
}

// IsExpired reports whether the entry is past its freshness lifetime.
func (e *CacheEntry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the remaining freshness lifetime, or 0 when stale.
func (e *CacheEntry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// CanRevalidate reports whether the entry carries a validator.
func (e *CacheEntry) CanRevalidate() bool {
	return e.ETag != "" || !e.LastModified.IsZero()
}
