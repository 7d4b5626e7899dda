// Package cache stores upstream page responses in Redis so repeated runs
// against the Rick and Morty API do not refetch unchanged pages.
//
// Entries are keyed by transport, request path, query and (for GraphQL)
// a digest of the POST body. An entry is fresh until its Expires time,
// which comes from Cache-Control max-age, the Expires header, or the
// configured default TTL. After that it is kept for an additional stale
// window so the client can revalidate it with If-None-Match or
// If-Modified-Since instead of downloading the page again.
//
// # Basic Usage
//
//	manager := cache.NewManager(redisClient, cache.WithStaleWindow(time.Hour))
//
//	key := cache.CacheKey{
//		Transport:   "rest",
//		Endpoint:    "/api/character",
//		QueryParams: url.Values{"page": []string{"2"}},
//	}
//
//	entry, err := manager.Get(ctx, key)
//	switch {
//	case errors.Is(err, cache.ErrCacheMiss):
//		// fetch from upstream
//	case entry.IsExpired():
//		cache.AddConditionalHeaders(req, entry)
//	default:
//		// serve entry.Data
//	}
//
// # Metrics
//
//   - rickmorty_cache_hits_total{state="fresh|stale"}
//   - rickmorty_cache_misses_total
//   - rickmorty_cache_stored_bytes_total
//   - rickmorty_cache_revalidated_total
//   - rickmorty_cache_errors_total{operation}
package cache
