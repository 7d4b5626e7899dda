package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix namespaces every key written by this package.
const KeyPrefix = "rickmorty"

// CacheKey identifies one cached upstream response.
type CacheKey struct {
	// Transport is "rest" or "graphql".
	Transport string

	// Endpoint is the request path, e.g. "/api/character".
	Endpoint string

	// QueryParams are the request query parameters, e.g. page=2.
	QueryParams url.Values

	// Body is the POST payload. Only its digest ends up in the key.
	Body []byte
}

// KeyFromURL builds a key from a request URL and optional body.
func KeyFromURL(transport, rawURL string, body []byte) (CacheKey, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return CacheKey{}, fmt.Errorf("parse url: %w", err)
	}
	return CacheKey{
		Transport:   transport,
		Endpoint:    u.Path,
		QueryParams: u.Query(),
		Body:        body,
	}, nil
}

// String generates a deterministic key.
//
//	rickmorty:rest:api/character:page=2
//	rickmorty:graphql:graphql:body=3f1c9a0e5b7d2c44
func (k CacheKey) String() string {
	parts := []string{KeyPrefix}
	if k.Transport != "" {
		parts = append(parts, k.Transport)
	}

	if endpoint := strings.Trim(k.Endpoint, "/"); endpoint != "" {
		parts = append(parts, endpoint)
	}

	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.QueryParams.Get(key)))
		}
	}

	if len(k.Body) > 0 {
		sum := sha256.Sum256(k.Body)
		parts = append(parts, "body="+hex.EncodeToString(sum[:8]))
	}

	return strings.Join(parts, ":")
}
