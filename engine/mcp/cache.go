package mcp

import (
	"encoding/json"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// responseCache memoizes tool/resource call results keyed by
// (server, tool|resource uri, canonicalized params), per spec §4.3. A hit
// never reaches the subprocess and is reported to the caller so it can flag
// the corresponding McpResponse event `cached: true`.
type responseCache struct {
	lru *expirable.LRU[string, string]
}

func newResponseCache(maxEntries int, ttl time.Duration) *responseCache {
	if maxEntries <= 0 {
		maxEntries = 256
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &responseCache{lru: expirable.NewLRU[string, string](maxEntries, nil, ttl)}
}

func (c *responseCache) get(key string) (string, bool) {
	return c.lru.Get(key)
}

func (c *responseCache) put(key, value string) {
	c.lru.Add(key, value)
}

// toolCacheKey canonicalizes args by round-tripping through encoding/json,
// which serializes map keys in sorted order, so two structurally identical
// argument maps always produce the same key regardless of insertion order.
func toolCacheKey(server, tool string, args map[string]any) string {
	return server + "\x00tool:" + tool + "\x00" + canonicalize(args)
}

func resourceCacheKey(server, uri string) string {
	return server + "\x00resource:" + uri
}

// canonicalize renders args as JSON. encoding/json sorts map keys
// lexicographically when marshaling, so this is already a stable key
// regardless of the map's insertion order.
func canonicalize(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	b, err := json.Marshal(args)
	if err != nil {
		return ""
	}
	return string(b)
}
