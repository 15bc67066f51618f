package license

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds the number of decoded payloads kept by a Decoder.
const DefaultCacheSize = 256

// PayloadCache remembers decoded payloads by the digest of their encoded
// form. Decoding is deterministic, so an entry never goes stale.
type PayloadCache struct {
	cache *lru.Cache[string, payloadInfo]
}

func NewPayloadCache(size int) *PayloadCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, _ := lru.New[string, payloadInfo](size)
	return &PayloadCache{cache: c}
}

// get returns a copy of the cached payload so callers cannot alias it.
func (c *PayloadCache) get(raw string) (payloadInfo, bool) {
	info, ok := c.cache.Get(digest(raw))
	if !ok {
		return payloadInfo{}, false
	}
	info.mode.CensusCodes = slices.Clone(info.mode.CensusCodes)
	return info, true
}

func (c *PayloadCache) add(raw string, info payloadInfo) {
	info.mode.CensusCodes = slices.Clone(info.mode.CensusCodes)
	c.cache.Add(digest(raw), info)
}

// Len reports the number of cached payloads.
func (c *PayloadCache) Len() int {
	return c.cache.Len()
}

func digest(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
