package events

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/technosupport/frl-toolbox/internal/audit"
)

type Dedup struct {
	mu    sync.Mutex
	cache *lru.Cache[string, time.Time]
	ttl   time.Duration
	now   func() time.Time
}

func NewDedup(maxKeys int, ttl time.Duration) *Dedup {
	if maxKeys <= 0 {
		maxKeys = 4096
	}
	c, _ := lru.New[string, time.Time](maxKeys)
	return &Dedup{
		cache: c,
		ttl:   ttl,
		now:   time.Now,
	}
}

func (d *Dedup) IsDuplicate(key string) bool {
	if key == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if addedAt, ok := d.cache.Get(key); ok && now.Sub(addedAt) < d.ttl {
		return true
	}
	d.cache.Add(key, now)
	return false
}

// BuildDedupKey identifies a client exchange. Requests without a request id
// are never deduplicated.
func BuildDedupKey(tx audit.Transaction) string {
	if tx.RequestID == "" {
		return ""
	}
	return fmt.Sprintf("%s|%s|%s|%s", tx.Kind, tx.RequestID, tx.Result, tx.DeviceID)
}
