package dispatcher

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	dedupCapacity = 1000
	dedupTTL      = 1 * time.Hour
)

// Dedup is the ingress deduplication store named in spec.md §4.6 step 2: a
// bounded TTL cache keyed by MsgId. Keys are marked present before dispatch
// to close the race window between two deliveries of the same message;
// Forget undoes that mark if dispatch subsequently fails, allowing retry.
type Dedup struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, struct{}]
}

// NewDedup creates a Dedup with the capacity/TTL spec.md §4.6 and
// SPEC_FULL's dedup config (overridable; defaults match the 1000/3600s the
// spec names).
func NewDedup(capacity int, ttl time.Duration) *Dedup {
	if capacity <= 0 {
		capacity = dedupCapacity
	}
	if ttl <= 0 {
		ttl = dedupTTL
	}
	return &Dedup{cache: expirable.NewLRU[string, struct{}](capacity, nil, ttl)}
}

// Claim marks key present, returning false if it was already present (a
// duplicate delivery that should be dropped).
func (d *Dedup) Claim(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.cache.Get(key); ok {
		return false
	}
	d.cache.Add(key, struct{}{})
	return true
}

// Forget removes key, used when a claimed dispatch subsequently fails.
func (d *Dedup) Forget(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cache.Remove(key)
}
