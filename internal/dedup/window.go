// Package dedup remembers recently seen inbound message ids so retried
// webhook deliveries are processed once.
package dedup

import (
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultSize = 10000
	defaultTTL  = 10 * time.Minute
)

// Window is bounded two ways: at most size ids, each for at most ttl. The
// least recently added id is evicted first when full.
type Window struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, struct{}]
}

// NewWindow builds a window; non-positive arguments take the defaults.
func NewWindow(size int, ttl time.Duration) *Window {
	if size <= 0 {
		size = defaultSize
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Window{cache: expirable.NewLRU[string, struct{}](size, nil, ttl)}
}

// Seen records id and reports whether it was already in the window. Empty
// ids are never considered duplicates.
func (w *Window) Seen(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.cache.Get(id); ok {
		return true
	}
	w.cache.Add(id, struct{}{})
	return false
}

// Forget drops id, letting a failed delivery be retried.
func (w *Window) Forget(id string) {
	w.cache.Remove(strings.TrimSpace(id))
}

// Len reports how many ids are held, including any not yet swept.
func (w *Window) Len() int {
	return w.cache.Len()
}
