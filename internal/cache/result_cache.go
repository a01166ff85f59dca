package cache

import (
	"container/list"
	"sync"
	"time"
)

// Default values
const (
	defaultMaxSize = 1000
	defaultMaxAge  = 600 * time.Second
)

type cacheEntry[K comparable, V any] struct {
	key       K
	value     V
	timestamp time.Time
	element   *list.Element // pointer to the element in the list
}

// ResultCache is a size and age bounded cache. Once full, the least
// recently written entry is evicted.
type ResultCache[K comparable, V any] struct {
	lock    sync.Mutex
	entries map[K]*cacheEntry[K, V]
	order   *list.List // oldest at Front, newest at Back
	maxSize int
	maxAge  time.Duration
	done    chan struct{}
	once    sync.Once
}

// NewResultCache creates a ResultCache holding at most maxSize entries for at
// most maxAge each. Non-positive values fall back to the defaults.
func NewResultCache[K comparable, V any](maxSize int, maxAge time.Duration) *ResultCache[K, V] {
	if maxSize <= 0 {
		maxSize = defaultMaxSize
	}
	if maxAge <= 0 {
		maxAge = defaultMaxAge
	}
	rc := &ResultCache[K, V]{
		entries: make(map[K]*cacheEntry[K, V]),
		order:   list.New(),
		maxSize: maxSize,
		maxAge:  maxAge,
		done:    make(chan struct{}),
	}
	go rc.periodicCleanup()
	return rc
}

func (rc *ResultCache[K, V]) Set(key K, value V) {
	rc.lock.Lock()
	defer rc.lock.Unlock()
	if entry, exists := rc.entries[key]; exists {
		// Update and move to back
		entry.value = value
		entry.timestamp = time.Now()
		rc.order.MoveToBack(entry.element)
		return
	}
	entry := &cacheEntry[K, V]{
		key:       key,
		value:     value,
		timestamp: time.Now(),
	}
	entry.element = rc.order.PushBack(entry)
	rc.entries[key] = entry
	for len(rc.entries) > rc.maxSize {
		oldest := rc.order.Front()
		if oldest == nil {
			break
		}
		oldestEntry := oldest.Value.(*cacheEntry[K, V])
		delete(rc.entries, oldestEntry.key)
		rc.order.Remove(oldest)
	}
}

func (rc *ResultCache[K, V]) Get(key K) (V, bool) {
	rc.lock.Lock()
	defer rc.lock.Unlock()
	var zero V
	entry, exists := rc.entries[key]
	if !exists {
		return zero, false
	}
	if time.Since(entry.timestamp) > rc.maxAge {
		rc.order.Remove(entry.element)
		delete(rc.entries, key)
		return zero, false
	}
	return entry.value, true
}

func (rc *ResultCache[K, V]) Delete(key K) {
	rc.lock.Lock()
	defer rc.lock.Unlock()
	if entry, exists := rc.entries[key]; exists {
		rc.order.Remove(entry.element)
		delete(rc.entries, key)
	}
}

func (rc *ResultCache[K, V]) Len() int {
	rc.lock.Lock()
	defer rc.lock.Unlock()
	return len(rc.entries)
}

// Close stops the background cleanup.
func (rc *ResultCache[K, V]) Close() {
	rc.once.Do(func() { close(rc.done) })
}

func (rc *ResultCache[K, V]) periodicCleanup() {
	ticker := time.NewTicker(rc.maxAge / 2)
	defer ticker.Stop()
	for {
		select {
		case <-rc.done:
			return
		case <-ticker.C:
			rc.cleanupExpired()
		}
	}
}

func (rc *ResultCache[K, V]) cleanupExpired() {
	rc.lock.Lock()
	defer rc.lock.Unlock()
	now := time.Now()
	for e := rc.order.Front(); e != nil; {
		next := e.Next()
		entry := e.Value.(*cacheEntry[K, V])
		if now.Sub(entry.timestamp) > rc.maxAge {
			delete(rc.entries, entry.key)
			rc.order.Remove(e)
		}
		e = next
	}
}
