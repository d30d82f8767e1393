package comcat

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/couchcryptid/quake-catalog-loader/internal/domain"
	"github.com/couchcryptid/quake-catalog-loader/internal/observability"
)

// CachedFinder wraps a CandidateFinder with an in-memory LRU cache keyed by
// the search inputs. Replays of the same events skip the remote catalog.
type CachedFinder struct {
	inner   domain.CandidateFinder
	cache   *lruCache
	metrics *observability.Metrics
}

// NewCachedFinder creates a cache decorator around a finder.
func NewCachedFinder(inner domain.CandidateFinder, maxEntries int, metrics *observability.Metrics) *CachedFinder {
	return &CachedFinder{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
	}
}

// FindCandidates implements domain.CandidateFinder.
func (c *CachedFinder) FindCandidates(ctx context.Context, ev domain.Event, w domain.SearchWindow) ([]domain.CandidateOrigin, error) {
	key := cacheKey(ev, w)
	if result, ok := c.cache.get(key); ok {
		c.metrics.CatalogCache.WithLabelValues("hit").Inc()
		// The key rounds coordinates, so a hit may belong to a nearby event.
		rank(result, ev, w)
		return result, nil
	}
	c.metrics.CatalogCache.WithLabelValues("miss").Inc()

	result, err := c.inner.FindCandidates(ctx, ev, w)
	if err != nil {
		return nil, err
	}
	// Only cache non-empty results so origins published after the first
	// lookup are found on a later run.
	if len(result) > 0 {
		c.cache.put(key, result)
	}
	return result, nil
}

func cacheKey(ev domain.Event, w domain.SearchWindow) string {
	anchor := searchAnchor(ev)
	return fmt.Sprintf("%.4f,%.4f|%d|%g|%s|%s", ev.Lat, ev.Lon, anchor.UnixMilli(), w.DistanceKm, w.Time, w.Catalog)
}

// lruCache is a simple thread-safe LRU cache of candidate lists.
// Values are copied in and out so callers cannot mutate cached entries.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value []domain.CandidateOrigin
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: max(maxEntries, 1),
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) ([]domain.CandidateOrigin, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.moveToFront(e)
	return cloneCandidates(e.value), true
}

func (c *lruCache) put(key string, value []domain.CandidateOrigin) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = cloneCandidates(value)
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: cloneCandidates(value)}
	c.entries[key] = e
	c.pushFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

// cloneCandidates copies a candidate list including its magnitude pointers.
func cloneCandidates(in []domain.CandidateOrigin) []domain.CandidateOrigin {
	out := slices.Clone(in)
	for i := range out {
		if m := out[i].Magnitude; m != nil {
			v := *m
			out[i].Magnitude = &v
		}
	}
	return out
}

func (c *lruCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.unlink(e)
	c.pushFront(e)
}

func (c *lruCache) pushFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) unlink(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.unlink(c.tail)
}
