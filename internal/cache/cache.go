// Package cache implements the paginated-resource request cache used for
// comment and archived-comment reads: fresh-TTL hits, ETag revalidation,
// in-flight de-duplication and mutation-driven invalidation.
package cache

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Defaults; live comments use a shorter fresh window than the archive.
const (
	DefaultFreshTTL   = 8 * time.Second
	DefaultStaleTTL   = 60 * time.Second
	DefaultMaxEntries = 128
)

// Key identifies one cached page: auth scope, resource and normalized
// query parameters.
type Key struct {
	Scope  string
	CardID int64
	Params map[string]string
}

// String renders the canonical form: params sorted by name so equivalent
// queries share an entry.
func (k Key) String() string {
	names := make([]string, 0, len(k.Params))
	for name := range k.Params {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(k.Scope)
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(k.CardID, 10))
	for _, name := range names {
		b.WriteByte('|')
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(k.Params[name])
	}
	return b.String()
}

// Fetcher loads a page from the network. It receives the ETag known for
// the key ("" when none); returning notModified=true means the cached
// payload is still valid and only its timestamp is refreshed.
type Fetcher[T any] func(ctx context.Context, etag string) (payload T, newETag string, notModified bool, err error)

type entry[T any] struct {
	cardID   int64
	payload  T
	etag     string
	cachedAt time.Time
}

type call[T any] struct {
	done    chan struct{}
	payload T
	err     error
}

// PageCache is safe for concurrent use. N readers racing on a cold key
// trigger exactly one fetch; the rest join the in-flight call.
type PageCache[T any] struct {
	clock      clockwork.Clock
	freshTTL   time.Duration
	staleTTL   time.Duration
	maxEntries int
	clone      func(T) T

	mu       sync.Mutex
	entries  map[string]*entry[T]
	inflight map[string]*call[T]
}

// New creates a page cache. clone must return a defensive copy of a
// payload; it is applied to every value handed out.
func New[T any](clock clockwork.Clock, freshTTL, staleTTL time.Duration, maxEntries int, clone func(T) T) *PageCache[T] {
	if freshTTL <= 0 {
		freshTTL = DefaultFreshTTL
	}
	if staleTTL <= freshTTL {
		staleTTL = DefaultStaleTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &PageCache[T]{
		clock:      clock,
		freshTTL:   freshTTL,
		staleTTL:   staleTTL,
		maxEntries: maxEntries,
		clone:      clone,
		entries:    make(map[string]*entry[T]),
		inflight:   make(map[string]*call[T]),
	}
}

// Get returns the page for key, from cache when fresh, otherwise via
// fetch. Concurrent calls for the same key share one fetch.
func (c *PageCache[T]) Get(ctx context.Context, key Key, fetch Fetcher[T]) (T, error) {
	k := key.String()
	now := c.clock.Now()

	c.mu.Lock()
	c.purgeStaleLocked(now)

	if e, ok := c.entries[k]; ok && now.Sub(e.cachedAt) <= c.freshTTL {
		payload := c.clone(e.payload)
		c.mu.Unlock()
		return payload, nil
	}

	if in, ok := c.inflight[k]; ok {
		c.mu.Unlock()
		select {
		case <-in.done:
			if in.err != nil {
				var zero T
				return zero, in.err
			}
			return c.clone(in.payload), nil
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}

	in := &call[T]{done: make(chan struct{})}
	c.inflight[k] = in
	var knownETag string
	if e, ok := c.entries[k]; ok {
		knownETag = e.etag
	}
	c.mu.Unlock()

	payload, newETag, notModified, err := fetch(ctx, knownETag)

	c.mu.Lock()
	delete(c.inflight, k)
	if err != nil {
		in.err = err
		c.mu.Unlock()
		close(in.done)
		var zero T
		return zero, err
	}

	now = c.clock.Now()
	if notModified {
		e := c.entries[k]
		if e == nil {
			// Revalidation hit with no cached body cannot be served; retry
			// uncached. Joiners blocked on this call get the retried
			// result, never a zero payload.
			c.mu.Unlock()
			log.Warn().Str("key", k).Msg("304 for evicted cache entry; dropping etag")
			payload, err := c.Get(ctx, key, fetch)
			in.payload, in.err = payload, err
			close(in.done)
			return payload, err
		}
		e.cachedAt = now
		in.payload = e.payload
	} else {
		c.entries[k] = &entry[T]{cardID: key.CardID, payload: payload, etag: newETag, cachedAt: now}
		c.evictOverflowLocked()
		in.payload = payload
	}
	result := c.clone(in.payload)
	c.mu.Unlock()
	close(in.done)

	return result, nil
}

// InvalidateCard drops every cached page for a card regardless of
// pagination, order or filter parameters.
func (c *PageCache[T]) InvalidateCard(cardID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if e.cardID == cardID {
			delete(c.entries, k)
		}
	}
}

// Len reports the current number of cached pages.
func (c *PageCache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *PageCache[T]) purgeStaleLocked(now time.Time) {
	for k, e := range c.entries {
		if now.Sub(e.cachedAt) > c.staleTTL {
			delete(c.entries, k)
		}
	}
}

// evictOverflowLocked enforces maxEntries, dropping oldest-by-timestamp
// first.
func (c *PageCache[T]) evictOverflowLocked() {
	for len(c.entries) > c.maxEntries {
		var oldestKey string
		var oldestAt time.Time
		for k, e := range c.entries {
			if oldestKey == "" || e.cachedAt.Before(oldestAt) {
				oldestKey = k
				oldestAt = e.cachedAt
			}
		}
		delete(c.entries, oldestKey)
	}
}
