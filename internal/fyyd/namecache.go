package fyyd

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

type nameEntry struct {
	name     string
	resolved bool
}

// NameCache memoizes podcast id -> display name for the lifetime of the
// process. Unresolvable ids are cached as negative entries. Entries are never
// replaced or removed.
type NameCache struct {
	mu      sync.RWMutex
	entries map[int]nameEntry
	group   singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

// NewNameCache returns an empty cache.
func NewNameCache() *NameCache {
	return &NameCache{entries: make(map[int]nameEntry)}
}

// Lookup returns the cached name for id. cached reports whether the id was
// looked up before; resolved is false for negative entries.
func (c *NameCache) Lookup(id int) (name string, resolved, cached bool) {
	c.mu.RLock()
	e, ok := c.entries[id]
	c.mu.RUnlock()
	if !ok {
		return "", false, false
	}
	return e.name, e.resolved, true
}

// Store records a result for id unless one is already present.
func (c *NameCache) Store(id int, name string, resolved bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[id]; ok {
		return
	}
	if !resolved {
		name = ""
	}
	c.entries[id] = nameEntry{name: name, resolved: resolved}
}

// Len returns the number of cached ids, negative entries included.
func (c *NameCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns the number of cache hits and misses so far.
func (c *NameCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// FetchFunc performs the remote lookup for one podcast id. resolved=false
// with a nil error is a definitive negative answer.
type FetchFunc func(ctx context.Context, id int) (name string, resolved bool, err error)

// Resolve returns the name for id, calling fetch on a miss. Concurrent misses
// for the same id share a single fetch. Fetch errors are returned and not
// cached.
func (c *NameCache) Resolve(ctx context.Context, id int, fetch FetchFunc) (string, bool, error) {
	if name, resolved, cached := c.Lookup(id); cached {
		c.hits.Add(1)
		return name, resolved, nil
	}
	c.misses.Add(1)

	v, err, _ := c.group.Do(strconv.Itoa(id), func() (any, error) {
		if name, resolved, cached := c.Lookup(id); cached {
			return nameEntry{name: name, resolved: resolved}, nil
		}
		name, resolved, err := fetch(ctx, id)
		if err != nil {
			return nil, err
		}
		c.Store(id, name, resolved)
		return nameEntry{name: name, resolved: resolved}, nil
	})
	if err != nil {
		return "", false, err
	}
	e := v.(nameEntry)
	return e.name, e.resolved, nil
}
