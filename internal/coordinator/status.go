package coordinator

import (
	"maps"
	"sync"
	"sync/atomic"
)

// Status maps protocol field keys to their last known values.
// Values are ints, bools, strings, or anything else the device sends.
type Status map[string]any

// Clone returns an independent copy of s.
func (s Status) Clone() Status {
	if s == nil {
		return Status{}
	}
	return maps.Clone(s)
}

// StatusCache holds the merged status of a device.
//
// Writers build a new map and publish it atomically, so readers never see a
// partially applied delta and never wait on a merge in progress. Keys are never
// removed.
type StatusCache struct {
	mu      sync.Mutex // serialises writers
	current atomic.Pointer[Status]
}

// NewStatusCache returns a cache pre-populated with a copy of initial.
func NewStatusCache(initial Status) *StatusCache {
	c := &StatusCache{}
	snapshot := initial.Clone()
	c.current.Store(&snapshot)
	return c
}

// Merge applies delta with right bias: keys in delta overwrite, other keys
// are left untouched. Merge never fails.
func (c *StatusCache) Merge(delta Status) {
	if len(delta) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	next := maps.Clone(*c.current.Load())
	if next == nil {
		next = make(Status, len(delta))
	}
	maps.Copy(next, delta)
	c.current.Store(&next)
}

// Set stores a single value.
func (c *StatusCache) Set(key string, value any) {
	c.Merge(Status{key: value})
}

// Snapshot returns a copy of the cache contents.
func (c *StatusCache) Snapshot() Status {
	return maps.Clone(*c.current.Load())
}

// Get returns the cached value for key.
func (c *StatusCache) Get(key string) (any, bool) {
	v, ok := (*c.current.Load())[key]
	return v, ok
}

// Len returns the number of keys observed so far.
func (c *StatusCache) Len() int {
	return len(*c.current.Load())
}
