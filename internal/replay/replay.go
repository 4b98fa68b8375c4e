// Package replay implements the transient, append-only log of program
// output used to bring a newly-attached client up to speed.
package replay

import "sync"

// Cache is an append-only byte log. The zero value is a disabled cache:
// Append is a no-op and Snapshot always returns nil. Use NewEnabled to
// get a cache that actually retains bytes.
type Cache struct {
	mu      sync.Mutex
	enabled bool
	buf     []byte
}

// NewEnabled returns a Cache that retains every byte appended to it.
func NewEnabled() *Cache {
	return &Cache{enabled: true}
}

// Enabled reports whether this cache retains bytes.
func (c *Cache) Enabled() bool {
	return c != nil && c.enabled
}

// Append records p. A no-op on a disabled or nil cache.
func (c *Cache) Append(p []byte) {
	if c == nil || !c.enabled || len(p) == 0 {
		return
	}
	c.mu.Lock()
	c.buf = append(c.buf, p...)
	c.mu.Unlock()
}

// Snapshot returns a copy of everything recorded so far, for streaming to
// a newly-attached client before fan-out resumes.
func (c *Cache) Snapshot() []byte {
	if c == nil || !c.enabled {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, len(c.buf))
	copy(out, c.buf)
	return out
}
