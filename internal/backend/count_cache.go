package backend

import (
	"os"
	"sync"
	"time"
)

type countCacheEntry struct {
	mtime time.Time
	size  int64
	count int
}

// CountCache remembers message counts keyed by file, invalidated when the
// file's size or mtime changes. A nil *CountCache counts every time.
type CountCache struct {
	mu      sync.Mutex
	entries map[string]countCacheEntry
	reads   int
}

func NewCountCache() *CountCache {
	return &CountCache{entries: map[string]countCacheEntry{}}
}

// Reads reports how many files were actually parsed.
func (c *CountCache) Reads() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

// Count returns b.CountMessages(path), reusing a cached value when the file
// is unchanged.
func (c *CountCache) Count(b Backend, path string) (int, error) {
	if c == nil {
		return b.CountMessages(path)
	}
	info, err := os.Stat(path)
	if err != nil {
		c.mu.Lock()
		delete(c.entries, path)
		c.mu.Unlock()
		return 0, err
	}
	c.mu.Lock()
	entry, ok := c.entries[path]
	c.mu.Unlock()
	if ok && entry.mtime.Equal(info.ModTime()) && entry.size == info.Size() {
		return entry.count, nil
	}

	n, err := b.CountMessages(path)
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	c.entries[path] = countCacheEntry{mtime: info.ModTime(), size: info.Size(), count: n}
	c.reads++
	c.mu.Unlock()
	return n, nil
}
