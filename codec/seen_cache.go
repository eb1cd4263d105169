package codec

import "sync"

// SeenCache remembers the most recent message ids so a message relayed by
// several peers is processed once. The oldest id is evicted first.
type SeenCache struct {
	mu    sync.Mutex
	ids   map[string]struct{}
	ring  []string
	next  int
	limit int
}

func NewSeenCache(limit int) *SeenCache {
	if limit <= 0 {
		limit = 1
	}
	return &SeenCache{
		ids:   make(map[string]struct{}, limit),
		ring:  make([]string, limit),
		limit: limit,
	}
}

// Add records id and reports whether it was new.
func (c *SeenCache) Add(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.ids[id]; ok {
		return false
	}
	if old := c.ring[c.next]; old != "" {
		delete(c.ids, old)
	}
	c.ring[c.next] = id
	c.next = (c.next + 1) % c.limit
	c.ids[id] = struct{}{}
	return true
}

func (c *SeenCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ids)
}
