package httpapi

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// conversationLimiter rate-limits chat requests per conversation ID. Limiters
// for idle conversations are evicted so the map does not grow unbounded.
type conversationLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	limit    rate.Limit
	burst    int
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const limiterIdleTTL = 10 * time.Minute

// newConversationLimiter creates a limiter allowing perMinute requests per
// conversation. perMinute <= 0 disables limiting entirely.
func newConversationLimiter(perMinute, burst int) *conversationLimiter {
	if perMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &conversationLimiter{
		limiters: make(map[string]*limiterEntry),
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    burst,
	}
}

// Allow reports whether a request for the conversation may proceed. A nil
// limiter always allows.
func (c *conversationLimiter) Allow(conversationID string) bool {
	if c == nil {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	entry, ok := c.limiters[conversationID]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(c.limit, c.burst)}
		c.limiters[conversationID] = entry
		c.evictIdle(now)
	}
	entry.lastSeen = now
	return entry.limiter.Allow()
}

// evictIdle drops limiters untouched for limiterIdleTTL. Called with the lock
// held, only on the insert path.
func (c *conversationLimiter) evictIdle(now time.Time) {
	for id, entry := range c.limiters {
		if now.Sub(entry.lastSeen) > limiterIdleTTL {
			delete(c.limiters, id)
		}
	}
}
