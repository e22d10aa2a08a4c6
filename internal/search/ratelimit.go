package search

import (
	"sync"
	"time"
)

// slidingWindowLimiter enforces a requests-per-minute cap per provider
// using a sliding window of request timestamps, generalized from the
// per-provider rateLimit/lastCall cooldown fields the teacher's
// DuckDuckGoProvider/GoogleProvider/SerpAPIProvider each kept individually
// into one shared, reusable limiter the Registry applies uniformly.
type slidingWindowLimiter struct {
	mu         sync.Mutex
	limit      int
	window     time.Duration
	timestamps map[string][]time.Time
}

func newSlidingWindowLimiter(limit int, window time.Duration) *slidingWindowLimiter {
	if limit <= 0 {
		limit = 30
	}
	if window <= 0 {
		window = time.Minute
	}
	return &slidingWindowLimiter{limit: limit, window: window, timestamps: make(map[string][]time.Time)}
}

// Allow reports whether provider may issue one more request right now,
// and if so records it against the window.
func (l *slidingWindowLimiter) Allow(provider string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-l.window)
	kept := l.timestamps[provider][:0]
	for _, ts := range l.timestamps[provider] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.limit {
		l.timestamps[provider] = kept
		return false
	}
	l.timestamps[provider] = append(kept, now)
	return true
}
