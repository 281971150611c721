package http

import (
	"sync"
	"time"
)

const (
	// Form submissions allowed per client IP per minute.
	postsPerMinute = 60

	sweepInterval = 5 * time.Minute
	bucketIdleTTL = 10 * time.Minute
)

// rateLimiter throttles POSTs per client IP over a fixed one-minute
// window. State lives in memory, so limits reset on restart.
type rateLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	done     chan struct{}
	stopOnce sync.Once
}

type bucket struct {
	windowStart time.Time
	count       int
}

func newRateLimiter() *rateLimiter {
	rl := &rateLimiter{
		buckets: make(map[string]*bucket),
		done:    make(chan struct{}),
	}
	go rl.sweepLoop()
	return rl
}

// allow reports whether another POST from this IP fits in the current
// window. A request outside the window starts a fresh one.
func (rl *rateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b := rl.buckets[clientIP]
	if b == nil || now.Sub(b.windowStart) > time.Minute {
		rl.buckets[clientIP] = &bucket{windowStart: now, count: 1}
		return true
	}
	b.count++
	return b.count <= postsPerMinute
}

func (rl *rateLimiter) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.dropIdleBuckets()
		case <-rl.done:
			return
		}
	}
}

// dropIdleBuckets forgets clients whose window expired long ago, keeping
// the map from growing with one-off visitors.
func (rl *rateLimiter) dropIdleBuckets() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-bucketIdleTTL)
	for ip, b := range rl.buckets {
		if b.windowStart.Before(cutoff) {
			delete(rl.buckets, ip)
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}
