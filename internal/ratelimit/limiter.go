// Package ratelimit implements an in-memory token-bucket limiter keyed by
// client.
package ratelimit

import (
	"sync"
	"time"
)

type bucket struct {
	tokens    float64
	lastCheck time.Time
}

// Limiter refills each key's bucket continuously at limit tokens per window.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	window  time.Duration
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

// New creates a Limiter with the given refill window and starts a janitor
// that drops idle buckets. Call Stop to end it.
func New(window time.Duration) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	l := &Limiter{
		buckets: make(map[string]*bucket),
		window:  window,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go l.janitor()
	return l
}

// Allow consumes one token from key's bucket and reports whether one was
// available.
func (l *Limiter) Allow(key string, limit int) bool {
	if limit <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		l.buckets[key] = &bucket{tokens: float64(limit - 1), lastCheck: now}
		return true
	}

	rate := float64(limit) / l.window.Seconds()
	b.tokens = min(float64(limit), b.tokens+now.Sub(b.lastCheck).Seconds()*rate)
	b.lastCheck = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Reset clears the state for key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Stop ends the janitor goroutine.
func (l *Limiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}

func (l *Limiter) janitor() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stop:
			return
		}
	}
}

func (l *Limiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-2 * l.window)
	for key, b := range l.buckets {
		if b.lastCheck.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}
