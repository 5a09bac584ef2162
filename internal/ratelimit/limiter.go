package ratelimit

import (
	"sync"
	"time"
)

// Limiter разрешает не более limit событий на ключ за окно.
type Limiter interface {
	Allow(key string) bool
}

// NoopLimiter пропускает все события.
type NoopLimiter struct{}

func (NoopLimiter) Allow(string) bool { return true }

// MemoryLimiter ограничивает запросы фиксированным окном в памяти процесса.
type MemoryLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	buckets map[string]*bucket
	clock   func() time.Time
}

type bucket struct {
	count     int
	windowEnd time.Time
}

func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:   limit,
		window:  window,
		buckets: make(map[string]*bucket),
		clock:   time.Now,
	}
}

func (l *MemoryLimiter) Allow(key string) bool {
	if l.limit <= 0 || l.window <= 0 || key == "" {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	b, ok := l.buckets[key]
	if !ok || now.After(b.windowEnd) {
		l.buckets[key] = &bucket{count: 1, windowEnd: now.Add(l.window)}
		l.evict(now)
		return true
	}
	if b.count >= l.limit {
		return false
	}
	b.count++
	return true
}

// evict удаляет истекшие окна, когда ключей становится много.
func (l *MemoryLimiter) evict(now time.Time) {
	if len(l.buckets) < 1024 {
		return
	}
	for key, b := range l.buckets {
		if now.After(b.windowEnd) {
			delete(l.buckets, key)
		}
	}
}
