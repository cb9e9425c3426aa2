package rate

import (
	"context"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryLimiter: el mismo fixed window que RedisLimiter pero in-process.
// Sirve para despliegues de un solo nodo (driver fs) y para tests.
type MemoryLimiter struct {
	counters *gocache.Cache
	Max      int64
	Window   time.Duration

	now func() time.Time
}

func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		counters: gocache.New(window, 2*window),
		Max:      int64(max),
		Window:   window,
		now:      time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	now := l.now().UTC()
	winStart := now.Truncate(l.Window)
	counterKey := fmt.Sprintf("%s:%d", strings.ReplaceAll(key, " ", "_"), winStart.Unix())

	_ = l.counters.Add(counterKey, int64(0), l.Window)
	hits, err := l.counters.IncrementInt64(counterKey, 1)
	if err != nil {
		// La entrada expiró entre Add e Increment; arrancar ventana nueva
		l.counters.Set(counterKey, int64(1), l.Window)
		hits = 1
	}

	allowed := hits <= l.Max
	remaining := l.Max - hits
	if remaining < 0 {
		remaining = 0
	}

	res := Result{
		Allowed:     allowed,
		Remaining:   remaining,
		CurrentHits: hits,
		WindowTTL:   winStart.Add(l.Window).Sub(now),
	}
	if !allowed {
		res.RetryAfter = res.WindowTTL
	}
	return res, nil
}
