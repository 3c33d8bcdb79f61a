package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"gatekeep.dev/internal/obs"
)

// Rate limit scopes with their fixed windows.
type limitScope struct {
	name   string
	limit  int
	window time.Duration
}

var (
	scopeAPI      = limitScope{name: "api", limit: 100, window: 15 * time.Minute}
	scopeAuth     = limitScope{name: "auth", limit: 5, window: 15 * time.Minute}
	scopePassword = limitScope{name: "pwd", limit: 3, window: time.Hour}
	scopeAdmin    = limitScope{name: "admin", limit: 200, window: 15 * time.Minute}
	scopeEmail    = limitScope{name: "email", limit: 10, window: time.Hour}
)

// RateLimiter counts requests per key within a fixed window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// limited enforces the scope's window per client IP. Limiter failures fail
// open: an unavailable Redis must not take the API down with it.
func (a *API) limited(scope limitScope, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := scope.name + ":" + clientIP(r)
		ok, err := a.limiter.Allow(r.Context(), key, scope.limit, scope.window)
		if err != nil {
			obs.Warn("rate limiter unavailable", map[string]any{"scope": scope.name, "error": err.Error()})
			next(w, r)
			return
		}
		if !ok {
			writeError(w, http.StatusTooManyRequests, "Too many requests")
			return
		}
		next(w, r)
	}
}

// RedisLimiter implements a fixed window counter on Redis so limits hold
// across API replicas.
type RedisLimiter struct {
	client redis.UniversalClient
}

func NewRedisLimiter(client redis.UniversalClient) *RedisLimiter {
	return &RedisLimiter{client: client}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	rkey := "ratelimit:" + key
	count, err := l.client.Incr(ctx, rkey).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := l.client.Expire(ctx, rkey, window).Err(); err != nil {
			return false, err
		}
	}
	return count <= int64(limit), nil
}

// MemoryLimiter is the in-process fallback used in development and tests.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
	now     func() time.Time
}

type memoryWindow struct {
	count   int
	resetAt time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{windows: make(map[string]*memoryWindow), now: time.Now}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	win, ok := l.windows[key]
	if !ok || now.After(win.resetAt) {
		l.windows[key] = &memoryWindow{count: 1, resetAt: now.Add(window)}
		return true, nil
	}
	win.count++
	return win.count <= limit, nil
}

var (
	_ RateLimiter = (*RedisLimiter)(nil)
	_ RateLimiter = (*MemoryLimiter)(nil)
)
