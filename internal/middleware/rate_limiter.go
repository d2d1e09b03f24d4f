package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"clinicrx/internal/apierror"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// rateEntry counts requests from one client within the current window.
type rateEntry struct {
	count     int
	windowEnd time.Time
}

// RateLimiter is a fixed-window limiter keyed by authenticated user, falling
// back to client IP for anonymous requests.
type RateLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*rateEntry
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		entries: make(map[string]*rateEntry),
	}
}

// allow records one request for key and reports whether it is within the
// limit, plus the end of the key's current window.
func (rl *RateLimiter) allow(key string) (bool, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	entry, ok := rl.entries[key]
	if !ok || now.After(entry.windowEnd) {
		entry = &rateEntry{windowEnd: now.Add(rl.window)}
		rl.entries[key] = entry
	}
	entry.count++
	return entry.count <= rl.limit, entry.windowEnd
}

func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if claims := GetClaims(c); claims != nil {
			key = "user:" + claims.UserID
		}
		ok, windowEnd := rl.allow(key)
		if !ok {
			retry := int(windowEnd.Sub(rl.now()).Seconds()) + 1
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, apierror.WithCode("RATE_LIMITED", "too many requests, retry shortly"))
			return
		}
		c.Next()
	}
}

// purge drops entries whose window has closed and returns how many remain.
func (rl *RateLimiter) purge() (purged, remaining int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for key, entry := range rl.entries {
		if now.After(entry.windowEnd) {
			delete(rl.entries, key)
			purged++
		}
	}
	return purged, len(rl.entries)
}

// StartPurge periodically removes stale entries until ctx is cancelled.
func (rl *RateLimiter) StartPurge(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if purged, remaining := rl.purge(); purged > 0 {
				log.Debug().Int("purged", purged).Int("remaining", remaining).Msg("rate limiter entries purged")
			}
		}
	}
}
