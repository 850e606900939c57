package handlers

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter caps how many issues a user may submit per day. Counters live
// in Redis keyed by user and UTC date, with a TTL so they expire on their
// own.
type RateLimiter struct {
	rdb   *redis.Client
	limit int
}

func NewRateLimiter(rdb *redis.Client, limit int) *RateLimiter {
	return &RateLimiter{rdb: rdb, limit: limit}
}

// Allow increments the caller's daily counter and reports whether the
// submission is within the limit. Redis being down fails open; the API must
// not depend on the limiter's availability.
func (l *RateLimiter) Allow(r *http.Request, userID int) bool {
	if l == nil || l.rdb == nil || l.limit <= 0 {
		return true
	}

	key := fmt.Sprintf("ratelimit:issues:%d:%s", userID, time.Now().UTC().Format("2006-01-02"))
	count, err := l.rdb.Incr(r.Context(), key).Result()
	if err != nil {
		log.Printf("ratelimit: incr: %v", err)
		return true
	}
	if count == 1 {
		if err := l.rdb.Expire(r.Context(), key, 24*time.Hour).Err(); err != nil {
			log.Printf("ratelimit: expire: %v", err)
		}
	}
	return count <= int64(l.limit)
}

// Limit wraps a handler and rejects callers over their daily quota.
func (l *RateLimiter) Limit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFromContext(r.Context())
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !l.Allow(r, userID) {
			writeError(w, http.StatusTooManyRequests, "daily submission limit reached")
			return
		}
		next(w, r)
	}
}
