package middleware

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/jogardn/coastal-farmer/internal/httputil"
)

const MessageTooManyAttempts = "Too many login attempts, please try again later"

// Limiter tracks failed attempts per key.
type Limiter interface {
	// Allow reports whether key is still under the limit without counting.
	Allow(ctx context.Context, key string) (bool, error)
	// Fail records one failed attempt for key.
	Fail(ctx context.Context, key string) error
}

// RedisLimiter counts failures per key in a window shared by every instance.
type RedisLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
	prefix string
}

func NewRedisLimiter(client *redis.Client, limit int, window time.Duration, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisLimiter{
		client: client,
		limit:  int64(limit),
		window: window,
		prefix: prefix,
	}
}

func (l *RedisLimiter) key(key string) string {
	return fmt.Sprintf("%s:%s", l.prefix, key)
}

// Allow reports whether key is still under the limit. On a Redis error it
// allows the request and returns the error.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	count, err := l.client.Get(ctx, l.key(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return true, nil
	}
	if err != nil {
		return true, fmt.Errorf("redis error: %w", err)
	}
	return count < l.limit, nil
}

// Fail increments the failure count and restarts its window.
func (l *RedisLimiter) Fail(ctx context.Context, key string) error {
	redisKey := l.key(key)

	pipe := l.client.Pipeline()
	pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

// Throttle answers 429 once a client has used up its failed attempts. Only
// responses with status 401 count against the limit.
func Throttle(limiter Limiter, window time.Duration, logger *logrus.Logger) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(window.Seconds()))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientIP(r)
			allowed, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logger.WithError(err).Warn("Rate limiter unavailable, allowing request")
			}
			if !allowed {
				logger.WithFields(logrus.Fields{
					"client": key,
					"path":   r.URL.Path,
				}).Warn("Rate limit exceeded")
				w.Header().Set("Retry-After", retryAfter)
				httputil.WriteMessage(w, http.StatusTooManyRequests, MessageTooManyAttempts)
				return
			}

			rec := wrap(w)
			next.ServeHTTP(rec, r)

			if rec.code() != http.StatusUnauthorized {
				return
			}
			if err := limiter.Fail(r.Context(), key); err != nil {
				logger.WithError(err).Warn("Failed to record login failure")
			}
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
