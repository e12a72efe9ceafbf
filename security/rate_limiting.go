// Package security holds the edge protections for purchase and gate
// endpoints: Redis-backed rate limiting and basic bot filtering.
package security

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

type RateLimiter struct {
	redis *redis.Client
}

func NewRateLimiter(redisClient *redis.Client) *RateLimiter {
	return &RateLimiter{redis: redisClient}
}

// PurchaseRateLimit throttles checkout attempts per user (per IP when
// unauthenticated) so a flash sale cannot be hammered by one buyer.
func (r *RateLimiter) PurchaseRateLimit(limit int64, window time.Duration) echo.MiddlewareFunc {
	return r.limit("purchase", limit, window)
}

// PurchaseGuard wraps a PocketBase route with the purchase rate limit. It
// shares the fixed-window counters with the echo middleware but speaks the
// core.RequestEvent surface the main app's handlers use.
func (r *RateLimiter) PurchaseGuard(limit int64, window time.Duration) func(next func(*core.RequestEvent) error) func(*core.RequestEvent) error {
	store := &redisStore{redis: r.redis, scope: "purchase", limit: limit, window: window}
	return func(next func(*core.RequestEvent) error) func(*core.RequestEvent) error {
		return func(e *core.RequestEvent) error {
			allowed, err := store.Allow(purchaseIdentifier(e))
			if err == nil && !allowed {
				return apis.NewApiError(http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.", nil)
			}
			return next(e)
		}
	}
}

func purchaseIdentifier(e *core.RequestEvent) string {
	if e.Auth != nil {
		return "user:" + e.Auth.Id
	}
	if host, _, err := net.SplitHostPort(e.Request.RemoteAddr); err == nil {
		return host
	}
	return e.Request.RemoteAddr
}

// ScanRateLimit throttles gate validation scans per gate device.
func (r *RateLimiter) ScanRateLimit(limit int64, window time.Duration) echo.MiddlewareFunc {
	return r.limit("scan", limit, window)
}

func (r *RateLimiter) limit(scope string, limit int64, window time.Duration) echo.MiddlewareFunc {
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: &redisStore{redis: r.redis, scope: scope, limit: limit, window: window},
		IdentifierExtractor: func(c echo.Context) (string, error) {
			if userID, ok := c.Get("user_id").(string); ok && userID != "" {
				return fmt.Sprintf("user:%s", userID), nil
			}
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(429, map[string]string{
				"error": "Rate limit exceeded. Please try again later.",
			})
		},
	})
}

// redisStore is a fixed-window counter: first INCR in a window sets the
// window's TTL, and the request is allowed while the count stays at or
// under the limit. Redis errors fail open so a cache outage cannot take
// ticket sales down with it.
type redisStore struct {
	redis  *redis.Client
	scope  string
	limit  int64
	window time.Duration
}

func (s *redisStore) Allow(identifier string) (bool, error) {
	ctx := context.Background()
	key := fmt.Sprintf("ratelimit:%s:%s", s.scope, identifier)

	count, err := s.redis.Incr(ctx, key).Result()
	if err != nil {
		return true, nil
	}
	if count == 1 {
		s.redis.Expire(ctx, key, s.window)
	}
	return count <= s.limit, nil
}

// AntiBotMiddleware rejects obvious scraper user agents and caps raw
// request frequency per IP ahead of the authenticated limiters.
func (r *RateLimiter) AntiBotMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userAgent := c.Request().Header.Get("User-Agent")
			if isSuspiciousUserAgent(userAgent) {
				return c.JSON(403, map[string]string{
					"error": "Access denied",
				})
			}

			ip := c.RealIP()
			key := fmt.Sprintf("antibot:%s", ip)

			count, err := r.redis.Incr(context.Background(), key).Result()
			if err == nil {
				if count == 1 {
					r.redis.Expire(context.Background(), key, time.Minute)
				}
				if count > 60 {
					return c.JSON(429, map[string]string{
						"error": "Too many requests",
					})
				}
			}

			return next(c)
		}
	}
}

func isSuspiciousUserAgent(ua string) bool {
	suspicious := []string{"bot", "crawler", "spider", "scraper"}
	for _, pattern := range suspicious {
		if strings.Contains(strings.ToLower(ua), pattern) {
			return true
		}
	}
	return false
}
