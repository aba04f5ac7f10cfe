package mw

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// IPRateLimiter keeps a token bucket per client IP. Buckets of clients that
// stay quiet for idleTTL are evicted.
type IPRateLimiter struct {
	limiters *cache.Cache
	r        rate.Limit
	b        int
	idleTTL  time.Duration
}

// NewIPRateLimiter creates a new IPRateLimiter.
func NewIPRateLimiter(r rate.Limit, b int, idleTTL time.Duration) *IPRateLimiter {
	return &IPRateLimiter{
		limiters: cache.New(idleTTL, 2*idleTTL),
		r:        r,
		b:        b,
		idleTTL:  idleTTL,
	}
}

// GetLimiter returns the rate limiter for an IP address, creating it on
// first use. Every lookup extends the bucket's lifetime.
func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	if v, ok := i.limiters.Get(ip); ok {
		limiter := v.(*rate.Limiter)
		i.limiters.Set(ip, limiter, i.idleTTL)
		return limiter
	}

	limiter := rate.NewLimiter(i.r, i.b)
	if err := i.limiters.Add(ip, limiter, i.idleTTL); err != nil {
		// Lost the race to another request from the same client.
		if v, ok := i.limiters.Get(ip); ok {
			return v.(*rate.Limiter)
		}
	}
	return limiter
}

// RateLimiter is a middleware for IP-based rate limiting.
func RateLimiter(r rate.Limit, b int) gin.HandlerFunc {
	limiter := NewIPRateLimiter(r, b, 10*time.Minute)
	return func(c *gin.Context) {
		if !limiter.GetLimiter(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Code:    "RATE_LIMITED",
				Message: "too many requests",
			})
			return
		}
		c.Next()
	}
}
