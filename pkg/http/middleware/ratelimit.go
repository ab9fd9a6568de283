package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	applogger "StockPulse/pkg/logger"
)

// RateLimitConfig bounds requests per client IP.
type RateLimitConfig struct {
	RPS   float64
	Burst int
	// limiters idle this long are evicted
	IdleTTL time.Duration
	Skipper func(echo.Context) bool
	now     func() time.Time
}

type clientLimiter struct {
	lim  *rate.Limiter
	seen time.Time
}

type ipLimiter struct {
	cfg RateLimitConfig

	mu        sync.Mutex
	clients   map[string]*clientLimiter
	lastSweep time.Time
}

func (l *ipLimiter) allow(ip string) bool {
	now := l.cfg.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= l.cfg.IdleTTL {
		for k, c := range l.clients {
			if now.Sub(c.seen) >= l.cfg.IdleTTL {
				delete(l.clients, k)
			}
		}
		l.lastSweep = now
	}

	c, ok := l.clients[ip]
	if !ok {
		c = &clientLimiter{lim: rate.NewLimiter(rate.Limit(l.cfg.RPS), l.cfg.Burst)}
		l.clients[ip] = c
	}
	c.seen = now
	return c.lim.AllowN(now, 1)
}

// RateLimit answers 429 once a client IP exceeds its token bucket. A
// non-positive RPS disables the limiter.
func RateLimit(cfg RateLimitConfig, l *applogger.Logger) echo.MiddlewareFunc {
	if cfg.RPS <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.RPS)
		if cfg.Burst < 1 {
			cfg.Burst = 1
		}
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	lim := &ipLimiter{cfg: cfg, clients: make(map[string]*clientLimiter), lastSweep: cfg.now()}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}
			ip := c.RealIP()
			if lim.allow(ip) {
				return next(c)
			}
			if l != nil {
				l.Warn("rate limited", applogger.String("remote", ip), applogger.String("route", routeOf(c)))
			}
			c.Response().Header().Set("Retry-After", "1")
			return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
				"status":  http.StatusTooManyRequests,
				"message": http.StatusText(http.StatusTooManyRequests),
				"data": []map[string]string{{
					"code":    "ERR_RATE_LIMITED",
					"message": "too many requests",
				}},
			})
		}
	}
}
