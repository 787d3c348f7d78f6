package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// Middleware applies the limiter to HTTP requests.  The bucket key follows
// strategy: "ip", "route" or "ip_route" (the default).
func Middleware(l *Limiter, strategy string) echo.MiddlewareFunc {
	if !l.Enabled() {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := buildRateKey(strategy, c)
			d, err := l.Allow(c.Request().Context(), key)
			if err != nil {
				if l.cfg.Debug {
					c.Logger().Warnf("[ratelimit] redis error for key=%s: %v", key, err)
				}
				return next(c)
			}
			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(l.Capacity()))
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
			if !d.Allowed {
				secs := int(math.Ceil(d.RetryAfter.Seconds()))
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"error":       "too_many_requests",
					"message":     "rate limit exceeded",
					"retry_after": secs,
				})
			}
			return next(c)
		}
	}
}

func buildRateKey(strategy string, c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	route := c.Request().Method + " " + c.Path()
	switch strings.ToLower(strategy) {
	case "ip":
		return "ip:" + ip
	case "route":
		return "route:" + route
	}
	return "ip:" + ip + ":route:" + route
}
