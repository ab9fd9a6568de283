package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	applogger "StockPulse/pkg/logger"
)

// RequestLogging logs one line per request. 5xx responses log at error level.
func RequestLogging(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			fields := []applogger.Field{
				applogger.String("method", req.Method),
				applogger.String("route", routeOf(c)),
				applogger.String("uri", req.RequestURI),
				applogger.String("remote", c.RealIP()),
				applogger.Int("status", status),
				applogger.Duration("latency", time.Since(start)),
			}
			switch {
			case status >= 500:
				l.Error("http request", fields...)
			case status >= 400:
				l.Warn("http request", fields...)
			default:
				l.Debug("http request", fields...)
			}
			return nil
		}
	}
}

func routeOf(c echo.Context) string {
	if p := c.Path(); p != "" {
		return p
	}
	return "unmatched"
}
