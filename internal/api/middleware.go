package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/quantserve/internal/logger"
)

// requestID propagates or assigns an X-Request-ID.
func requestID(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		id := c.Request().Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Response().Header().Set(headerRequestID, id)
		c.Set(ctxKeyRequestID, id)
		return next(c)
	}
}

// accessLog records one log line and one request metric per request.
func accessLog(log logger.Logger, m *Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			start := time.Now()
			err := next(c)

			status := statusOf(c, err)
			// The matched template keeps label cardinality bounded.
			route := c.Path()
			if route == "" || status == http.StatusNotFound || status == http.StatusMethodNotAllowed {
				route = "unmatched"
			}
			if m != nil {
				m.ObserveRequest(route, status)
			}
			log.Info("request",
				"request_id", requestIDOf(c),
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", status,
				"elapsed", time.Since(start),
			)
			return err
		}
	}
}
