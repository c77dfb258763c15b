package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"partstore-core/internal/metrics"

	"github.com/labstack/echo/v4"
)

// Prometheus records request count and latency per route template.
func Prometheus() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			status := c.Response().Status
			if err != nil {
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				} else if !c.Response().Committed {
					status = http.StatusInternalServerError
				}
			}
			code := strconv.Itoa(status)

			metrics.HTTPRequestsTotal.WithLabelValues(c.Request().Method, path, code).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(c.Request().Method, path, code).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
