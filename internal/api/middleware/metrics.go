package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/citizenbirds/birdlist/internal/errors"
	"github.com/citizenbirds/birdlist/internal/observability/metrics"
)

// NewMetrics records request counts and latency by route template, so
// path parameters do not create new label values.
func NewMetrics(m *metrics.HTTPMetrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}
			m.StartRequest()
			start := time.Now()

			err := next(c)

			status := c.Response().Status
			if err != nil {
				// the error handler has not run yet
				status = httpStatus(err)
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.FinishRequest(route, c.Request().Method, status, time.Since(start).Seconds())
			return err
		}
	}
}

func httpStatus(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}
