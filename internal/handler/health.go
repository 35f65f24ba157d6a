package handler // declare the package name; contains HTTP handlers

import (
	"context"  // bounded dependency probes
	"net/http" // net/http provides status codes and response helpers
	"sort"     // stable report order
	"time"     // probe timeout

	"github.com/labstack/echo/v4" // echo is the web framework used for this project
)

// Check probes one dependency.  A nil error means healthy.
type Check func(ctx context.Context) error

// Health returns the health-check endpoint used by load balancers and
// monitoring systems.  Every named check is probed; any failure turns the
// answer into 503 with the failing dependency marked "down".
func Health(checks map[string]Check) echo.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		report := make(map[string]string, len(names))
		code := http.StatusOK
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				report[name] = "down"
				code = http.StatusServiceUnavailable
				continue
			}
			report[name] = "up"
		}
		status := "success"
		if code != http.StatusOK {
			status = "error"
		}
		return c.JSON(code, envelope{Status: status, Data: report})
	}
}
