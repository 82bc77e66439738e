package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Role selects which routes a server mounts.
type Role string

const (
	RoleCentral Role = "central"
	RoleTenant  Role = "tenant"
	RoleAll     Role = "all"
)

func (r Role) Valid() bool {
	return r == RoleCentral || r == RoleTenant || r == RoleAll
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// ServerConfig wires a server.
type ServerConfig struct {
	Role     Role
	Handlers *Handlers
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	Health  map[string]HealthCheck
	Logger  zerolog.Logger
}

// NewServer returns an echo instance with the routes for cfg.Role.
func NewServer(cfg ServerConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(RequestContext())
	e.Use(Logger(cfg.Logger))
	e.Use(Recovery(cfg.Logger))

	e.GET("/healthz", healthHandler(cfg.Health))
	if cfg.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(cfg.Metrics))
	}

	if cfg.Role == RoleCentral || cfg.Role == RoleAll {
		e.GET("/sso/tenants/:tenant", cfg.Handlers.Start, NoStore())
	}
	if cfg.Role == RoleTenant || cfg.Role == RoleAll {
		e.GET(cfg.Handlers.callbackPath(), cfg.Handlers.Callback, NoStore())
	}

	return e
}

func healthHandler(checks map[string]HealthCheck) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = "unhealthy"
				continue
			}
			results[name] = "healthy"
		}

		overall := "healthy"
		if status != http.StatusOK {
			overall = "unhealthy"
		}
		return c.JSON(status, map[string]interface{}{
			"status": overall,
			"checks": results,
		})
	}
}
