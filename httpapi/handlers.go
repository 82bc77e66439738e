package httpapi

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/practiceline/handoff"
)

const (
	defaultLandingPath = "/"
	defaultLoginPath   = "/login"
	failedLoginError   = "sso_failed"
)

// Options configures Handlers.
type Options struct {
	// TenantID is the tenant this process serves. Required for the
	// tenant callback.
	TenantID string
	// LandingPath is used when a code carries no intended path.
	LandingPath string
	// LoginPath receives failed handoffs as ?error=sso_failed.
	LoginPath string

	Sessions SessionEstablisher
	Auth     Authenticator
	Logger   zerolog.Logger
}

// Handlers serves both ends of the handoff.
type Handlers struct {
	engine *handoff.Engine
	opts   Options
	log    zerolog.Logger
}

func NewHandlers(engine *handoff.Engine, opts Options) *Handlers {
	if opts.LandingPath == "" {
		opts.LandingPath = defaultLandingPath
	}
	if opts.LoginPath == "" {
		opts.LoginPath = defaultLoginPath
	}
	return &Handlers{
		engine: engine,
		opts:   opts,
		log:    opts.Logger.With().Str("component", "httpapi").Logger(),
	}
}

// Callback handles GET /sso/start?code= on a tenant host.
func (h *Handlers) Callback(c echo.Context) error {
	ctx := c.Request().Context()
	rid, _ := c.Get("request_id").(string)

	payload, ok, err := h.engine.ExchangeForTenant(ctx, c.QueryParam(handoff.CodeParam), h.opts.TenantID)
	switch {
	case errors.Is(err, handoff.ErrExchangeRateLimited):
		return echo.NewHTTPError(http.StatusTooManyRequests, "too many requests")
	case err != nil:
		h.log.Error().Err(err).Str("request_id", rid).Msg("handoff exchange failed")
		return echo.NewHTTPError(http.StatusServiceUnavailable, "service unavailable")
	case !ok:
		return c.Redirect(http.StatusSeeOther, h.loginFailureURL())
	}

	if err := h.opts.Sessions.Establish(c, payload); err != nil {
		h.log.Error().Err(err).Str("request_id", rid).Str("user_id", payload.UserID).Msg("session establishment failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}

	target := payload.IntendedPath
	if target == "" {
		target = h.opts.LandingPath
	}
	return c.Redirect(http.StatusSeeOther, target)
}

// Start handles GET /sso/tenants/:tenant on the central host.
func (h *Handlers) Start(c echo.Context) error {
	id, err := h.opts.Auth.Authenticate(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	id.TenantID = c.Param("tenant")
	id.IntendedPath = c.QueryParam("intended")

	target, err := h.engine.Start(c.Request().Context(), id)
	if err != nil {
		return h.startError(c, id, err)
	}
	return c.Redirect(http.StatusSeeOther, target)
}

func (h *Handlers) startError(c echo.Context, id handoff.Identity, err error) error {
	rid, _ := c.Get("request_id").(string)

	switch {
	case errors.Is(err, handoff.ErrInvalidIdentity):
		return echo.NewHTTPError(http.StatusBadRequest, "bad request")
	case errors.Is(err, handoff.ErrIssueRateLimited):
		return echo.NewHTTPError(http.StatusTooManyRequests, "too many requests")
	case errors.Is(err, handoff.ErrTenantDomainNotFound):
		// The engine already logged the missing domain.
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	default:
		h.log.Error().Err(err).
			Str("request_id", rid).
			Str("user_id", id.UserID).
			Str("tenant_id", id.TenantID).
			Msg("handoff start failed")
		return echo.NewHTTPError(http.StatusServiceUnavailable, "service unavailable")
	}
}

// callbackPath is the path the engine puts into handoff URLs.
func (h *Handlers) callbackPath() string {
	if p := h.engine.Config().URL.HandoffPath; p != "" {
		return p
	}
	return handoff.DefaultHandoffPath
}

func (h *Handlers) loginFailureURL() string {
	u := url.URL{Path: h.opts.LoginPath, RawQuery: url.Values{"error": {failedLoginError}}.Encode()}
	return u.String()
}
