package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/practiceline/handoff"
	"github.com/practiceline/handoff/jwt"
)

// DefaultSessionCookie is the cookie name used when none is configured.
const DefaultSessionCookie = "session"

var errUnauthenticated = errors.New("unauthenticated")

// SessionEstablisher creates the tenant-local session after a successful
// exchange.
type SessionEstablisher interface {
	Establish(c echo.Context, p handoff.Payload) error
}

// Authenticator identifies the caller of the central start endpoint.
type Authenticator interface {
	Authenticate(c echo.Context) (handoff.Identity, error)
}

// CookieSessions mints a signed session token into an HttpOnly cookie.
type CookieSessions struct {
	Manager *jwt.Manager
	Name    string
	// Insecure drops the Secure attribute for plain-http development.
	Insecure bool
}

func (s CookieSessions) Establish(c echo.Context, p handoff.Payload) error {
	token, err := s.Manager.CreateSession(p.UserID, p.TenantID, p.Email)
	if err != nil {
		return err
	}

	c.SetCookie(&http.Cookie{
		Name:     cookieName(s.Name),
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.Manager.TTL().Seconds()),
		HttpOnly: true,
		Secure:   !s.Insecure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// BearerAuthenticator reads the central session from the Authorization
// header, falling back to the session cookie.
type BearerAuthenticator struct {
	Manager *jwt.Manager
	Cookie  string
}

func (a BearerAuthenticator) Authenticate(c echo.Context) (handoff.Identity, error) {
	token, ok := bearerToken(c.Request().Header.Get("Authorization"))
	if !ok {
		cookie, err := c.Cookie(cookieName(a.Cookie))
		if err != nil || cookie.Value == "" {
			return handoff.Identity{}, errUnauthenticated
		}
		token = cookie.Value
	}

	claims, err := a.Manager.ParseSession(token)
	if err != nil {
		return handoff.Identity{}, errUnauthenticated
	}
	return handoff.Identity{UserID: claims.UID, Email: claims.Email}, nil
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

func cookieName(name string) string {
	if name == "" {
		return DefaultSessionCookie
	}
	return name
}
