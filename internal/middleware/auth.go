package middleware

import (
	"errors"
	"net/http"
	"strings"

	"partstore-core/internal/auth"

	"github.com/labstack/echo/v4"
)

const identityKey = "identity"

// ExtractToken reads the bearer token, falling back to the access_token cookie
// used by the storefront.
func ExtractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if cookie, err := r.Cookie("access_token"); err == nil {
		return cookie.Value
	}
	return ""
}

// RequireAuth validates the JWT and stores the caller's identity on the context.
func RequireAuth(jwtService *auth.JWTService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := ExtractToken(c.Request())
			if token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
			}

			id, err := jwtService.ValidateAccessToken(token)
			if errors.Is(err, auth.ErrExpiredToken) {
				return echo.NewHTTPError(http.StatusUnauthorized, "token has expired")
			}
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.Set(identityKey, id)
			return next(c)
		}
	}
}

// OptionalAuth attaches an identity when a valid token is present.
func OptionalAuth(jwtService *auth.JWTService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if token := ExtractToken(c.Request()); token != "" {
				if id, err := jwtService.ValidateAccessToken(token); err == nil {
					c.Set(identityKey, id)
				}
			}
			return next(c)
		}
	}
}

// RequireAdmin must run after RequireAuth.
func RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := IdentityFrom(c)
			if !id.Authenticated() {
				return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
			}
			if !id.IsAdmin() {
				return echo.NewHTTPError(http.StatusForbidden, "forbidden")
			}
			return next(c)
		}
	}
}

// IdentityFrom returns the caller or nil for anonymous requests.
func IdentityFrom(c echo.Context) *auth.Identity {
	id, _ := c.Get(identityKey).(*auth.Identity)
	return id
}
