package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"partstore-core/internal/auth"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJWTService() *auth.JWTService {
	return auth.NewJWTService("test-secret-key", 15*time.Minute)
}

// newTestEcho mounts a handler that echoes the caller's user id behind mw.
func newTestEcho(mw ...echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	e.GET("/protected", func(c echo.Context) error {
		id := IdentityFrom(c)
		if id == nil {
			return c.String(http.StatusOK, "anonymous")
		}
		return c.String(http.StatusOK, id.Email)
	}, mw...)
	return e
}

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func tokenFor(t *testing.T, svc *auth.JWTService, id auth.Identity) string {
	t.Helper()
	token, _, err := svc.GenerateAccessToken(id)
	require.NoError(t, err)
	return token
}

// ============================================
// RequireAuth
// ============================================

func TestRequireAuth_ValidToken_Header(t *testing.T) {
	svc := newTestJWTService()
	e := newTestEcho(RequireAuth(svc))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, svc, auth.Identity{UserID: 7, Email: "cliente@example.com"}))
	rec := serve(e, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cliente@example.com", rec.Body.String())
}

func TestRequireAuth_ValidToken_Cookie(t *testing.T) {
	svc := newTestJWTService()
	e := newTestEcho(RequireAuth(svc))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: tokenFor(t, svc, auth.Identity{UserID: 9, Email: "cookie@example.com"})})
	rec := serve(e, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cookie@example.com", rec.Body.String())
}

func TestRequireAuth_Rejects(t *testing.T) {
	svc := newTestJWTService()
	other := auth.NewJWTService("another-secret", time.Minute)
	expired := auth.NewJWTService("test-secret-key", -time.Minute)

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"no token", "", "unauthorized"},
		{"garbage", "Bearer invalid-token", "invalid token"},
		{"wrong secret", "Bearer " + tokenFor(t, other, auth.Identity{UserID: 7}), "invalid token"},
		{"expired", "Bearer " + tokenFor(t, expired, auth.Identity{UserID: 7}), "token has expired"},
		{"not bearer", "Basic dXNlcjpwYXNz", "unauthorized"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEcho(RequireAuth(svc))
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			rec := serve(e, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}
}

// ============================================
// OptionalAuth / RequireAdmin
// ============================================

func TestOptionalAuth(t *testing.T) {
	svc := newTestJWTService()
	e := newTestEcho(OptionalAuth(svc))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	rec := serve(e, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anonymous", rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer invalid-token")
	rec = serve(e, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anonymous", rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, svc, auth.Identity{UserID: 3, Email: "a@example.com"}))
	rec = serve(e, req)
	assert.Equal(t, "a@example.com", rec.Body.String())
}

func TestRequireAdmin(t *testing.T) {
	svc := newTestJWTService()
	e := newTestEcho(RequireAuth(svc), RequireAdmin())

	tests := []struct {
		name string
		role string
		want int
	}{
		{"admin", auth.RoleAdmin, http.StatusOK},
		{"customer", "customer", http.StatusForbidden},
		{"no role", "", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			req.Header.Set("Authorization", "Bearer "+tokenFor(t, svc, auth.Identity{UserID: 1, Email: "x@example.com", Role: tt.role}))

			rec := serve(e, req)

			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestRequireAdmin_WithoutAuth(t *testing.T) {
	e := newTestEcho(RequireAdmin())

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/protected", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
