package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kindertrack/kindertrack-auth/internal/domain"
	"github.com/kindertrack/kindertrack-auth/internal/service"
)

const (
	principalKey   = "principal"
	bearerTokenKey = "bearerToken"
)

// Cookie names for browser clients. Access and refresh cookies are httpOnly;
// the session cookie only names the session CSRF tokens bind to.
const (
	AccessCookie  = "kt_access_token"
	RefreshCookie = "kt_refresh_token"
)

// Auth validates the access token and attaches the principal. Bearer header
// first, access cookie as the browser fallback.
type Auth struct {
	Service *service.AuthService
}

// RequireAuth ensures the request carries a valid, unrevoked access token.
func (m *Auth) RequireAuth(c *gin.Context) {
	raw, ok := BearerToken(c.Request)
	if !ok {
		if cookie, err := c.Cookie(AccessCookie); err == nil && cookie != "" {
			raw, ok = cookie, true
		}
	}
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "Authorization bearer token required.",
			"code":  service.CodeUnauthorized,
		})
		return
	}

	principal, err := m.Service.Authenticate(c.Request.Context(), raw)
	if err != nil {
		var authErr *service.AuthError
		if errors.As(err, &authErr) {
			c.AbortWithStatusJSON(authErr.Status, gin.H{
				"error": authErr.Description,
				"code":  authErr.Code,
			})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": "Authentication unavailable.",
			"code":  "INTERNAL",
		})
		return
	}

	c.Set(principalKey, principal)
	c.Set(bearerTokenKey, raw)
	c.Next()
}

// RequireRole allows only the listed roles. Must run after RequireAuth.
func (m *Auth) RequireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := GetPrincipal(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required.",
				"code":  service.CodeUnauthorized,
			})
			return
		}
		for _, role := range roles {
			if principal.Role == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": "Insufficient role.",
			"code":  "FORBIDDEN",
		})
	}
}

// GetPrincipal exposes the authenticated identity to handlers.
func GetPrincipal(c *gin.Context) (domain.Principal, bool) {
	value, ok := c.Get(principalKey)
	if !ok {
		return domain.Principal{}, false
	}
	principal, ok := value.(domain.Principal)
	return principal, ok
}

// GetBearerToken returns the raw access token the request authenticated
// with, for handlers that revoke it (logout, password change).
func GetBearerToken(c *gin.Context) (string, bool) {
	value, ok := c.Get(bearerTokenKey)
	if !ok {
		return "", false
	}
	raw, ok := value.(string)
	return raw, ok
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
