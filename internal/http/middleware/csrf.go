package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kindertrack/kindertrack-auth/internal/csrf"
	"github.com/kindertrack/kindertrack-auth/internal/service"
)

// CSRFHeader carries the token on both responses (issuance) and
// state-changing requests (validation).
const CSRFHeader = "X-CSRF-Token"

// SessionCookie is the cookie naming the browser session CSRF tokens are
// bound to. Set at login.
const SessionCookie = "kt_session"

// CSRFGuard enforces single-use CSRF tokens on state-changing requests from
// cookie-authenticated clients.
type CSRFGuard struct {
	Store csrf.Store
}

// Handler exempts safe methods and bearer-authenticated requests; bearer
// tokens are attacker-unreadable cross-site, so only cookie sessions need
// the double check. Requests carrying neither cookie have no ambient
// credentials and pass through. An access cookie without a session cookie is
// still an ambient credential, so it fails closed: there is no session to
// validate a token against.
func (g *CSRFGuard) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}
		if _, ok := BearerToken(c.Request); ok {
			c.Next()
			return
		}
		sessionID, err := c.Cookie(SessionCookie)
		if err != nil || sessionID == "" {
			if access, err := c.Cookie(AccessCookie); err == nil && access != "" {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
					"error": "CSRF token required.",
					"code":  service.CodeCSRFMissing,
				})
				return
			}
			c.Next()
			return
		}

		token := c.GetHeader(CSRFHeader)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "CSRF token required.",
				"code":  service.CodeCSRFMissing,
			})
			return
		}

		ok, err := g.Store.Validate(c.Request.Context(), token, sessionID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "CSRF validation unavailable.",
				"code":  "INTERNAL",
			})
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "CSRF token invalid or expired.",
				"code":  service.CodeCSRFInvalid,
			})
			return
		}

		c.Next()
	}
}
