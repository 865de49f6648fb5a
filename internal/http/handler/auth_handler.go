package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kindertrack/kindertrack-auth/internal/config"
	"github.com/kindertrack/kindertrack-auth/internal/csrf"
	"github.com/kindertrack/kindertrack-auth/internal/http/middleware"
	"github.com/kindertrack/kindertrack-auth/internal/service"
)

// AuthHandler exposes the authentication flows over REST.
type AuthHandler struct {
	Auth   *service.AuthService
	CSRF   csrf.Store
	Config config.Config
	Logger *zap.Logger
}

// NewAuthHandler wires dependencies.
func NewAuthHandler(auth *service.AuthService, csrfStore csrf.Store, cfg config.Config, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{Auth: auth, CSRF: csrfStore, Config: cfg, Logger: logger}
}

// Login authenticates a username/password pair and returns a token pair.
// Browser clients additionally get httpOnly cookies and a session cookie.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload.", "code": "INVALID_REQUEST"})
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username and password are required.", "code": "INVALID_REQUEST"})
		return
	}

	pair, err := h.Auth.Login(c.Request.Context(), c.ClientIP(), req.Username, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}

	maxAge := pair.ExpiresIn
	setCookie(c, middleware.AccessCookie, pair.AccessToken, maxAge, true)
	setCookie(c, middleware.RefreshCookie, pair.RefreshToken, int(h.Config.RefreshTokenTTL.Seconds()), true)
	h.ensureSession(c)

	c.JSON(http.StatusOK, pair)
}

// Refresh mints a new access token from a refresh token taken from the body
// or, for browser clients, the refresh cookie.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = c.ShouldBindJSON(&req)

	refreshToken := strings.TrimSpace(req.RefreshToken)
	if refreshToken == "" {
		refreshToken, _ = c.Cookie(middleware.RefreshCookie)
	}
	if refreshToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Refresh token required.", "code": "INVALID_REQUEST"})
		return
	}

	pair, err := h.Auth.Refresh(c.Request.Context(), refreshToken)
	if err != nil {
		h.respondError(c, err)
		return
	}

	setCookie(c, middleware.AccessCookie, pair.AccessToken, pair.ExpiresIn, true)
	c.JSON(http.StatusOK, pair)
}

// Logout revokes whatever tokens the request presents and clears the
// cookies. Idempotent: a request with nothing to revoke still succeeds.
func (h *AuthHandler) Logout(c *gin.Context) {
	accessToken, _ := middleware.BearerToken(c.Request)
	if accessToken == "" {
		accessToken, _ = c.Cookie(middleware.AccessCookie)
	}

	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = c.ShouldBindJSON(&req)
	refreshToken := strings.TrimSpace(req.RefreshToken)
	if refreshToken == "" {
		refreshToken, _ = c.Cookie(middleware.RefreshCookie)
	}

	if err := h.Auth.Logout(c.Request.Context(), accessToken, refreshToken); err != nil {
		h.respondError(c, err)
		return
	}

	setCookie(c, middleware.AccessCookie, "", -1, true)
	setCookie(c, middleware.RefreshCookie, "", -1, true)
	setCookie(c, middleware.SessionCookie, "", -1, false)
	c.Status(http.StatusNoContent)
}

// Me returns the authenticated principal.
func (h *AuthHandler) Me(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required.", "code": service.CodeUnauthorized})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":       principal.ID,
		"username": principal.Username,
		"role":     principal.Role,
	})
}

// CSRFToken issues a one-time token bound to the browser session, delivered
// in both the body and the X-CSRF-Token response header.
func (h *AuthHandler) CSRFToken(c *gin.Context) {
	sessionID := h.ensureSession(c)

	token, err := h.CSRF.Issue(c.Request.Context(), sessionID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.Header(middleware.CSRFHeader, token)
	c.JSON(http.StatusOK, gin.H{"csrf_token": token})
}

// ChangePassword rotates the caller's credential and revokes both tokens the
// request can name: the access token it authenticated with and the refresh
// token from the body or cookie.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required.", "code": service.CodeUnauthorized})
		return
	}

	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
		RefreshToken    string `json:"refresh_token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload.", "code": "INVALID_REQUEST"})
		return
	}
	if req.CurrentPassword == "" || len(req.NewPassword) < 8 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "New password must be at least 8 characters.", "code": "INVALID_REQUEST"})
		return
	}

	accessToken, _ := middleware.GetBearerToken(c)
	refreshToken := strings.TrimSpace(req.RefreshToken)
	if refreshToken == "" {
		refreshToken, _ = c.Cookie(middleware.RefreshCookie)
	}

	if err := h.Auth.ChangePassword(c.Request.Context(), principal, accessToken, refreshToken, req.CurrentPassword, req.NewPassword); err != nil {
		h.respondError(c, err)
		return
	}

	setCookie(c, middleware.AccessCookie, "", -1, true)
	setCookie(c, middleware.RefreshCookie, "", -1, true)
	c.Status(http.StatusNoContent)
}

// ensureSession returns the browser session ID, creating the cookie when
// missing. The session cookie must outlive the access cookie: if it expired
// first, a still-authenticated browser would be unable to satisfy the CSRF
// guard.
func (h *AuthHandler) ensureSession(c *gin.Context) string {
	if sessionID, err := c.Cookie(middleware.SessionCookie); err == nil && sessionID != "" {
		return sessionID
	}
	sessionID := uuid.NewString()
	setCookie(c, middleware.SessionCookie, sessionID, int(h.Config.AccessTokenTTL.Seconds()), false)
	return sessionID
}

func (h *AuthHandler) respondError(c *gin.Context, err error) {
	var authErr *service.AuthError
	if errors.As(err, &authErr) {
		body := gin.H{"error": authErr.Description, "code": authErr.Code}
		if authErr.Code == service.CodeAccountLocked {
			seconds := int(authErr.RetryAfter.Seconds())
			if seconds < 1 {
				seconds = 1
			}
			body["remainingTime"] = seconds
			c.Header("Retry-After", strconv.Itoa(seconds))
		}
		c.JSON(authErr.Status, body)
		return
	}

	if h.Logger != nil {
		h.Logger.Error("auth request failed", zap.Error(err))
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error.", "code": "INTERNAL"})
}

func setCookie(c *gin.Context, name, value string, maxAge int, httpOnly bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, maxAge, "/", "", false, httpOnly)
}
