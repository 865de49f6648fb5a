package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kindertrack/kindertrack-auth/internal/config"
	"github.com/kindertrack/kindertrack-auth/internal/csrf"
	"github.com/kindertrack/kindertrack-auth/internal/domain"
	"github.com/kindertrack/kindertrack-auth/internal/http/middleware"
	"github.com/kindertrack/kindertrack-auth/internal/lockout"
	"github.com/kindertrack/kindertrack-auth/internal/repository"
	"github.com/kindertrack/kindertrack-auth/internal/revocation"
	"github.com/kindertrack/kindertrack-auth/internal/service"
	"github.com/kindertrack/kindertrack-auth/internal/token"
)

const testSecret = "k9PzL2vXw4nQ8rT1mJ6bYs3hF7dG0aCe"

type stubUserRepo struct{}

func (stubUserRepo) GetByUsername(context.Context, string) (domain.User, error) {
	return domain.User{}, repository.ErrNotFound
}

func (stubUserRepo) GetByID(context.Context, int64) (domain.User, error) {
	return domain.User{}, repository.ErrNotFound
}

func (stubUserRepo) Create(_ context.Context, u domain.User) (domain.User, error) {
	return u, nil
}

func (stubUserRepo) UpdatePasswordHash(context.Context, int64, string) error { return nil }

func newAuthMiddleware(t *testing.T) (*middleware.Auth, *token.Codec) {
	t.Helper()
	codec, err := token.NewCodec(testSecret, time.Hour, 24*time.Hour)
	require.NoError(t, err)
	svc := service.NewAuthService(
		stubUserRepo{}, codec, revocation.NewMemory(),
		lockout.NewMemory(lockout.Policy{}),
		config.Config{AccessTokenTTL: time.Hour}, zap.NewNop(),
	)
	return &middleware.Auth{Service: svc}, codec
}

func newProtectedRouter(t *testing.T, auth *middleware.Auth, extra ...gin.HandlerFunc) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers := append([]gin.HandlerFunc{auth.RequireAuth}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		principal, _ := middleware.GetPrincipal(c)
		c.JSON(http.StatusOK, gin.H{"username": principal.Username})
	})
	r.GET("/protected", handlers...)
	return r
}

func TestRequireAuthMissingToken(t *testing.T) {
	auth, _ := newAuthMiddleware(t)
	r := newProtectedRouter(t, auth)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Body.String(), service.CodeUnauthorized)
}

func TestRequireAuthValidBearer(t *testing.T) {
	auth, codec := newAuthMiddleware(t)
	r := newProtectedRouter(t, auth)

	access, err := codec.Issue(domain.Principal{ID: 1, Username: "alice", Role: domain.RoleTeacher}, token.KindAccess)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "alice")
}

func TestRequireAuthCookieFallback(t *testing.T) {
	auth, codec := newAuthMiddleware(t)
	r := newProtectedRouter(t, auth)

	access, err := codec.Issue(domain.Principal{ID: 1, Username: "alice", Role: domain.RoleTeacher}, token.KindAccess)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: middleware.AccessCookie, Value: access})
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
}

func TestRequireAuthGarbageToken(t *testing.T) {
	auth, _ := newAuthMiddleware(t)
	r := newProtectedRouter(t, auth)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Body.String(), service.CodeTokenInvalid)
}

func TestRequireRole(t *testing.T) {
	auth, codec := newAuthMiddleware(t)
	r := newProtectedRouter(t, auth, auth.RequireRole(domain.RoleAdmin))

	access, err := codec.Issue(domain.Principal{ID: 1, Username: "alice", Role: domain.RoleTeacher}, token.KindAccess)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)

	admin, err := codec.Issue(domain.Principal{ID: 2, Username: "root", Role: domain.RoleAdmin}, token.KindAccess)
	require.NoError(t, err)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+admin)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func newCSRFRouter(t *testing.T, store csrf.Store) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	guard := &middleware.CSRFGuard{Store: store}
	r := gin.New()
	r.Use(guard.Handler())
	r.POST("/mutate", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/read", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func TestCSRFGuardAllowsSafeMethods(t *testing.T) {
	r := newCSRFRouter(t, csrf.NewMemory(time.Hour))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/read", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookie, Value: "session-1"})
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestCSRFGuardSkipsBearerRequests(t *testing.T) {
	r := newCSRFRouter(t, csrf.NewMemory(time.Hour))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/mutate", nil)
	req.Header.Set("Authorization", "Bearer some-token")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestCSRFGuardBlocksCookieSessionWithoutToken(t *testing.T) {
	r := newCSRFRouter(t, csrf.NewMemory(time.Hour))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/mutate", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookie, Value: "session-1"})
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusForbidden, w.Code)
	require.Contains(t, w.Body.String(), service.CodeCSRFMissing)
}

func TestCSRFGuardBlocksAccessCookieWithoutSession(t *testing.T) {
	r := newCSRFRouter(t, csrf.NewMemory(time.Hour))

	// An access cookie is an ambient credential even when the session cookie
	// has expired; the mutation must not slip past the guard.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/mutate", nil)
	req.AddCookie(&http.Cookie{Name: middleware.AccessCookie, Value: "some-access-token"})
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusForbidden, w.Code)
	require.Contains(t, w.Body.String(), service.CodeCSRFMissing)
}

func TestCSRFGuardConsumesTokenOnce(t *testing.T) {
	store := csrf.NewMemory(time.Hour)
	r := newCSRFRouter(t, store)

	tok, err := store.Issue(context.Background(), "session-1")
	require.NoError(t, err)

	do := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/mutate", nil)
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookie, Value: "session-1"})
		req.Header.Set(middleware.CSRFHeader, tok)
		r.ServeHTTP(w, req)
		return w
	}

	require.Equal(t, http.StatusNoContent, do().Code)

	second := do()
	require.Equal(t, http.StatusForbidden, second.Code)
	require.Contains(t, second.Body.String(), service.CodeCSRFInvalid)
}

func TestCSRFGuardRejectsWrongSession(t *testing.T) {
	store := csrf.NewMemory(time.Hour)
	r := newCSRFRouter(t, store)

	tok, err := store.Issue(context.Background(), "session-1")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/mutate", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookie, Value: "session-2"})
	req.Header.Set(middleware.CSRFHeader, tok)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusForbidden, w.Code)
	require.Contains(t, w.Body.String(), service.CodeCSRFInvalid)
}
