package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/kindertrack/kindertrack-auth/internal/config"
	"github.com/kindertrack/kindertrack-auth/internal/http/handler"
	httpmiddleware "github.com/kindertrack/kindertrack-auth/internal/http/middleware"
	"github.com/kindertrack/kindertrack-auth/internal/middleware"
)

// NewRouter wires gin routes and middleware. The CSRF guard sits in the
// global chain: it self-exempts safe methods and bearer requests, so only
// cookie-authenticated state changes pay for it.
func NewRouter(cfg config.Config, authHandler *handler.AuthHandler, authMiddleware *httpmiddleware.Auth, csrfGuard *httpmiddleware.CSRFGuard, rateLimiter *middleware.RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(nil))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))
	r.Use(csrfGuard.Handler())

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)
		authGroup.POST("/logout", authHandler.Logout)
		authGroup.GET("/csrf", authHandler.CSRFToken)

		authGroup.GET("/me", authMiddleware.RequireAuth, authHandler.Me)
		authGroup.POST("/password", authMiddleware.RequireAuth, authHandler.ChangePassword)
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}
