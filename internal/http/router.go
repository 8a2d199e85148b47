// Package http wires the callback listener's routes.
package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/shhvang/rSpotify/internal/config"
	"github.com/shhvang/rSpotify/internal/http/handler"
	"github.com/shhvang/rSpotify/internal/http/middleware"
)

// NewRouter wires gin routes and middleware for the callback listener.
func NewRouter(cfg config.Config, callback *handler.CallbackHandler, rateLimiter *middleware.RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(nil))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(otelgin.Middleware(cfg.ServiceName))

	r.GET("/", callback.Index)
	r.GET("/health", callback.Health)
	r.GET("/callback", callback.Callback)

	return r
}
