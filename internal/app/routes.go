package app

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/yapper-space/core/internal/middleware"
	"github.com/yapper-space/core/internal/modules/ai"
	"github.com/yapper-space/core/internal/modules/auth"
	"github.com/yapper-space/core/internal/modules/autocomment"
	"github.com/yapper-space/core/internal/modules/kaito"
	"github.com/yapper-space/core/internal/modules/twitter"
	"github.com/yapper-space/core/internal/pkg/metrics"
	"github.com/yapper-space/core/internal/pkg/response"
)

const apiPrefix = "/api/v1"

func (a *App) newRouter() *gin.Engine {
	if a.cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(a.logger))
	router.Use(cors.New(corsConfig(a.cfg.AllowedOrigins, a.cfg.IsDev())))
	router.Use(middleware.RateLimit(a.redis.Raw(), a.logger))

	router.NoRoute(func(c *gin.Context) {
		response.NotFoundMsg(c, "Not found")
	})
	router.NoMethod(func(c *gin.Context) {
		response.MethodNotAllowed(c)
	})
	return router
}

func (a *App) registerRoutes(s *services) {
	r := a.router
	started := time.Now()

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": 1, "uptime": time.Since(started).Truncate(time.Second).String()})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	s.oauth.RegisterRoutes(r)

	api := r.Group(apiPrefix)
	authMW := middleware.Auth(s.sessions)

	auth.NewHandler(s.sessions).RegisterRoutes(api, authMW)
	ai.NewHandler(s.ai, s.sessions).RegisterRoutes(api, authMW)
	twitter.NewHandler(s.twitter, s.ai).RegisterRoutes(api, authMW)
	kaito.NewHandler(s.kaito, a.logger.Named("kaito")).RegisterRoutes(api, authMW)
	autocomment.NewHandler(s.autoComment, a.cfg.AutoComment.DefaultDelaySeconds).RegisterRoutes(api, authMW)
}
