package server

import (
	"time"

	"reelpipe/infrastructure/realtime"
	httpHandler "reelpipe/interfaces/http"
	"reelpipe/interfaces/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Task        httpHandler.ITaskHandler
	Proxy       httpHandler.IProxyHandler
	YouTubeAuth httpHandler.IYouTubeAuthHandler
	Health      httpHandler.IHealthHandler
	Stream      *realtime.TaskStream
}

func InitiateRouter(h Handlers, secretKey string, allowedOrigins []string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", h.Health.Healthz)
	router.GET("/readyz", h.Health.Readyz)

	// The OAuth provider redirects here without a bearer token.
	if h.YouTubeAuth != nil {
		router.GET("/api/youtube/callback", h.YouTubeAuth.HandleCallback)
	}

	api := router.Group("api")
	api.Use(middleware.Auth(secretKey))

	tasks := api.Group("/tasks")
	{
		tasks.POST("/fetch", h.Task.TriggerFetch)
		tasks.POST("/upload", h.Task.TriggerUpload)
		tasks.GET("", h.Task.List)
		tasks.GET("/stats", h.Task.Stats)
		tasks.POST("/cleanup", h.Task.Cleanup)
		tasks.GET("/:id", h.Task.Get)
		tasks.GET("/:id/progress", h.Task.Get)
		tasks.POST("/:id/cancel", h.Task.Cancel)
		tasks.DELETE("/:id", h.Task.Delete)
		if h.Stream != nil {
			tasks.GET("/:id/stream", h.Stream.Serve)
		}
	}
	api.GET("/stats/dashboard", h.Task.Dashboard)

	api.POST("/proxies/check-all", h.Proxy.CheckAll)
	api.GET("/proxies/statistics", h.Proxy.Statistics)
	api.POST("/proxies/auto-disable", h.Proxy.AutoDisable)
	api.POST("/accounts/:username/proxy/check", h.Proxy.CheckAccount)

	if h.YouTubeAuth != nil {
		api.GET("/youtube/auth/:username", h.YouTubeAuth.GetAuthURL)
	}

	return router
}
