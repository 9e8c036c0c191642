package server

import (
	"time"

	"ctf-session-svc/src/internal/dependency"
	"ctf-session-svc/src/internal/middleware"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(deps *dependency.Manager) {
	router := deps.Router
	router.Use(enableCORS)

	setupHealthEndpoint(deps)
	setupSessionRoutes(router, deps)
}

func setupHealthEndpoint(deps *dependency.Manager) {
	router := deps.Router
	mongodb := deps.Mongodb
	redisClient := deps.Redis
	cfg := deps.Config

	router.GET("/health", func(c *gin.Context) {
		log.Info("Health check endpoint requested")

		mongoStatus := "ok"
		if err := mongodb.Client.Ping(c.Request.Context(), nil); err != nil {
			mongoStatus = "error: " + err.Error()
		}

		redisStatus := "ok"
		if err := redisClient.Client.Ping(c.Request.Context()).Err(); err != nil {
			redisStatus = "error: " + err.Error()
		}

		c.JSON(200, gin.H{
			"status":    "ok",
			"service":   cfg.App.Name,
			"version":   cfg.App.Version,
			"mongodb":   mongoStatus,
			"redis":     redisStatus,
			"timestamp": time.Now().UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	})
}

func setupSessionRoutes(router *gin.Engine, deps *dependency.Manager) {
	authMiddleware := middleware.NewAuthMiddleware(deps.Config.Security.JwtKey)
	handler := deps.SessionHandler

	sessions := router.Group("/api/v1/sessions")
	sessions.Use(authMiddleware.RequireAuth())
	{
		sessions.POST("",
			setRouteName("launchSession"),
			handler.LaunchSession)

		sessions.GET("",
			setRouteName("getCurrentSession"),
			handler.GetSession)

		sessions.GET("/:id",
			setRouteName("getSessionById"),
			handler.GetSessionByID)

		sessions.DELETE("/:id",
			setRouteName("stopSession"),
			handler.StopSession)

		sessions.POST("/:id/flag",
			setRouteName("submitFlag"),
			handler.SubmitFlag)
	}
}

func setRouteName(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("route_name", name)
		c.Next()
	}
}

func enableCORS(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
	c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

	if c.Request.Method == "OPTIONS" {
		c.AbortWithStatus(204)
		return
	}

	c.Next()
}
