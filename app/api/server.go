package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// NewServer creates a new HTTP server with all routes configured
func NewServer(handler *Handler, apiAccessKey string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
		SkipPaths: []string{"/health"},
	}))

	r.Use(gin.Recovery())

	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-API-Key")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	setupRoutes(r, handler, apiAccessKey)

	return r
}

func setupRoutes(r *gin.Engine, handler *Handler, apiAccessKey string) {
	r.GET("/feeds/:lang", handler.GetFeed)
	r.GET("/health", handler.GetHealth)

	// API endpoints (conditionally enabled with authentication)
	if apiAccessKey != "" {
		api := r.Group("/api")
		api.Use(authMiddleware(apiAccessKey))
		{
			api.GET("/bot/trigger", handler.APIGetStatus)
			api.POST("/bot/trigger", handler.APITriggerCycle)
			api.GET("/bot/seed", handler.APISeedStatus)
			api.POST("/bot/seed", handler.APISeed)
			api.PUT("/bot/settings", handler.APIUpdateSettings)
			api.POST("/bot/backfill-slugs", handler.APIBackfillSlugs)

			api.GET("/approvals", handler.APIListApprovals)
			api.POST("/approvals/:id/approve", handler.APIApprove)
			api.POST("/approvals/:id/reject", handler.APIReject)
		}
		slog.Info("API endpoints enabled with authentication")
	} else {
		slog.Warn("API endpoints disabled (API_ACCESS_KEY not set)")
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service": "News Bot",
			"version": handler.version,
			"endpoints": map[string]string{
				"feed":      "/feeds/<lang>",
				"health":    "/health",
				"trigger":   "/api/bot/trigger",
				"seed":      "/api/bot/seed",
				"settings":  "/api/bot/settings (PUT)",
				"approvals": "/api/approvals",
			},
			"languages":     handler.languages,
			"auth_required": apiAccessKey != "",
		})
	})

	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
}

// authMiddleware accepts the key in X-API-Key or as a Bearer token
func authMiddleware(apiAccessKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		providedKey := c.GetHeader("X-API-Key")

		if providedKey == "" {
			authHeader := c.GetHeader("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				providedKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if providedKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "API key required",
				"message": "Provide API key in X-API-Key header or Authorization: Bearer <key>",
			})
			c.Abort()
			return
		}

		if providedKey != apiAccessKey {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "Invalid API key",
				"message": "The provided API key is not valid",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
