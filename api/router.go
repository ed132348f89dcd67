package api

import (
	"net/http"
	"os"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/retail_backend/config"
	"bitbucket.org/mmdatafocus/retail_backend/middlewares"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func corsConfig() cors.Config {
	cfg := cors.DefaultConfig()
	// In production, require an explicit allowlist via CORS_ALLOWED_ORIGINS
	// (comma-separated). In non-production, allow all.
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			cfg.AllowOrigins = []string{}
		} else {
			cfg.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		cfg.AllowAllOrigins = true
	}
	cfg.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	cfg.AddAllowHeaders("Origin", "Content-Type", "Authorization", "Idempotency-Key")
	cfg.AddExposeHeaders("Content-Length")
	cfg.MaxAge = 12 * time.Hour
	return cfg
}

// NewRouter builds the gin engine with all endpoints registered. Everything
// under /api requires a valid token; /healthz stays open for probes. When
// ready is non-nil, requests are refused with 503 until it reports true, so
// the listener can come up before the database does.
func NewRouter(ready func() bool) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(corsConfig()))

	if ready != nil {
		router.Use(func(c *gin.Context) {
			if c.Request.URL.Path == "/healthz" {
				c.Next()
				return
			}
			if !ready() {
				c.AbortWithStatus(http.StatusServiceUnavailable)
				return
			}
			c.Next()
		})
	}

	router.GET("/healthz", func(c *gin.Context) {
		redisStatus := "ok"
		if rdb := config.GetRedisDB(); rdb != nil {
			if err := rdb.Ping(config.GetRedisContext()).Err(); err != nil {
				redisStatus = "down"
			}
		} else {
			redisStatus = "down"
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "redis": redisStatus})
	})

	authed := router.Group("/api")
	authed.Use(middlewares.AuthMiddleware())

	authed.POST("/locations", createLocation)
	authed.GET("/locations", listLocations)
	authed.GET("/locations/:id", getLocation)
	authed.GET("/locations/:id/stocks", listLocationStocks)

	authed.POST("/products", createProduct)
	authed.GET("/products/:id", getProduct)

	authed.POST("/transfers", createTransfer)
	authed.GET("/transfers", listTransfers)
	authed.GET("/transfers/:id", getTransfer)
	authed.GET("/transfers/:id/history", listTransferHistory)
	authed.POST("/transfers/:id/approve", approveTransfer)
	authed.POST("/transfers/:id/reject", rejectTransfer)
	authed.POST("/transfers/:id/ship", shipTransfer)
	authed.POST("/transfers/:id/receive", receiveTransfer)
	authed.POST("/transfers/:id/cancel", cancelTransfer)
	authed.POST("/transfers/:id/follow-up", followUpTransfer)

	return router
}
