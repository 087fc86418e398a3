package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// SetupRouter creates the gin engine with every lookup route.
func SetupRouter(environment string, handler *Handler, logger *slog.Logger) *gin.Engine {
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", handler.HealthCheck)
	router.GET("/all_products/", handler.AllProducts)
	router.GET("/products/:name", handler.Product)
	router.GET("/products/:name/:field", handler.ProductField)
	router.GET("/items/:index", handler.Item)

	return router
}

// LoggerMiddleware logs one line per request. A nil logger disables it.
func LoggerMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if logger == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"dur", time.Since(start),
		)
	}
}
