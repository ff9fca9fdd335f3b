package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all API routes. metricsHandler may be nil to
// skip the /metrics endpoint.
func SetupRoutes(router *gin.Engine, handler *Handler, metricsHandler http.Handler) {
	router.GET("/health", handler.HealthCheck)
	if metricsHandler != nil {
		router.GET("/metrics", gin.WrapH(metricsHandler))
	}

	v1 := router.Group("/api/v1")
	{
		rules := v1.Group("/rules")
		{
			rules.GET("", handler.ListRules)         // GET /api/v1/rules
			rules.POST("", handler.CreateRule)       // POST /api/v1/rules
			rules.PUT("/:id", handler.UpdateRule)    // PUT /api/v1/rules/:id
			rules.DELETE("/:id", handler.DeleteRule) // DELETE /api/v1/rules/:id
		}

		articles := v1.Group("/articles")
		{
			articles.POST("", handler.IngestArticle)      // POST /api/v1/articles
			articles.GET("", handler.ListCleanedArticles) // GET /api/v1/articles?date=
			articles.GET("/:id", handler.GetArticle)      // GET /api/v1/articles/:id
		}

		stats := v1.Group("/stats")
		{
			stats.GET("", handler.GetStats)                  // GET /api/v1/stats
			stats.GET("/trend", handler.GetTrend)            // GET /api/v1/stats/trend?days=
			stats.POST("/recompute", handler.RecomputeStats) // POST /api/v1/stats/recompute
		}
	}
}
