package api

import (
	"github.com/gin-gonic/gin"
)

// SetupRoutes registers the v1 API routes on the given group.
func SetupRoutes(v1 *gin.RouterGroup, handler *Handler) {
	sources := v1.Group("/sources")
	sources.GET("", handler.ListSources)                     // GET /api/v1/sources
	sources.POST("/:id/reset-defunct", handler.ResetDefunct) // POST /api/v1/sources/:id/reset-defunct

	v1.GET("/feeds", handler.GetFeeds)   // GET /api/v1/feeds?sources=a,b
	v1.GET("/briefs", handler.GetBriefs) // GET /api/v1/briefs?category=
	v1.GET("/digest", handler.GetDigest) // GET /api/v1/digest?focus=a,b
	v1.GET("/search", handler.Search)    // GET /api/v1/search?q=&limit=
	v1.GET("/stats", handler.GetStats)   // GET /api/v1/stats
	v1.POST("/refresh", handler.Refresh) // POST /api/v1/refresh
}
