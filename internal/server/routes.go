package server

import (
	"github.com/labstack/echo/v4"

	"github.com/graphmesh/graphmesh/internal/server/routes"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api")

	// Index routes
	apiRoutes.GET("/indices", routes.GetIndicesHandler)
	apiRoutes.DELETE("/indices/:index", routes.DeleteIndexHandler)

	// Graph routes
	apiRoutes.GET("/indices/:index/graph", routes.GetGraphHandler)
	apiRoutes.POST("/indices/:index/text", routes.InsertTextHandler)
	apiRoutes.POST("/indices/:index/chunks", routes.InsertChunkedHandler)

	// Query routes
	apiRoutes.POST("/indices/:index/search", routes.SearchGraphHandler)
	apiRoutes.POST("/indices/:index/search/stream", routes.SearchGraphStreamHandler)
	apiRoutes.POST("/indices/:index/search/community", routes.SearchGraphCommunityHandler)

	// Summary routes
	apiRoutes.POST("/indices/:index/communities", routes.RebuildCommunitiesHandler)
	apiRoutes.POST("/indices/:index/global", routes.RebuildGlobalHandler)
}
