package server

import (
	"github.com/labstack/echo/v4"

	"github.com/nexuslab/nexus/internal/server/middleware"
	"github.com/nexuslab/nexus/internal/server/routes"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Graph read routes
	apiRoutes.GET("/graph", routes.GetGraphHandler)
	apiRoutes.GET("/graph/:id", routes.GetGraphEntityHandler)
	apiRoutes.GET("/meta", routes.GetMetaHandler)

	// Ingestion routes
	apiRoutes.POST("/threads", routes.PostThreadHandler)

	// Summary routes
	apiRoutes.POST("/summaries/backfill", routes.PostBackfillHandler)
	apiRoutes.POST("/edges/summarize", routes.PostSummarizeEdgeHandler)
}
