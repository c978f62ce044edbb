package routes

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nexuslab/nexus/internal/server/middleware"
	"github.com/nexuslab/nexus/pkg/graph"
	"github.com/nexuslab/nexus/pkg/store"
)

// PostSummarizeEdgeHandler regenerates the summary for a single edge.
func PostSummarizeEdgeHandler(c echo.Context) error {
	type request struct {
		A string `json:"a" validate:"required"`
		B string `json:"b" validate:"required"`
	}

	app := c.(*middleware.AppContext).App
	ctx := c.Request().Context()

	req := new(request)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	pair, err := app.Resolver.ResolvePair(req.A, req.B)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	backfiller := graph.NewBackfiller(graph.NewBackfillerParams{
		Model: app.AiClient,
		Store: app.Store,
	})

	summary, err := backfiller.SummarizeEdge(ctx, pair)
	if errors.Is(err, store.ErrEdgeNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Unknown edge"})
	}
	if err != nil {
		return c.String(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]any{
		"pair":    pair.Key(),
		"summary": summary.Summary,
	})
}
