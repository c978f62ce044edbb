package routes

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/nexuslab/nexus/internal/server/middleware"
	"github.com/nexuslab/nexus/pkg/common"
)

type graphEdge struct {
	A                string   `json:"a"`
	B                string   `json:"b"`
	Observations     []string `json:"observations"`
	InteractionCount int      `json:"interaction_count"`
	Summary          string   `json:"summary,omitempty"`
}

func toGraphEdges(edges []common.Edge) []graphEdge {
	out := make([]graphEdge, 0, len(edges))
	for _, e := range edges {
		out = append(out, graphEdge{
			A:                e.Pair.A,
			B:                e.Pair.B,
			Observations:     e.Observations,
			InteractionCount: e.InteractionCount,
			Summary:          e.Summary,
		})
	}
	return out
}

// GetGraphHandler returns the whole graph, optionally narrowed to edges
// touching the people listed in the "people" query parameter.
func GetGraphHandler(c echo.Context) error {
	app := c.(*middleware.AppContext).App
	ctx := c.Request().Context()

	var filter []string
	if raw := c.QueryParam("people"); raw != "" {
		for _, p := range strings.Split(raw, ",") {
			filter = append(filter, app.Resolver.Resolve(p))
		}
	}

	edges, err := app.Store.Edges(ctx, filter)
	if err != nil {
		return c.String(http.StatusInternalServerError, err.Error())
	}

	entities, err := app.Store.Entities(ctx)
	if err != nil {
		return c.String(http.StatusInternalServerError, err.Error())
	}
	entityIds := make([]string, 0, len(entities))
	for _, e := range entities {
		entityIds = append(entityIds, e.CanonicalID)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"entities": entityIds,
		"edges":    toGraphEdges(edges),
	})
}

// GetGraphEntityHandler returns one person's edges, 404 when the person is
// not in the graph.
func GetGraphEntityHandler(c echo.Context) error {
	app := c.(*middleware.AppContext).App
	ctx := c.Request().Context()

	id := app.Resolver.Resolve(c.Param("id"))
	if id == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Empty id"})
	}

	known, err := app.Store.HasEntity(ctx, id)
	if err != nil {
		return c.String(http.StatusInternalServerError, err.Error())
	}
	if !known {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Unknown person"})
	}

	edges, err := app.Store.Edges(ctx, []string{id})
	if err != nil {
		return c.String(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]any{
		"id":    id,
		"edges": toGraphEdges(edges),
	})
}
