package routes

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/nexuslab/nexus/internal/server/middleware"
)

// GetMetaHandler returns graph-wide counts and the highest-degree people.
// The "top" query parameter bounds the degree list.
func GetMetaHandler(c echo.Context) error {
	app := c.(*middleware.AppContext).App
	ctx := c.Request().Context()

	top := 10
	if raw := c.QueryParam("top"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid top parameter"})
		}
		top = parsed
	}

	meta, err := app.Store.Meta(ctx, top)
	if err != nil {
		return c.String(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, meta)
}
