package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nexuslab/nexus/internal/queue"
	"github.com/nexuslab/nexus/internal/server/middleware"
	"github.com/nexuslab/nexus/pkg/graph"
	"github.com/nexuslab/nexus/pkg/leaselock"
)

// PostBackfillHandler triggers a summary backfill. By default the run
// executes inline under the recompute lock and returns its result; a
// concurrent run elsewhere yields 409. With "async" set the request is
// queued for the worker instead.
func PostBackfillHandler(c echo.Context) error {
	type request struct {
		People    []string `json:"people"`
		Overwrite bool     `json:"overwrite"`
		Async     bool     `json:"async"`
	}

	app := c.(*middleware.AppContext).App
	ctx := c.Request().Context()

	req := new(request)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	filter := app.Resolver.ResolveAll(req.People)

	if req.Async {
		queueData := queue.QueueBackfillMsg{
			Message:      "Backfill queued",
			EntityFilter: filter,
			SkipExisting: !req.Overwrite,
		}
		msgBytes, err := json.Marshal(queueData)
		if err != nil {
			return c.String(http.StatusInternalServerError, err.Error())
		}
		if err := queue.PublishFIFO(app.Queue, queue.SummarizeQueue, msgBytes); err != nil {
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusAccepted, map[string]any{"queued": true})
	}

	backfiller := graph.NewBackfiller(graph.NewBackfillerParams{
		Model: app.AiClient,
		Store: app.Store,
	})

	var result *graph.BackfillResult
	err := app.Guard.WithLock(ctx, graph.RecomputeLockKey, func(ctx context.Context) error {
		var runErr error
		result, runErr = backfiller.Run(ctx, graph.BackfillParams{
			EntityFilter: filter,
			SkipExisting: !req.Overwrite,
		})
		return runErr
	})
	if errors.Is(err, leaselock.ErrBusy) {
		return c.JSON(http.StatusConflict, map[string]string{"error": "A recompute is already running"})
	}
	if err != nil {
		return c.String(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, result)
}
