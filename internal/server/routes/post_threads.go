package routes

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nexuslab/nexus/internal/queue"
	"github.com/nexuslab/nexus/internal/server/middleware"
	"github.com/nexuslab/nexus/pkg/common"
)

// PostThreadHandler accepts one conversation thread and enqueues it for
// extraction. Triage runs in the worker, so acceptance here only means the
// payload is well formed.
func PostThreadHandler(c echo.Context) error {
	type request struct {
		ID              string   `json:"id" validate:"required"`
		Subject         string   `json:"subject"`
		Participants    []string `json:"participants" validate:"required,min=1"`
		PeopleMentioned []string `json:"people_mentioned"`
		Text            string   `json:"text" validate:"required"`
	}

	app := c.(*middleware.AppContext).App

	req := new(request)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	queueData := queue.QueueThreadMsg{
		Message: "Thread queued for extraction",
		Thread: common.Thread{
			ID:              req.ID,
			Subject:         req.Subject,
			Participants:    req.Participants,
			PeopleMentioned: req.PeopleMentioned,
			Text:            req.Text,
		},
	}
	msgBytes, err := json.Marshal(queueData)
	if err != nil {
		return c.String(http.StatusInternalServerError, err.Error())
	}

	if err := queue.PublishFIFO(app.Queue, queue.IngestQueue, msgBytes); err != nil {
		return c.String(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusAccepted, map[string]any{
		"queued":    true,
		"thread_id": req.ID,
	})
}
