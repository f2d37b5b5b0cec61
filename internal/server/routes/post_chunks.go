package routes

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/graphmesh/graphmesh/internal/queue"
	"github.com/graphmesh/graphmesh/internal/server/middleware"
	"github.com/graphmesh/graphmesh/pkg/graph"
)

// InsertChunkedHandler ingests the request body chunk by chunk. With a queue
// channel configured the job is handed to the worker; otherwise the chunks
// are processed synchronously.
func InsertChunkedHandler(c echo.Context) error {
	ctx := c.Request().Context()
	ac := c.(*middleware.AppContext)
	index := c.Param("index")

	var req insertRequest
	if err := c.Bind(&req); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}

	if ac.Queue != nil {
		err := queue.PublishIngest(ctx, ac.Queue, queue.IngestMsg{
			Index: index,
			Text:  req.Text,
		})
		if err != nil {
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.NoContent(http.StatusAccepted)
	}

	for _, chunk := range ac.App.Chunker.Chunk(req.Text) {
		if err := ac.App.Engine.InsertGraphData(ctx, index, chunk); err != nil {
			if errors.Is(err, graph.ErrInvalidInput) {
				return c.String(http.StatusBadRequest, err.Error())
			}
			return c.String(http.StatusInternalServerError, err.Error())
		}
	}

	return c.NoContent(http.StatusNoContent)
}
