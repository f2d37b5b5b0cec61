package routes

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/graphmesh/graphmesh/internal/server/middleware"
	"github.com/graphmesh/graphmesh/pkg/graph"
)

// SearchGraphStreamHandler streams the answer as server-sent events. The
// stream ends when the model finishes or the client disconnects.
func SearchGraphStreamHandler(c echo.Context) error {
	ctx := c.Request().Context()
	a := c.(*middleware.AppContext).App
	index := c.Param("index")

	var req searchRequest
	if err := c.Bind(&req); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}

	stream, err := a.Engine.SearchGraphStream(ctx, index, req.Query)
	if err != nil {
		if errors.Is(err, graph.ErrInvalidInput) {
			return c.String(http.StatusBadRequest, err.Error())
		}
		return c.String(http.StatusInternalServerError, err.Error())
	}

	response := c.Response()
	response.Header().Set(echo.HeaderContentType, "text/event-stream")
	response.Header().Set("Cache-Control", "no-cache")
	response.Header().Set("Connection", "keep-alive")
	response.WriteHeader(http.StatusOK)
	response.Flush()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-stream:
			if !ok {
				fmt.Fprint(response, "event: done\ndata:\n\n")
				response.Flush()
				return nil
			}
			if event.Type != "content" || event.Content == "" {
				continue
			}
			if _, err := fmt.Fprintf(response, "data: %s\n\n", event.Content); err != nil {
				return nil
			}
			response.Flush()
		}
	}
}
