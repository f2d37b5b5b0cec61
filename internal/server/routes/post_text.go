package routes

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/graphmesh/graphmesh/internal/server/middleware"
	"github.com/graphmesh/graphmesh/pkg/graph"
)

type insertRequest struct {
	Text string `json:"text" validate:"required"`
}

// InsertTextHandler ingests the request body as a single chunk.
func InsertTextHandler(c echo.Context) error {
	ctx := c.Request().Context()
	a := c.(*middleware.AppContext).App
	index := c.Param("index")

	var req insertRequest
	if err := c.Bind(&req); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}

	if err := a.Engine.InsertGraphData(ctx, index, req.Text); err != nil {
		if errors.Is(err, graph.ErrInvalidInput) {
			return c.String(http.StatusBadRequest, err.Error())
		}
		return c.String(http.StatusInternalServerError, err.Error())
	}

	return c.NoContent(http.StatusNoContent)
}
