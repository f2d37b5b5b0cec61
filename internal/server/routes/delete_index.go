package routes

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/graphmesh/graphmesh/internal/server/middleware"
	"github.com/graphmesh/graphmesh/pkg/graph"
)

func DeleteIndexHandler(c echo.Context) error {
	ctx := c.Request().Context()
	a := c.(*middleware.AppContext).App
	index := c.Param("index")

	if err := a.Engine.DeleteIndex(ctx, index); err != nil {
		if errors.Is(err, graph.ErrInvalidInput) {
			return c.String(http.StatusBadRequest, err.Error())
		}
		return c.String(http.StatusInternalServerError, err.Error())
	}

	return c.NoContent(http.StatusNoContent)
}
