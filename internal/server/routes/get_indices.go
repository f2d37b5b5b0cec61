package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/graphmesh/graphmesh/internal/server/middleware"
)

func GetIndicesHandler(c echo.Context) error {
	ctx := c.Request().Context()
	a := c.(*middleware.AppContext).App

	indices, err := a.Store.ListIndices(ctx)
	if err != nil {
		return c.String(http.StatusInternalServerError, err.Error())
	}
	if indices == nil {
		indices = []string{}
	}

	return c.JSON(http.StatusOK, indices)
}
