package routes

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/graphmesh/graphmesh/internal/server/middleware"
	"github.com/graphmesh/graphmesh/pkg/graph"
)

type searchRequest struct {
	Query string `json:"query" validate:"required"`
}

type searchResponse struct {
	Answer string `json:"answer"`
}

func SearchGraphHandler(c echo.Context) error {
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

	answer, err := a.Engine.SearchGraph(ctx, index, req.Query)
	if err != nil {
		if errors.Is(err, graph.ErrInvalidInput) {
			return c.String(http.StatusBadRequest, err.Error())
		}
		return c.String(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, searchResponse{Answer: answer})
}

func SearchGraphCommunityHandler(c echo.Context) error {
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

	answer, err := a.Engine.SearchGraphCommunity(ctx, index, req.Query)
	if err != nil {
		if errors.Is(err, graph.ErrInvalidInput) {
			return c.String(http.StatusBadRequest, err.Error())
		}
		return c.String(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, searchResponse{Answer: answer})
}
