package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/graphmesh/graphmesh/internal/server/middleware"
)

// typePalette is cycled through in first-seen type order so colours are
// stable within one response.
var typePalette = []string{
	"#4E79A7", "#F28E2B", "#E15759", "#76B7B2", "#59A14F",
	"#EDC948", "#B07AA1", "#FF9DA7", "#9C755F", "#BAB0AC",
}

func GetGraphHandler(c echo.Context) error {
	type graphNode struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Type  string `json:"type"`
		Desc  string `json:"desc"`
		Color string `json:"color"`
	}

	type graphEdge struct {
		ID           string `json:"id"`
		Source       string `json:"source"`
		Target       string `json:"target"`
		Relationship string `json:"relationship"`
	}

	type graphResponse struct {
		Nodes []graphNode `json:"nodes"`
		Edges []graphEdge `json:"edges"`
	}

	ctx := c.Request().Context()
	a := c.(*middleware.AppContext).App
	index := c.Param("index")

	nodes, err := a.Store.GetNodesByIndex(ctx, index)
	if err != nil {
		return c.String(http.StatusInternalServerError, err.Error())
	}
	edges, err := a.Store.GetEdgesByIndex(ctx, index)
	if err != nil {
		return c.String(http.StatusInternalServerError, err.Error())
	}

	colorByType := map[string]string{}
	response := graphResponse{
		Nodes: make([]graphNode, 0, len(nodes)),
		Edges: make([]graphEdge, 0, len(edges)),
	}
	for _, n := range nodes {
		color, ok := colorByType[n.Type]
		if !ok {
			color = typePalette[len(colorByType)%len(typePalette)]
			colorByType[n.Type] = color
		}
		response.Nodes = append(response.Nodes, graphNode{
			ID:    n.ID,
			Name:  n.Name,
			Type:  n.Type,
			Desc:  n.Desc,
			Color: color,
		})
	}
	for _, e := range edges {
		response.Edges = append(response.Edges, graphEdge{
			ID:           e.ID,
			Source:       e.Source,
			Target:       e.Target,
			Relationship: e.Relationship,
		})
	}

	return c.JSON(http.StatusOK, response)
}
