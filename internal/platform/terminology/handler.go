package terminology

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handler exposes the registry so form authors can check bindings.
type Handler struct {
	registry *Registry
}

func NewHandler(registry *Registry) *Handler {
	return &Handler{registry: registry}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/valuesets", h.List)
	g.GET("/valuesets/:slug/validate-code", h.ValidateCode)
}

func (h *Handler) List(c echo.Context) error {
	sets := h.registry.List()
	out := make([]map[string]interface{}, 0, len(sets))
	for _, vs := range sets {
		out = append(out, map[string]interface{}{
			"slug":   vs.Slug,
			"name":   vs.Name,
			"status": vs.Status,
		})
	}
	return c.JSON(http.StatusOK, out)
}

// ValidateCode handles GET /valuesets/:slug/validate-code?code=&system=.
func (h *Handler) ValidateCode(c echo.Context) error {
	slug := c.Param("slug")
	code := c.QueryParam("code")
	if code == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "parameter 'code' is required")
	}
	if !h.registry.Has(slug) {
		return echo.NewHTTPError(http.StatusNotFound, "value set not found")
	}
	return c.JSON(http.StatusOK, h.registry.ValidateCode(slug, c.QueryParam("system"), code))
}
