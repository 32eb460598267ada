package server

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/lexhelper/counsel/internal/store"
)

// TemplatesHandler manages reusable research prompt templates.
type TemplatesHandler struct {
	Store *store.Store
}

type templateRequest struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	Category       string `json:"category"`
	PromptTemplate string `json:"prompt_template"`
}

func (h *TemplatesHandler) Register(g *echo.Group, secret []byte) {
	g.Use(authMiddleware(secret))
	g.GET("", h.list)
	g.POST("", h.create)
	g.GET("/categories", h.categories)
	g.GET("/:id", h.get)
	g.PUT("/:id", h.update)
	g.DELETE("/:id", h.remove)
}

func (h *TemplatesHandler) list(c echo.Context) error {
	templates, err := h.Store.ListTemplates(c.Request().Context(), c.QueryParam("category"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if templates == nil {
		templates = []store.ResearchTemplate{}
	}
	return c.JSON(http.StatusOK, templates)
}

func (h *TemplatesHandler) create(c echo.Context) error {
	var req templateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.PromptTemplate) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name and prompt_template required")
	}
	if strings.TrimSpace(req.Category) == "" {
		req.Category = "general"
	}
	created, err := h.Store.CreateTemplate(c.Request().Context(), store.ResearchTemplate{
		Name:           req.Name,
		Description:    req.Description,
		Category:       req.Category,
		PromptTemplate: req.PromptTemplate,
		CreatedBy:      currentUserID(c),
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *TemplatesHandler) categories(c echo.Context) error {
	cats, err := h.Store.ListTemplateCategories(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if cats == nil {
		cats = []string{}
	}
	return c.JSON(http.StatusOK, cats)
}

func (h *TemplatesHandler) get(c echo.Context) error {
	t, found, err := h.Store.GetTemplate(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !found {
		return echo.NewHTTPError(http.StatusNotFound, "template not found")
	}
	return c.JSON(http.StatusOK, t)
}

func (h *TemplatesHandler) update(c echo.Context) error {
	var req templateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	err := h.Store.UpdateTemplate(c.Request().Context(), store.ResearchTemplate{
		ID:             c.Param("id"),
		Name:           req.Name,
		Description:    req.Description,
		Category:       req.Category,
		PromptTemplate: req.PromptTemplate,
	})
	if errors.Is(err, sql.ErrNoRows) {
		return echo.NewHTTPError(http.StatusNotFound, "template not found or not editable")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusOK)
}

func (h *TemplatesHandler) remove(c echo.Context) error {
	err := h.Store.DeleteTemplate(c.Request().Context(), c.Param("id"))
	if errors.Is(err, sql.ErrNoRows) {
		return echo.NewHTTPError(http.StatusNotFound, "template not found or not deletable")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusOK)
}
