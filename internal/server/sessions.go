package server

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/lexhelper/counsel/internal/store"
)

// SessionsHandler manages chat sessions and their message history.
type SessionsHandler struct {
	Store *store.Store
	Index *store.MessageIndex
}

type sessionCreateRequest struct {
	Title string `json:"title"`
}

type sessionRenameRequest struct {
	Title string `json:"title"`
}

func (h *SessionsHandler) Register(g *echo.Group, secret []byte) {
	g.Use(authMiddleware(secret))
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.PUT("/:id", h.rename)
	g.PUT("/:id/archive", h.archive)
	g.DELETE("/:id", h.remove)
	g.GET("/:id/messages", h.messages)
}

func (h *SessionsHandler) create(c echo.Context) error {
	var req sessionCreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "New Research Session"
	}
	sess, err := h.Store.CreateSession(c.Request().Context(), currentUserID(c), title)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, sess)
}

func (h *SessionsHandler) list(c echo.Context) error {
	includeArchived := c.QueryParam("include_archived") == "true"
	sessions, err := h.Store.ListSessions(c.Request().Context(), currentUserID(c), includeArchived)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if sessions == nil {
		sessions = []store.ChatSession{}
	}
	return c.JSON(http.StatusOK, sessions)
}

func (h *SessionsHandler) get(c echo.Context) error {
	sess, found, err := h.Store.GetSession(c.Request().Context(), c.Param("id"), currentUserID(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !found {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *SessionsHandler) rename(c echo.Context) error {
	var req sessionRenameRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Title) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "title required")
	}
	err := h.Store.RenameSession(c.Request().Context(), c.Param("id"), currentUserID(c), req.Title)
	if errors.Is(err, sql.ErrNoRows) {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusOK)
}

type sessionArchiveRequest struct {
	Archived bool `json:"archived"`
}

func (h *SessionsHandler) archive(c echo.Context) error {
	var req sessionArchiveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	err := h.Store.SetSessionArchived(c.Request().Context(), c.Param("id"), currentUserID(c), req.Archived)
	if errors.Is(err, sql.ErrNoRows) {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusOK)
}

func (h *SessionsHandler) remove(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	// Collect message ids first so the search index stays consistent
	// with the cascade delete.
	msgs, err := h.Store.ListMessages(ctx, id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	err = h.Store.DeleteSession(ctx, id, currentUserID(c))
	if errors.Is(err, sql.ErrNoRows) {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if h.Index != nil && len(msgs) > 0 {
		ids := make([]string, len(msgs))
		for i, m := range msgs {
			ids[i] = m.ID
		}
		_ = h.Index.DeleteMessages(ids)
	}
	return c.NoContent(http.StatusOK)
}

func (h *SessionsHandler) messages(c echo.Context) error {
	ctx := c.Request().Context()
	_, found, err := h.Store.GetSession(ctx, c.Param("id"), currentUserID(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !found {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	msgs, err := h.Store.ListMessages(ctx, c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if msgs == nil {
		msgs = []store.ChatMessage{}
	}
	return c.JSON(http.StatusOK, msgs)
}

// SearchHandler serves full-text search over a user's chat messages.
type SearchHandler struct {
	Index *store.MessageIndex
	Store *store.Store
}

func (h *SearchHandler) Register(g *echo.Group, secret []byte) {
	g.Use(authMiddleware(secret))
	g.GET("", h.search)
}

func (h *SearchHandler) search(c echo.Context) error {
	q := strings.TrimSpace(c.QueryParam("q"))
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q required")
	}
	hits, err := h.Index.SearchMessages(q, 20)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	// Restrict hits to sessions the caller owns.
	ctx := c.Request().Context()
	userID := currentUserID(c)
	out := make([]store.MessageHit, 0, len(hits))
	for _, hit := range hits {
		if hit.SessionID == "" {
			continue
		}
		if _, found, err := h.Store.GetSession(ctx, hit.SessionID, userID); err == nil && found {
			out = append(out, hit)
		}
	}
	return c.JSON(http.StatusOK, out)
}
