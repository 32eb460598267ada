package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/lexhelper/counsel/config"
	"github.com/lexhelper/counsel/internal/agent/core"
	"github.com/lexhelper/counsel/internal/agent/telemetry"
	"github.com/lexhelper/counsel/internal/store"
)

// ResearchHandler runs the research pipeline for a chat session, either
// as a single JSON response or as an SSE stream of progress events
// followed by the final result.
type ResearchHandler struct {
	Config    *config.Config
	Store     *store.Store
	Index     *store.MessageIndex
	Invoker   core.Invoker
	Telemetry *telemetry.Telemetry
}

type researchRequest struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
	Stream    bool   `json:"stream"`
}

func (h *ResearchHandler) Register(g *echo.Group, secret []byte) {
	g.Use(authMiddleware(secret))
	g.POST("", h.research)
}

func (h *ResearchHandler) research(c echo.Context) error {
	var req researchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query required")
	}
	if strings.TrimSpace(req.SessionID) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id required")
	}

	ctx := c.Request().Context()
	_, found, err := h.Store.GetSession(ctx, req.SessionID, currentUserID(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !found {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}

	if req.Stream {
		if !h.Config.Server.StreamEnabled {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "streaming disabled")
		}
		return h.streamResearch(c, req)
	}

	mgr := core.NewManager(h.Config, h.Invoker, h.Telemetry, nil)
	result, err := mgr.Run(ctx, req.Query)
	if err != nil {
		return researchHTTPError(err)
	}
	if err := h.persist(ctx, req.SessionID, req.Query, result); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

func (h *ResearchHandler) streamResearch(c echo.Context, req researchRequest) error {
	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "streaming unsupported")
	}

	ctx := c.Request().Context()
	events := make(chan core.ProgressEvent, 64)
	progress := func(ev core.ProgressEvent) {
		select {
		case events <- ev:
		default: // never block the pipeline on a slow client
		}
	}

	type runOutcome struct {
		result core.ResearchResult
		err    error
	}
	done := make(chan runOutcome, 1)
	go func() {
		mgr := core.NewManager(h.Config, h.Invoker, h.Telemetry, progress)
		result, err := mgr.Run(ctx, req.Query)
		done <- runOutcome{result: result, err: err}
	}()

	writeEvent := func(name string, payload interface{}) error {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		if _, err := resp.Write([]byte("event: " + name + "\n")); err != nil {
			return err
		}
		if _, err := resp.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			// Client went away; the pipeline sees the same context and
			// unwinds on its own.
			return nil
		case ev := <-events:
			if err := writeEvent("progress", ev); err != nil {
				return nil
			}
		case outcome := <-done:
			// Drain any progress emitted before completion.
			for {
				select {
				case ev := <-events:
					_ = writeEvent("progress", ev)
					continue
				default:
				}
				break
			}
			if outcome.err != nil {
				stage, _ := core.FailedStage(outcome.err)
				_ = writeEvent("error", map[string]string{"stage": stage, "error": outcome.err.Error()})
				return nil
			}
			if err := h.persist(context.WithoutCancel(ctx), req.SessionID, req.Query, outcome.result); err != nil {
				_ = writeEvent("error", map[string]string{"error": err.Error()})
				return nil
			}
			_ = writeEvent("result", outcome.result)
			return nil
		}
	}
}

// persist records the exchange in the session and indexes both messages
// for full-text search.
func (h *ResearchHandler) persist(ctx context.Context, sessionID, query string, result core.ResearchResult) error {
	userMsg, err := h.Store.AppendMessage(ctx, sessionID, store.MessageRoleUser, query, nil)
	if err != nil {
		return err
	}
	meta, err := json.Marshal(result)
	if err != nil {
		return err
	}
	asstMsg, err := h.Store.AppendMessage(ctx, sessionID, store.MessageRoleAssistant,
		result.Report.MarkdownReport, meta)
	if err != nil {
		return err
	}
	if h.Index != nil {
		if err := h.Index.IndexMessage(userMsg); err != nil {
			return err
		}
		if err := h.Index.IndexMessage(asstMsg); err != nil {
			return err
		}
	}
	return nil
}

func researchHTTPError(err error) error {
	if stage, ok := core.FailedStage(err); ok {
		return echo.NewHTTPError(http.StatusBadGateway,
			map[string]string{"stage": stage, "error": err.Error()})
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
