package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/golang-migrate/migrate/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/lexhelper/counsel/config"
	"github.com/lexhelper/counsel/internal/agent/core"
	"github.com/lexhelper/counsel/internal/agent/telemetry"
	"github.com/lexhelper/counsel/internal/store"
)

// Run starts the HTTP API: auth, chat sessions, research templates and
// the research pipeline with optional SSE progress streaming.
func Run(cfg *config.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	if err := cfg.Storage.Postgres.Validate(); err != nil {
		return err
	}
	dsn := cfg.Storage.Postgres.DSN()
	if err := migrationOutcome(store.Migrate(cfg.Server.MigrationsSource, dsn, "up", 0)); err != nil {
		return err
	}

	ctx := context.Background()
	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		return err
	}

	indexPath := cfg.Storage.Search.IndexPath
	if indexPath == "" {
		indexPath = "messages.bleve"
	}
	idx, err := store.OpenMessageIndex(indexPath)
	if err != nil {
		return err
	}

	tel := telemetry.New(cfg.Telemetry, nil)
	e.GET("/metrics", echo.WrapHandler(tel.MetricsHandler()))

	invoker, err := core.NewOpenAIInvoker(cfg, tel)
	if err != nil {
		return err
	}

	secret := cfg.Server.JWTSecret
	if secret == "" {
		return fmt.Errorf("jwt secret not configured (server.jwt_secret)")
	}

	api := e.Group("/api")

	auth := &AuthHandler{Store: st, Secret: []byte(secret)}
	auth.Register(api.Group("/auth"))

	sh := &SessionsHandler{Store: st, Index: idx}
	sh.Register(api.Group("/sessions"), auth.Secret)

	th := &TemplatesHandler{Store: st}
	th.Register(api.Group("/templates"), auth.Secret)

	rh := &ResearchHandler{Config: cfg, Store: st, Index: idx, Invoker: invoker, Telemetry: tel}
	rh.Register(api.Group("/research"), auth.Secret)

	srh := &SearchHandler{Index: idx, Store: st}
	srh.Register(api.Group("/search"), auth.Secret)

	addr := cfg.Server.Address
	if addr == "" {
		addr = ":8080"
	}
	return e.Start(addr)
}

// migrationOutcome decides whether a startup migration result is fatal.
// An already-current schema reports migrate.ErrNoChange; anything else
// means the server would run against a stale schema, so it refuses to start.
func migrationOutcome(err error) error {
	if err == nil || errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return fmt.Errorf("migrations: %w", err)
}
