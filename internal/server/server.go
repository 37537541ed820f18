package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/nfrund/hexarena/internal/app"
	"github.com/nfrund/hexarena/internal/config"
	"github.com/nfrund/hexarena/internal/middleware"
	"github.com/nfrund/hexarena/internal/module"
)

// Server holds the dependencies for the HTTP server.
type Server struct {
	E         *echo.Echo
	Cfg       config.Provider
	container *app.Container
	modules   []module.Module
}

// New builds the services, registers and boots every module and mounts the
// routes under /api.
func New(ctx context.Context, cfg config.Provider, modules []module.Module) (*Server, error) {
	container, err := app.New(ctx, cfg, slog.Default())
	if err != nil {
		return nil, err
	}
	s := &Server{E: echo.New(), Cfg: cfg, container: container, modules: modules}
	s.E.HideBanner = true
	s.E.Use(echomw.RequestID())
	s.E.Use(echomw.Recover())
	s.E.Use(middleware.Logger)

	for _, m := range modules {
		if err := m.Register(container.Injector); err != nil {
			_ = container.Shutdown(ctx)
			return nil, fmt.Errorf("register module %s: %w", m.Name(), err)
		}
	}
	api := s.E.Group("/api")
	for _, m := range modules {
		slog.Info("Booting module", "module", m.Name())
		if err := m.Boot(ctx, api, container.Injector); err != nil {
			_ = s.Shutdown(ctx)
			return nil, fmt.Errorf("boot module %s: %w", m.Name(), err)
		}
	}

	s.E.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})
	return s, nil
}

// Shutdown stops the HTTP listener, then the modules in reverse order and
// finally the shared services.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.E.Shutdown(ctx); err != nil {
		slog.Error("HTTP server shutdown failed", "error", err)
	}
	for n := len(s.modules) - 1; n >= 0; n-- {
		if err := s.modules[n].Shutdown(ctx); err != nil {
			slog.Error("Module shutdown failed", "module", s.modules[n].Name(), "error", err)
		}
	}
	return s.container.Shutdown(ctx)
}
