// Package battle exposes battle sessions over HTTP and WebSocket.
package battle

import (
	"context"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/samber/do/v2"

	"github.com/nfrund/hexarena/internal/config"
	"github.com/nfrund/hexarena/internal/middleware"
	"github.com/nfrund/hexarena/internal/module"
	"github.com/nfrund/hexarena/internal/session"
	"github.com/nfrund/hexarena/internal/sponsor"
	"github.com/nfrund/hexarena/internal/websocket"
)

// BattleModule implements the module.Module interface.
type BattleModule struct {
	module.BaseModule
	battles *session.Registry
}

// New creates a new instance of the BattleModule.
func New() *BattleModule {
	return &BattleModule{}
}

// Name returns the unique name for the module.
func (m *BattleModule) Name() string {
	return "battle"
}

// Register provides the HTTP handler to the injector.
func (m *BattleModule) Register(i do.Injector) error {
	do.Provide(i, func(i do.Injector) (*Handler, error) {
		cfg := do.MustInvoke[config.Provider](i)
		return NewHandler(do.MustInvoke[*session.Registry](i), do.MustInvoke[*sponsor.Queue](i), cfg.GetMarketAssets()...), nil
	})
	return nil
}

// Boot recovers unfinished battles and mounts the routes.
func (m *BattleModule) Boot(ctx context.Context, g *echo.Group, i do.Injector) error {
	m.battles = do.MustInvoke[*session.Registry](i)
	cfg := do.MustInvoke[config.Provider](i)

	n, err := m.battles.Recover(ctx)
	if err != nil {
		// Battles that fail to load stay on disk; the rest keep running.
		slog.Error("Some battles could not be recovered", "error", err)
	}
	slog.Info("Booting BattleModule", "recovered", n)

	h := do.MustInvoke[*Handler](i)
	limited := middleware.RateLimiter(cfg.GetRateLimit())

	g.GET("/battles", h.List)
	g.POST("/battles", h.Create, limited)
	g.GET("/battles/:id", h.Get)
	g.GET("/battles/:id/phase", h.Phase)
	g.POST("/battles/:id/join", h.Join, limited)
	g.POST("/battles/:id/start", h.Start)
	g.POST("/battles/:id/cancel", h.Cancel)
	g.POST("/battles/:id/sponsor", h.Sponsor, limited)

	ws := websocket.NewHandler(func(ctx context.Context, id string) (websocket.Stream, error) {
		s, err := m.battles.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return s, nil
	}, cfg.GetAllowedOrigins()...)
	ws.Register(g)
	return nil
}

// Shutdown stops every running battle actor. Their snapshots stay in the
// store and are recovered on the next boot.
func (m *BattleModule) Shutdown(ctx context.Context) error {
	if m.battles != nil {
		m.battles.Close()
	}
	return nil
}
