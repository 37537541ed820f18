package websocket

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/coder/websocket"
	"github.com/labstack/echo/v4"

	"github.com/nfrund/hexarena/internal/broadcast"
	"github.com/nfrund/hexarena/internal/domain"
	"github.com/nfrund/hexarena/internal/middleware"
)

var errClosed = errors.New("websocket: connection closed")

// Stream is the part of a battle session a spectator connection needs.
type Stream interface {
	Attach(ctx context.Context, obs broadcast.Observer) error
	Detach(id string)
}

// Lookup resolves a battle id to its stream.
type Lookup func(ctx context.Context, battleID string) (Stream, error)

// Handler upgrades spectator requests and keeps them attached to a battle
// until the client goes away.
type Handler struct {
	lookup         Lookup
	originPatterns []string
}

// NewHandler creates a Handler. With no origin patterns only same-origin
// requests are accepted.
func NewHandler(lookup Lookup, originPatterns ...string) *Handler {
	return &Handler{lookup: lookup, originPatterns: originPatterns}
}

// Serve is the echo handler for GET /battles/:id/ws.
func (h *Handler) Serve(c echo.Context) error {
	logger := middleware.FromContext(c.Request().Context())
	battleID := c.Param("id")

	stream, err := h.lookup(c.Request().Context(), battleID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "battle not found")
		}
		return err
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		logger.Error("Failed to upgrade connection to WebSocket", "battle_id", battleID, "error", err)
		return nil
	}

	obs := NewObserver(conn)
	// The read side is only used to notice disconnects.
	ctx := conn.CloseRead(context.Background())

	if err := stream.Attach(ctx, obs); err != nil {
		logger.Warn("Failed to attach spectator", "battle_id", battleID, "error", err)
		obs.Close(websocket.StatusTryAgainLater, "battle unavailable")
		return nil
	}
	logger.Info("Spectator attached", "battle_id", battleID, "observer", obs.ID())

	<-ctx.Done()
	stream.Detach(obs.ID())
	obs.Close(websocket.StatusNormalClosure, "")
	if err := context.Cause(ctx); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
		logger.Debug("Spectator connection ended", "battle_id", battleID, "observer", obs.ID(), "cause", err)
	}
	return nil
}

// Register mounts the stream route.
func (h *Handler) Register(g *echo.Group) {
	g.GET("/battles/:id/ws", h.Serve)
}

var _ broadcast.Observer = (*Observer)(nil)
