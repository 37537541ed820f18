package battle

import (
	"context"
	"errors"
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"

	"github.com/nfrund/hexarena/internal/domain"
	"github.com/nfrund/hexarena/internal/middleware"
	"github.com/nfrund/hexarena/internal/session"
	"github.com/nfrund/hexarena/internal/sponsor"
)

// ErrorResponse is the standard format for API error responses.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SponsorRequest buys a one-epoch boost for a participant. It applies to the
// next epoch the battle resolves.
type SponsorRequest struct {
	ParticipantID string `json:"participant_id"`
	HPBoost       int    `json:"hp_boost"`
	FreeDefend    bool   `json:"free_defend"`
	AttackBoost   int    `json:"attack_boost"`
}

// SponsorResponse reports which epoch a sponsorship was queued for.
type SponsorResponse struct {
	BattleID      string `json:"battle_id"`
	ParticipantID string `json:"participant_id"`
	Epoch         int    `json:"epoch"`
}

// CancelRequest optionally explains a cancellation.
type CancelRequest struct {
	Reason string `json:"reason"`
}

// Handler is the thin HTTP adapter over the session registry.
type Handler struct {
	battles       *session.Registry
	sponsors      *sponsor.Queue
	defaultAssets []string
}

// NewHandler creates a Handler. Lobbies created without assets use
// defaultAssets.
func NewHandler(battles *session.Registry, sponsors *sponsor.Queue, defaultAssets ...string) *Handler {
	return &Handler{battles: battles, sponsors: sponsors, defaultAssets: defaultAssets}
}

// Create handles POST /battles.
func (h *Handler) Create(c echo.Context) error {
	var cfg domain.LobbyConfig
	if err := c.Bind(&cfg); err != nil {
		return badRequest(c, err)
	}
	if len(cfg.Assets) == 0 {
		cfg.Assets = slices.Clone(h.defaultAssets)
	}
	s, err := h.battles.CreateLobby(c.Request().Context(), cfg)
	if err != nil {
		return writeError(c, err)
	}
	middleware.FromContext(c.Request().Context()).Info("Battle created", "battle_id", s.ID())
	return c.JSON(http.StatusCreated, s.State())
}

// List handles GET /battles.
func (h *Handler) List(c echo.Context) error {
	out, err := h.battles.List(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// Get handles GET /battles/:id.
func (h *Handler) Get(c echo.Context) error {
	s, err := h.battles.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, s.State())
}

// Phase handles GET /battles/:id/phase.
func (h *Handler) Phase(c echo.Context) error {
	s, err := h.battles.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, s.Phase())
}

// Join handles POST /battles/:id/join.
func (h *Handler) Join(c echo.Context) error {
	var req domain.JoinRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}
	ctx := c.Request().Context()
	s, err := h.battles.Get(ctx, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	p, err := s.Join(ctx, req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, p)
}

// Start handles POST /battles/:id/start.
func (h *Handler) Start(c echo.Context) error {
	ctx := c.Request().Context()
	s, err := h.battles.Get(ctx, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	if err := s.StartImmediate(ctx); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, s.State())
}

// Cancel handles POST /battles/:id/cancel.
func (h *Handler) Cancel(c echo.Context) error {
	var req CancelRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return badRequest(c, err)
		}
	}
	ctx := c.Request().Context()
	s, err := h.battles.Get(ctx, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	if err := s.Cancel(ctx, req.Reason); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, s.State())
}

// Sponsor handles POST /battles/:id/sponsor.
func (h *Handler) Sponsor(c echo.Context) error {
	var req SponsorRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}
	ctx := c.Request().Context()
	s, err := h.battles.Get(ctx, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	snap := s.State()
	if snap.Status.Terminal() {
		return writeError(c, domain.NewStateTransitionError("sponsor", snap.Status, ""))
	}
	alive := slices.ContainsFunc(snap.State.Participants, func(p domain.Participant) bool {
		return p.ID == req.ParticipantID && p.Alive
	})
	if !alive {
		return writeError(c, &domain.ValidationError{Field: "participant_id", Reason: "no living participant " + req.ParticipantID})
	}

	next := snap.State.Epoch + 1
	if err := h.sponsors.Add(s.ID(), next, req.ParticipantID, domain.SponsorEffect{
		HPBoost:     req.HPBoost,
		FreeDefend:  req.FreeDefend,
		AttackBoost: req.AttackBoost,
	}); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusAccepted, SponsorResponse{BattleID: s.ID(), ParticipantID: req.ParticipantID, Epoch: next})
}

func badRequest(c echo.Context, err error) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{Code: "bad_request", Message: err.Error()})
}

// writeError maps domain errors onto status codes.
func writeError(c echo.Context, err error) error {
	var (
		validation *domain.ValidationError
		transition *domain.StateTransitionError
	)
	switch {
	case errors.As(err, &validation):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Code: "invalid_input", Message: err.Error()})
	case errors.As(err, &transition):
		return c.JSON(http.StatusConflict, ErrorResponse{Code: "invalid_transition", Message: err.Error()})
	case errors.Is(err, domain.ErrAlreadyExists):
		return c.JSON(http.StatusConflict, ErrorResponse{Code: "already_exists", Message: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		return c.JSON(http.StatusNotFound, ErrorResponse{Code: "not_found", Message: err.Error()})
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, session.ErrClosed):
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Code: "unavailable", Message: err.Error()})
	}
	middleware.FromContext(c.Request().Context()).Error("Battle request failed", "error", err)
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Code: "internal", Message: "internal error"})
}
