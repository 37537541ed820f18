package session

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/nfrund/hexarena/internal/broadcast"
	"github.com/nfrund/hexarena/internal/decision"
	"github.com/nfrund/hexarena/internal/market"
	"github.com/nfrund/hexarena/internal/sponsor"
	"github.com/nfrund/hexarena/internal/storage"
	"github.com/nfrund/hexarena/internal/telemetry"
)

// Options tunes battle timing.
type Options struct {
	Countdown       time.Duration
	EpochInterval   time.Duration
	DecisionTimeout time.Duration
	RetryDelay      time.Duration
	HookTimeout     time.Duration

	// Manual disables timers; the battle only advances through Tick.
	Manual bool

	Now func() time.Time
}

// DefaultOptions returns production timings.
func DefaultOptions() Options {
	return Options{
		Countdown:       30 * time.Second,
		EpochInterval:   10 * time.Second,
		DecisionTimeout: 3 * time.Second,
		RetryDelay:      2 * time.Second,
		HookTimeout:     10 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Countdown <= 0 {
		o.Countdown = d.Countdown
	}
	if o.EpochInterval <= 0 {
		o.EpochInterval = d.EpochInterval
	}
	if o.DecisionTimeout <= 0 {
		o.DecisionTimeout = d.DecisionTimeout
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = d.RetryDelay
	}
	if o.HookTimeout <= 0 {
		o.HookTimeout = d.HookTimeout
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Completion summarises a finished battle for downstream hooks.
type Completion struct {
	BattleID     string               `json:"battle_id"`
	Winner       string               `json:"winner,omitempty"`
	Epoch        int                  `json:"epoch"`
	Timeout      bool                 `json:"timeout"`
	Participants []ParticipantSummary `json:"participants"`
}

// ParticipantSummary is one line of a battle's final standings.
type ParticipantSummary struct {
	ID             string `json:"id"`
	NumericID      int    `json:"numeric_id"`
	Name           string `json:"name"`
	Archetype      string `json:"archetype"`
	HP             int    `json:"hp"`
	Alive          bool   `json:"alive"`
	Kills          int    `json:"kills"`
	EpochsSurvived int    `json:"epochs_survived"`
}

// CompletionHook runs once after a battle commits COMPLETED. Failures are
// logged and never affect the battle.
type CompletionHook func(ctx context.Context, c Completion) error

// Deps are the collaborators a battle talks to. Nil members get in-process
// defaults.
type Deps struct {
	Store     storage.SnapshotStore
	Decisions decision.Provider
	Market    market.Feed
	Sponsors  sponsor.Source
	// Observers are attached to every battle when its actor starts.
	Observers func(battleID string) []broadcast.Observer
	Hooks     []CompletionHook
	Broadcast broadcast.Options
	Tracer    trace.Tracer
	Logger    *slog.Logger
}

func (d Deps) withDefaults(seed uint64) Deps {
	if d.Store == nil {
		d.Store = storage.NewMemoryStore()
	}
	if d.Decisions == nil {
		d.Decisions = decision.NewBotProvider(seed)
	}
	if d.Market == nil {
		d.Market = market.NewRandomWalkFeed(seed, 2)
	}
	if d.Tracer == nil {
		d.Tracer = telemetry.Noop()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Broadcast.Logger == nil {
		d.Broadcast.Logger = d.Logger
	}
	return d
}
