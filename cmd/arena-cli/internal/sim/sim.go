// Package sim runs a whole battle in memory for the CLI.
package sim

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/nfrund/hexarena/internal/broadcast"
	"github.com/nfrund/hexarena/internal/decision"
	"github.com/nfrund/hexarena/internal/decision/scripts"
	"github.com/nfrund/hexarena/internal/domain"
	"github.com/nfrund/hexarena/internal/session"
)

// Options configures a simulated battle.
type Options struct {
	Players int
	Seed    uint64
	Assets  []string
	Script  string
	Format  string
	Logger  *slog.Logger
}

// Printer writes one event.
type Printer func(w io.Writer, ev broadcast.Event) error

// eventBuffer holds a whole battle's events.
const eventBuffer = 4096

var names = []string{"Ada", "Bjorn", "Cleo", "Dmitri", "Esme", "Farid", "Greta", "Hiro"}

// Run plays a battle from lobby to completion, printing every event in
// order, and returns the final snapshot.
func Run(ctx context.Context, opts Options, w io.Writer, printer Printer) (session.Snapshot, error) {
	if opts.Players < domain.MinToStart || opts.Players > domain.MaxParticipants {
		return session.Snapshot{}, fmt.Errorf("players must be between %d and %d", domain.MinToStart, domain.MaxParticipants)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	decide, err := provider(opts.Script)
	if err != nil {
		return session.Snapshot{}, err
	}

	s, err := session.New(ctx, domain.LobbyConfig{Assets: opts.Assets, Seed: opts.Seed},
		session.Options{Manual: true},
		session.Deps{
			Decisions: decide,
			Logger:    logger,
			Broadcast: broadcast.Options{QueueSize: eventBuffer, Logger: logger},
		})
	if err != nil {
		return session.Snapshot{}, err
	}
	defer s.Close()

	obs := newCollector()
	if err := s.Attach(ctx, obs); err != nil {
		return session.Snapshot{}, err
	}
	for i := 0; i < opts.Players; i++ {
		if _, err := s.Join(ctx, domain.JoinRequest{
			Name:      names[i],
			Archetype: domain.Archetypes[i%len(domain.Archetypes)],
		}); err != nil {
			return session.Snapshot{}, err
		}
	}
	if err := s.StartImmediate(ctx); err != nil {
		return session.Snapshot{}, err
	}
	for !s.State().Status.Terminal() {
		if err := s.Tick(ctx); err != nil {
			return session.Snapshot{}, err
		}
	}

	final := s.State()
	for ev := range obs.events {
		if err := printer(w, ev); err != nil {
			return final, err
		}
		if ev.Seq >= final.Seq {
			break
		}
	}
	return final, nil
}

func provider(script string) (decision.Provider, error) {
	switch {
	case script == "":
		return nil, nil
	case strings.HasPrefix(script, "bundled:"):
		name := strings.TrimPrefix(script, "bundled:")
		src, ok := scripts.Bundled()[name]
		if !ok {
			return nil, fmt.Errorf("no bundled decision script %q", name)
		}
		return decision.NewScriptProvider(name, []byte(src))
	default:
		return decision.NewScriptProviderFromFile(script)
	}
}

// collector buffers every event for the printer.
type collector struct {
	events chan broadcast.Event
}

func newCollector() *collector {
	return &collector{events: make(chan broadcast.Event, eventBuffer)}
}

func (c *collector) ID() string { return "cli" }

func (c *collector) Send(ctx context.Context, ev broadcast.Event) error {
	select {
	case c.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
