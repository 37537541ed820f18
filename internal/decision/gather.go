package decision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/nfrund/hexarena/internal/domain"
	"github.com/nfrund/hexarena/internal/epoch"
)

// ErrTimeout is recorded for a provider that missed its deadline.
var ErrTimeout = errors.New("decision timed out")

// Gatherer fans decision requests out to a provider.
type Gatherer struct {
	Provider Provider
	Timeout  time.Duration
	Tracer   trace.Tracer
	Logger   *slog.Logger
}

// Gather asks for every request concurrently. Each call gets its own
// deadline; failures, panics and timeouts are recorded in the returned
// decision rather than failing the batch. The result always has one entry
// per request.
func (g *Gatherer) Gather(ctx context.Context, reqs []Request) map[string]epoch.Decision {
	if g.Tracer != nil {
		var span trace.Span
		ctx, span = g.Tracer.Start(ctx, "battle.gather_decisions", trace.WithAttributes(
			attribute.Int("decision.requests", len(reqs)),
		))
		defer span.End()
	}
	logger := g.Logger
	if logger == nil {
		logger = slog.Default()
	}

	results := make([]epoch.Decision, len(reqs))
	var eg errgroup.Group
	for i, req := range reqs {
		eg.Go(func() error {
			results[i] = g.decide(ctx, req)
			if results[i].Err != nil {
				logger.Warn("Decision failed, substituting default",
					"battle_id", req.BattleID, "epoch", req.Epoch,
					"participant_id", req.Self.ID, "error", results[i].Err)
			}
			return nil
		})
	}
	_ = eg.Wait()

	out := make(map[string]epoch.Decision, len(reqs))
	for i, req := range reqs {
		out[req.Self.ID] = results[i]
	}
	return out
}

func (g *Gatherer) decide(ctx context.Context, req Request) epoch.Decision {
	ctx, cancel := context.WithTimeout(ctx, g.Timeout)
	defer cancel()

	type reply struct {
		action domain.EpochAction
		err    error
	}
	done := make(chan reply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- reply{err: fmt.Errorf("decision provider panicked: %v", r)}
			}
		}()
		a, err := g.Provider.Decide(ctx, req)
		done <- reply{a, err}
	}()

	select {
	case r := <-done:
		if r.err == nil && ctx.Err() != nil {
			// Answered, but only after the deadline.
			return epoch.Decision{Err: ErrTimeout}
		}
		return epoch.Decision{Action: r.action, Err: r.err}
	case <-ctx.Done():
		return epoch.Decision{Err: ErrTimeout}
	}
}
