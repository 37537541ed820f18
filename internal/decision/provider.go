// Package decision obtains each participant's action for an epoch.
package decision

import (
	"context"

	"github.com/nfrund/hexarena/internal/domain"
	"github.com/nfrund/hexarena/internal/hexgrid"
	"github.com/nfrund/hexarena/internal/market"
	"github.com/nfrund/hexarena/internal/phase"
)

// Request is what a provider sees when deciding for one participant.
// Everything in it is a copy; providers may keep it.
type Request struct {
	BattleID   string
	Epoch      int
	Phase      phase.Phase
	HazardRing int
	Self       domain.Participant
	// Others are the other living participants.
	Others []domain.Participant
	Tiles  []hexgrid.Tile
	Market market.Snapshot
	Assets []string
}

// Provider returns one participant's action for an epoch. Implementations
// must honour ctx; Gather bounds them regardless.
type Provider interface {
	Decide(ctx context.Context, req Request) (domain.EpochAction, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, req Request) (domain.EpochAction, error)

// Decide implements Provider.
func (f ProviderFunc) Decide(ctx context.Context, req Request) (domain.EpochAction, error) {
	return f(ctx, req)
}
