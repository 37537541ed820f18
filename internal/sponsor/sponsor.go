// Package sponsor supplies the per-epoch boosts spectators buy for
// participants.
package sponsor

import (
	"context"
	"maps"
	"sync"

	"github.com/nfrund/hexarena/internal/domain"
)

// Source returns the effects to apply in one epoch, keyed by participant id.
// EffectsFor may be called again for the same epoch until Ack confirms the
// epoch was committed.
type Source interface {
	EffectsFor(ctx context.Context, battleID string, epoch int) (map[string]domain.SponsorEffect, error)
	Ack(ctx context.Context, battleID string, epoch int) error
}

// MaxHPBoost caps a single sponsor heal.
const MaxHPBoost = 200

type key struct {
	battleID string
	epoch    int
}

// Queue is an in-memory Source. Effects for the same participant and epoch
// are merged; Ack drains an epoch once it has been committed.
type Queue struct {
	mu      sync.Mutex
	pending map[key]map[string]domain.SponsorEffect
}

// NewQueue creates an empty Queue.
func NewQueue() *Queue {
	return &Queue{pending: make(map[key]map[string]domain.SponsorEffect)}
}

// Add schedules an effect for a participant in a given epoch.
func (q *Queue) Add(battleID string, epoch int, participantID string, eff domain.SponsorEffect) error {
	switch {
	case battleID == "" || participantID == "":
		return &domain.ValidationError{Field: "participant_id", Reason: "required"}
	case epoch < 1:
		return &domain.ValidationError{Field: "epoch", Reason: "must be at least 1"}
	case eff.HPBoost < 0 || eff.HPBoost > MaxHPBoost:
		return &domain.ValidationError{Field: "hp_boost", Reason: "must be between 0 and 200"}
	case eff.AttackBoost < 0:
		return &domain.ValidationError{Field: "attack_boost", Reason: "must not be negative"}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	k := key{battleID, epoch}
	byID := q.pending[k]
	if byID == nil {
		byID = make(map[string]domain.SponsorEffect)
		q.pending[k] = byID
	}
	cur := byID[participantID]
	cur.HPBoost = min(cur.HPBoost+eff.HPBoost, MaxHPBoost)
	cur.AttackBoost += eff.AttackBoost
	cur.FreeDefend = cur.FreeDefend || eff.FreeDefend
	byID[participantID] = cur
	return nil
}

// EffectsFor implements Source. It returns a copy and leaves the effects
// queued.
func (q *Queue) EffectsFor(ctx context.Context, battleID string, epoch int) (map[string]domain.SponsorEffect, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return maps.Clone(q.pending[key{battleID, epoch}]), nil
}

// Ack implements Source. It drops the epoch's effects along with any left
// for earlier epochs, which can never apply.
func (q *Queue) Ack(ctx context.Context, battleID string, epoch int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for k := range q.pending {
		if k.battleID == battleID && k.epoch <= epoch {
			delete(q.pending, k)
		}
	}
	return nil
}

// Pending reports how many participant effects are waiting for a battle.
func (q *Queue) Pending(battleID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for k, byID := range q.pending {
		if k.battleID == battleID {
			n += len(byID)
		}
	}
	return n
}

var _ Source = (*Queue)(nil)
