package decision

import (
	"cmp"
	"context"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"slices"

	"github.com/nfrund/hexarena/internal/domain"
	"github.com/nfrund/hexarena/internal/hexgrid"
	"github.com/nfrund/hexarena/internal/phase"
)

// stanceOrder fixes the iteration order over a class's stance bias.
var stanceOrder = []domain.Stance{domain.StanceAttack, domain.StanceSabotage, domain.StanceDefend, domain.StanceNone}

// BotProvider plays every participant from its class traits. Choices are
// seeded by battle, epoch and participant so a replay decides identically.
type BotProvider struct {
	Seed uint64
}

// NewBotProvider returns a bot seeded with seed.
func NewBotProvider(seed uint64) *BotProvider {
	return &BotProvider{Seed: seed}
}

func (b *BotProvider) rng(req Request) *rand.Rand {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s/%s", req.BattleID, req.Self.ID)
	return rand.New(rand.NewPCG(b.Seed^h.Sum64(), uint64(req.Epoch)))
}

// Decide implements Provider.
func (b *BotProvider) Decide(ctx context.Context, req Request) (domain.EpochAction, error) {
	if err := ctx.Err(); err != nil {
		return domain.EpochAction{}, err
	}
	if len(req.Assets) == 0 {
		return domain.EpochAction{}, fmt.Errorf("bot %s: no assets to predict", req.Self.ID)
	}
	rng := b.rng(req)
	self := req.Self
	traits := self.Archetype.Traits()

	act := domain.EpochAction{
		Prediction: domain.Prediction{
			Asset:        req.Assets[rng.IntN(len(req.Assets))],
			Direction:    domain.DirectionUp,
			StakePercent: between(rng, traits.StakeMin, traits.StakeMax, domain.MinStakePercent, domain.MaxStakePercent),
		},
		Stance: domain.StanceNone,
	}
	if rng.IntN(2) == 1 {
		act.Prediction.Direction = domain.DirectionDown
	}

	target := nearest(self, req.Others)
	if phase.CombatEnabled(req.Phase) && target != "" {
		act.Stance = pickStance(rng, traits.StanceBias)
		if act.Stance == domain.StanceAttack || act.Stance == domain.StanceSabotage {
			act.Target = target
			pct := between(rng, traits.CombatStakeMin, traits.CombatStakeMax, 1, 100)
			act.Stake = max(1, self.HP*pct/100)
		}
	}

	act.Move = chooseMove(self, req)

	// Cooldowns tick down before activation, so 1 means ready this epoch.
	if self.SkillCooldown <= 1 {
		switch traits.Skill {
		case domain.SkillBerserk:
			act.UseSkill = act.Stance == domain.StanceAttack
		case domain.SkillFortify:
			act.UseSkill = self.HP*2 < self.MaxHP || req.HazardRing > 0
		case domain.SkillSiphon:
			if phase.CombatEnabled(req.Phase) && target != "" {
				act.UseSkill, act.SkillTarget = true, target
			}
		case domain.SkillInsiderInfo:
			act.UseSkill = true
		case domain.SkillAllIn:
			act.UseSkill = rng.IntN(2) == 0
		}
	}

	act.Rationale = rationale(act)
	return act, nil
}

func between(rng *rand.Rand, lo, hi, floor, ceil int) int {
	lo, hi = max(lo, floor), min(hi, ceil)
	if hi <= lo {
		return lo
	}
	return lo + rng.IntN(hi-lo+1)
}

func pickStance(rng *rand.Rand, bias map[domain.Stance]float64) domain.Stance {
	roll := rng.Float64()
	acc := 0.0
	for _, s := range stanceOrder {
		acc += bias[s]
		if roll < acc {
			return s
		}
	}
	return domain.StanceNone
}

// nearest returns the closest other participant, ties by id.
func nearest(self domain.Participant, others []domain.Participant) string {
	if self.Position == nil {
		return ""
	}
	best, bestDist := "", 0
	for _, o := range others {
		if !o.Alive || o.Position == nil || o.ID == self.ID {
			continue
		}
		d := hexgrid.Distance(*self.Position, *o.Position)
		if best == "" || d < bestDist || (d == bestDist && o.ID < best) {
			best, bestDist = o.ID, d
		}
	}
	return best
}

// chooseMove steps inward out of the storm, otherwise onto adjacent loot.
func chooseMove(self domain.Participant, req Request) *hexgrid.Coord {
	if self.Position == nil {
		return nil
	}
	pos := *self.Position
	var free []hexgrid.Tile
	for _, t := range req.Tiles {
		if t.Occupant == "" && hexgrid.Adjacent(pos, t.Coord) {
			free = append(free, t)
		}
	}
	slices.SortFunc(free, func(a, b hexgrid.Tile) int {
		if a.Ring != b.Ring {
			return a.Ring - b.Ring
		}
		if d := len(b.Items) - len(a.Items); d != 0 {
			return d
		}
		return cmp.Compare(a.Coord.String(), b.Coord.String())
	})

	if hexgrid.InStorm(pos, req.HazardRing) {
		for _, t := range free {
			if t.Ring < pos.Ring() {
				c := t.Coord
				return &c
			}
		}
		return nil
	}
	for _, t := range free {
		if len(t.Items) > 0 && !hexgrid.InStorm(t.Coord, req.HazardRing) && !onlyTraps(t.Items) {
			c := t.Coord
			return &c
		}
	}
	return nil
}

func onlyTraps(items []hexgrid.Item) bool {
	for _, it := range items {
		if it.Kind != hexgrid.ItemTrap {
			return false
		}
	}
	return true
}

func rationale(a domain.EpochAction) string {
	s := fmt.Sprintf("%s %s %d%%", a.Prediction.Asset, a.Prediction.Direction, a.Prediction.StakePercent)
	if a.Target != "" {
		s += fmt.Sprintf(", %s %s for %d", a.Stance, a.Target, a.Stake)
	} else if a.Stance != domain.StanceNone {
		s += ", " + string(a.Stance)
	}
	if a.Move != nil {
		s += ", move " + a.Move.String()
	}
	if a.UseSkill {
		s += ", skill"
	}
	return s
}
