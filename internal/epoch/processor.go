package epoch

import (
	"cmp"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/nfrund/hexarena/internal/combat"
	"github.com/nfrund/hexarena/internal/domain"
	"github.com/nfrund/hexarena/internal/hexgrid"
	"github.com/nfrund/hexarena/internal/market"
	"github.com/nfrund/hexarena/internal/phase"
	"github.com/nfrund/hexarena/internal/prediction"
)

// Passive attrition and item values.
const (
	BleedDamage      = 20
	StormDamage      = 50
	HealingAmount    = 100
	TrapDamage       = 80
	CornucopiaAmount = 250
)

// Decision is what the decision provider returned for one participant.
// A missing entry or a non-nil Err means the safe default is used.
type Decision struct {
	Action domain.EpochAction
	Err    error
}

// Input is everything one epoch depends on.
type Input struct {
	State     State
	Decisions map[string]Decision
	Market    market.Snapshot
	Sponsors  map[string]domain.SponsorEffect
}

// flags is the per-participant skill state for the epoch being resolved.
type flags struct {
	berserk     bool
	fortified   bool
	insider     bool
	allIn       bool
	siphon      string
	randomBonus float64
	attackBoost int
}

type run struct {
	st      *State
	res     *Result
	rng     *rand.Rand
	ids     []string
	actions map[string]*ActionRecord
	flags   map[string]*flags
	// Last participant to hurt someone, and what last hurt them.
	lastAttacker map[string]string
	lastCause    map[string]Cause
}

// Process resolves the next epoch. It never mutates in.State; the returned
// State is a fresh copy. Panics during resolution come back as a
// *ProcessingFault.
func Process(in Input) (res Result, next State, err error) {
	epochNo := in.State.Epoch + 1
	defer func() {
		if r := recover(); r != nil {
			res, next = Result{}, State{}
			err = &ProcessingFault{Epoch: epochNo, Cause: r}
		}
	}()

	if in.State.Arena == nil {
		return Result{}, State{}, &ProcessingFault{Epoch: epochNo, Cause: errors.New("state has no arena")}
	}
	for _, p := range in.State.Participants {
		if _, placed := in.State.Arena.PositionOf(p.ID); p.Alive && !placed {
			return Result{}, State{}, &ProcessingFault{
				Epoch: epochNo,
				Cause: fmt.Errorf("participant %s is alive but not on the arena", p.ID),
			}
		}
	}

	next = in.State.Clone()
	current := phase.CurrentPhase(epochNo, next.Schedule)
	res = Result{
		Epoch:       epochNo,
		Phase:       current,
		HazardRing:  phase.HazardRing(current),
		MarketStart: in.State.Market.Clone(),
		MarketEnd:   in.Market.Clone(),
	}
	r := &run{
		st:           &next,
		res:          &res,
		rng:          rand.New(rand.NewPCG(next.Seed, uint64(epochNo))),
		ids:          next.AliveIDs(),
		actions:      make(map[string]*ActionRecord),
		flags:        make(map[string]*flags),
		lastAttacker: make(map[string]string),
		lastCause:    make(map[string]Cause),
	}

	r.collectActions(in.Decisions, phase.CombatEnabled(current))
	r.activateSkills(phase.CombatEnabled(current))
	r.applySponsors(in.Sponsors)
	r.resolveMovement(res.HazardRing)
	r.resolveItems()
	r.resolvePredictions(in.State.Market, in.Market)
	if phase.CombatEnabled(current) {
		r.resolveSiphons()
		r.resolveCombat()
	}
	r.applyBleed()
	r.spawnItems(epochNo)
	r.applyStorm(res.HazardRing)
	r.resolveDeaths()
	r.resolveOutcome(epochNo)
	for _, id := range r.ids {
		res.Actions = append(res.Actions, *r.actions[id])
	}

	if epochNo > 1 {
		if prev := phase.CurrentPhase(epochNo-1, next.Schedule); prev != current {
			res.PhaseChange = &PhaseChange{From: prev, To: current, HazardRing: res.HazardRing}
		}
	}

	next.Epoch = epochNo
	next.Market = in.Market.Clone()
	res.Participants = make([]domain.Participant, len(next.Participants))
	for i, p := range next.Participants {
		res.Participants[i] = p.Clone()
	}
	return res, next, nil
}

func (r *run) participant(id string) *domain.Participant {
	p := r.st.Participant(id)
	if p == nil {
		panic(fmt.Sprintf("participant %s vanished from state", id))
	}
	return p
}

// validTarget reports whether target is another living participant.
func (r *run) validTarget(self, target string) bool {
	if target == "" || target == self {
		return false
	}
	_, ok := slices.BinarySearch(r.ids, target)
	return ok
}

func (r *run) collectActions(decisions map[string]Decision, combatEnabled bool) {
	for _, id := range r.ids {
		rec := &ActionRecord{ParticipantID: id}
		d, ok := decisions[id]
		switch {
		case !ok:
			rec.Substituted, rec.Reason = true, "no decision"
		case d.Err != nil:
			rec.Substituted, rec.Reason = true, d.Err.Error()
		default:
			if err := domain.ValidateAction(d.Action, r.st.Assets); err != nil {
				rec.Substituted, rec.Reason = true, err.Error()
			} else if d.Action.Target != "" && !r.validTarget(id, d.Action.Target) {
				rec.Substituted, rec.Reason = true, "invalid target "+d.Action.Target
			} else {
				rec.Action = d.Action
			}
		}
		if rec.Substituted {
			rec.Action = domain.SafeDefault(r.st.Assets)
		}
		rec.Effective = rec.Action.Stance
		if !combatEnabled {
			rec.Effective = domain.StanceNone
		}
		r.actions[id] = rec
		r.participant(id).Note(rec.Action.Rationale)

		f := &flags{}
		// Draw for every participant with a random bonus so the stream stays
		// aligned regardless of who acts.
		if bonusMax := r.participant(id).Archetype.Traits().RandomBonusMax; bonusMax > 0 {
			f.randomBonus = r.rng.Float64() * bonusMax
		}
		r.flags[id] = f
	}
}

func (r *run) activateSkills(combatEnabled bool) {
	for _, id := range r.ids {
		p := r.participant(id)
		if p.SkillCooldown > 0 {
			p.SkillCooldown--
		}
		act := r.actions[id].Action
		if !act.UseSkill || p.SkillCooldown > 0 {
			continue
		}
		traits := p.Archetype.Traits()
		f := r.flags[id]
		target := ""
		switch traits.Skill {
		case domain.SkillBerserk:
			f.berserk = true
		case domain.SkillFortify:
			f.fortified = true
		case domain.SkillInsiderInfo:
			f.insider = true
		case domain.SkillAllIn:
			f.allIn = true
		case domain.SkillSiphon:
			if !combatEnabled || !r.validTarget(id, act.SkillTarget) {
				continue
			}
			f.siphon = act.SkillTarget
			target = act.SkillTarget
		default:
			continue
		}
		p.SkillCooldown = traits.SkillCooldown
		r.res.Skills = append(r.res.Skills, SkillActivation{ParticipantID: id, Skill: traits.Skill, Target: target})
	}
}

func (r *run) applySponsors(effects map[string]domain.SponsorEffect) {
	for _, id := range r.ids {
		eff, ok := effects[id]
		if !ok {
			continue
		}
		boost := SponsorBoost{ParticipantID: id, Effect: eff}
		boost.Healed = r.participant(id).Heal(eff.HPBoost)
		if eff.FreeDefend && r.actions[id].Effective == domain.StanceNone {
			r.actions[id].Effective = domain.StanceDefend
		}
		r.flags[id].attackBoost += eff.AttackBoost
		r.res.Sponsors = append(r.res.Sponsors, boost)
	}
}

func (r *run) resolveMovement(hazardRing int) {
	for _, id := range r.ids {
		move := r.actions[id].Action.Move
		if move == nil {
			continue
		}
		from, _ := r.st.Arena.PositionOf(id)
		out := MoveOutcome{ParticipantID: id, From: from, To: *move}
		err := r.st.Arena.Move(id, *move, hazardRing)
		var moveErr *hexgrid.MoveError
		switch {
		case err == nil:
			out.Success = true
			pos := *move
			r.participant(id).Position = &pos
		case errors.As(err, &moveErr):
			out.Reason = moveErr.Reason
		default:
			panic(err)
		}
		r.res.Movements = append(r.res.Movements, out)
	}
}

// hurt applies damage from any source through the receiver's skill state.
func (r *run) hurt(id string, amount int, cause Cause, attacker string) int {
	f := r.flags[id]
	applied := r.participant(id).Damage(combat.Incoming(amount, f.berserk, f.fortified))
	if applied > 0 {
		r.lastCause[id] = cause
		if attacker != "" {
			r.lastAttacker[id] = attacker
		}
	}
	return applied
}

func (r *run) resolveItems() {
	for _, id := range r.ids {
		pos, ok := r.st.Arena.PositionOf(id)
		if !ok {
			continue
		}
		p := r.participant(id)
		for _, item := range r.st.Arena.TakeItems(pos) {
			switch item.Kind {
			case hexgrid.ItemTrap:
				r.res.Traps = append(r.res.Traps, TrapTrigger{
					ParticipantID: id, Item: item, Damage: r.hurt(id, TrapDamage, CauseTrap, ""),
				})
			case hexgrid.ItemHealing:
				r.res.Pickups = append(r.res.Pickups, Pickup{ParticipantID: id, Item: item, Healed: p.Heal(HealingAmount)})
			case hexgrid.ItemWeaponBoost:
				p.WeaponBoosts++
				r.res.Pickups = append(r.res.Pickups, Pickup{ParticipantID: id, Item: item, WeaponBoost: true})
			case hexgrid.ItemCornucopia:
				p.WeaponBoosts++
				r.res.Pickups = append(r.res.Pickups, Pickup{
					ParticipantID: id, Item: item, Healed: p.Heal(CornucopiaAmount), WeaponBoost: true,
				})
			}
		}
	}
}

func (r *run) resolvePredictions(start, end market.Snapshot) {
	for _, id := range r.ids {
		p := r.participant(id)
		f := r.flags[id]
		out := prediction.Resolve(id, r.actions[id].Action.Prediction, p.MaxHP, start, end,
			prediction.Modifiers{InsiderInfo: f.insider, AllIn: f.allIn})
		rec := PredictionRecord{Outcome: out}
		if out.Delta > 0 {
			rec.Applied = p.Heal(out.Delta)
		} else {
			rec.Applied = -r.hurt(id, -out.Delta, CausePrediction, "")
		}
		r.res.Predictions = append(r.res.Predictions, rec)
	}
}

func (r *run) side(id string) combat.Side {
	p := r.participant(id)
	f := r.flags[id]
	act := r.actions[id]
	return combat.Side{
		ID:           id,
		Archetype:    p.Archetype,
		Stance:       act.Effective,
		Stake:        min(act.Action.Stake, p.HP),
		HP:           p.HP,
		MaxHP:        p.MaxHP,
		Berserk:      f.berserk,
		Fortified:    f.fortified,
		RandomBonus:  f.randomBonus,
		AttackBoost:  f.attackBoost,
		WeaponBoosts: p.WeaponBoosts,
	}
}

func (r *run) resolveSiphons() {
	for _, id := range r.ids {
		target := r.flags[id].siphon
		if target == "" {
			continue
		}
		user, victim := r.participant(id), r.participant(target)
		if user.HP <= 0 || victim.HP <= 0 {
			continue
		}
		out := combat.Siphon(r.side(id), r.side(target))
		out.Drained = victim.Damage(out.Drained)
		if out.Drained > 0 {
			r.lastAttacker[target] = id
			r.lastCause[target] = CauseSiphon
		}
		out.Healed = user.Heal(min(out.Healed, out.Drained))
		r.res.Siphons = append(r.res.Siphons, out)
	}
}

func offensive(s domain.Stance) bool {
	return s == domain.StanceAttack || s == domain.StanceSabotage
}

func (r *run) resolveCombat() {
	for _, id := range r.ids {
		act := r.actions[id]
		if !offensive(act.Effective) {
			continue
		}
		target := act.Action.Target
		if !r.validTarget(id, target) {
			continue
		}
		// Mutual targeting is one interaction, owned by the lower id.
		other := r.actions[target]
		if offensive(other.Effective) && other.Action.Target == id && target < id {
			continue
		}
		att, def := r.participant(id), r.participant(target)
		if att.HP <= 0 || def.HP <= 0 {
			continue
		}
		out := combat.Resolve(r.side(id), r.side(target))
		r.applyCombat(att, def, out.AttackerDamage, out.AttackerHeal)
		r.applyCombat(def, att, out.DefenderDamage, out.DefenderHeal)
		r.res.Combat = append(r.res.Combat, out)
	}
	for _, id := range r.ids {
		if r.actions[id].Effective == domain.StanceAttack {
			r.participant(id).WeaponBoosts = 0
		}
	}
}

func (r *run) applyCombat(p, opponent *domain.Participant, damage, heal int) {
	if p.Damage(damage) > 0 {
		r.lastAttacker[p.ID] = opponent.ID
		r.lastCause[p.ID] = CauseCombat
	}
	p.Heal(heal)
}

func (r *run) applyBleed() {
	for _, id := range r.ids {
		p := r.participant(id)
		if p.HP <= 0 {
			continue
		}
		if n := r.hurt(id, BleedDamage, CauseBleed, ""); n > 0 {
			pos, _ := r.st.Arena.PositionOf(id)
			r.res.Bleed = append(r.res.Bleed, HPLoss{ParticipantID: id, Amount: n, Coord: pos})
		}
	}
}

func (r *run) applyStorm(hazardRing int) {
	if hazardRing == 0 {
		return
	}
	for _, id := range r.ids {
		pos, ok := r.st.Arena.PositionOf(id)
		if !ok || !hexgrid.InStorm(pos, hazardRing) || r.participant(id).HP <= 0 {
			continue
		}
		if n := r.hurt(id, StormDamage, CauseStorm, ""); n > 0 {
			r.res.Storm = append(r.res.Storm, HPLoss{ParticipantID: id, Amount: n, Coord: pos})
		}
	}
}

func (r *run) resolveDeaths() {
	for _, id := range r.ids {
		p := r.participant(id)
		if p.HP > 0 {
			p.EpochsSurvived++
			if pos, ok := r.st.Arena.PositionOf(id); ok {
				p.Position = &pos
			}
			continue
		}
		p.Alive = false
		last, _ := r.st.Arena.Remove(id)
		p.Position = &last
		death := Death{ParticipantID: id, Cause: r.lastCause[id], LastPosition: last}
		// Whoever last hurt them this epoch gets the kill, even if bleed or
		// the storm finished the job.
		if killer := r.lastAttacker[id]; killer != "" && killer != id {
			death.KillerID = killer
			r.participant(killer).Kills++
		}
		r.res.Deaths = append(r.res.Deaths, death)
	}
}

func (r *run) resolveOutcome(epochNo int) {
	alive := r.st.AliveIDs()
	switch {
	case len(alive) <= 1:
		r.res.Complete = true
		if len(alive) == 1 {
			r.res.Winner = alive[0]
		}
	case epochNo >= r.st.Schedule.Total:
		r.res.Complete = true
		r.res.Timeout = true
		r.res.Winner = TimeoutWinner(r.st.Participants)
	}
}

// TimeoutWinner picks the living participant with the most HP, breaking ties
// by join order.
func TimeoutWinner(participants []domain.Participant) string {
	var living []domain.Participant
	for _, p := range participants {
		if p.Alive {
			living = append(living, p)
		}
	}
	if len(living) == 0 {
		return ""
	}
	best := slices.MinFunc(living, func(a, b domain.Participant) int {
		if c := cmp.Compare(b.HP, a.HP); c != 0 {
			return c
		}
		return cmp.Compare(a.JoinOrder, b.JoinOrder)
	})
	return best.ID
}
