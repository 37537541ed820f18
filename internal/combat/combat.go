// Package combat resolves one interaction between two stances.
//
// The triangle is ATTACK > SABOTAGE > DEFEND > ATTACK. Whichever side holds
// the winning stance applies that stance's effect, regardless of who started
// the interaction.
package combat

import (
	"math"

	"github.com/nfrund/hexarena/internal/domain"
)

// Fixed table coefficients.
const (
	StalemateRate  = 0.30
	BypassRate     = 0.60
	ReflectionRate = 0.50
	SiphonRate     = 0.10
	WeaponBoostPct = 0.25
)

// Kind labels what happened in an interaction.
type Kind string

const (
	KindOverpower   Kind = "overpower"
	KindBypass      Kind = "bypass"
	KindReflect     Kind = "reflect"
	KindStalemate   Kind = "stalemate"
	KindUncontested Kind = "uncontested"
	KindNoEffect    Kind = "no_effect"
)

// Side is one participant's state going into an interaction.
type Side struct {
	ID        string
	Archetype domain.Archetype
	Stance    domain.Stance
	Stake     int
	HP        int
	MaxHP     int

	Berserk   bool
	Fortified bool

	// RandomBonus is this epoch's draw for classes with a random stance bonus.
	RandomBonus float64
	// AttackBoost is flat damage added to ATTACK (sponsor).
	AttackBoost int
	// WeaponBoosts counts item charges; each adds WeaponBoostPct to ATTACK.
	WeaponBoosts int
}

// Outcome is the HP effect of one interaction on both sides. Damage never
// exceeds the side's HP and heals never exceed its missing HP.
type Outcome struct {
	AttackerID     string        `json:"attacker_id"`
	DefenderID     string        `json:"defender_id"`
	AttackerStance domain.Stance `json:"attacker_stance"`
	DefenderStance domain.Stance `json:"defender_stance"`
	Kind           Kind          `json:"kind"`
	WinnerID       string        `json:"winner_id,omitempty"`
	AttackerDamage int           `json:"attacker_damage"`
	AttackerHeal   int           `json:"attacker_heal"`
	DefenderDamage int           `json:"defender_damage"`
	DefenderHeal   int           `json:"defender_heal"`
}

// effect accumulates what happens to one side.
type effect struct {
	damage int
	heal   int
}

// Beats reports whether stance a wins against stance b.
func Beats(a, b domain.Stance) bool {
	switch a {
	case domain.StanceAttack:
		return b == domain.StanceSabotage
	case domain.StanceSabotage:
		return b == domain.StanceDefend
	case domain.StanceDefend:
		return b == domain.StanceAttack
	}
	return false
}

// Resolve applies the combat table to one attacker/defender pair.
func Resolve(att, def Side) Outcome {
	out := Outcome{
		AttackerID:     att.ID,
		DefenderID:     def.ID,
		AttackerStance: att.Stance,
		DefenderStance: def.Stance,
	}

	var ae, de effect
	switch {
	case att.Stance == domain.StanceNone && def.Stance == domain.StanceNone:
		out.Kind = KindNoEffect
	case def.Stance == domain.StanceNone:
		out.Kind = uncontested(att, def, &ae, &de)
		if out.Kind != KindNoEffect {
			out.WinnerID = att.ID
		}
	case att.Stance == domain.StanceNone:
		out.Kind = uncontested(def, att, &de, &ae)
		if out.Kind != KindNoEffect {
			out.WinnerID = def.ID
		}
	case att.Stance == def.Stance:
		out.Kind = KindStalemate
		ae.damage = incoming(att, StalemateRate*float64(att.Stake))
		de.damage = incoming(def, StalemateRate*float64(def.Stake))
	case Beats(att.Stance, def.Stance):
		out.Kind = win(att, def, &ae, &de)
		out.WinnerID = att.ID
	default:
		out.Kind = win(def, att, &de, &ae)
		out.WinnerID = def.ID
	}

	out.AttackerDamage, out.AttackerHeal = settle(att, ae)
	out.DefenderDamage, out.DefenderHeal = settle(def, de)
	return out
}

// win applies the winning stance w against the losing stance l.
func win(w, l Side, we, le *effect) Kind {
	switch w.Stance {
	case domain.StanceAttack:
		stolen := incoming(l, dealt(w, float64(w.Stake)))
		le.damage = stolen
		we.heal = stolen
		return KindOverpower
	case domain.StanceSabotage:
		le.damage = incoming(l, BypassRate*dealt(w, float64(w.Stake)))
		return KindBypass
	default:
		// DEFEND turns the attacker's own stake back on it.
		le.damage = incoming(l, ReflectionRate*float64(l.Stake)*effectiveness(w))
		return KindReflect
	}
}

// uncontested applies w's stance against a side that took no stance.
func uncontested(w, l Side, we, le *effect) Kind {
	switch w.Stance {
	case domain.StanceAttack:
		stolen := incoming(l, dealt(w, float64(w.Stake)))
		le.damage = stolen
		we.heal = stolen
		return KindUncontested
	case domain.StanceSabotage:
		le.damage = incoming(l, dealt(w, float64(w.Stake)))
		return KindUncontested
	default:
		return KindNoEffect
	}
}

// effectiveness is the class and random multiplier for the side's own stance.
func effectiveness(s Side) float64 {
	return s.Archetype.Traits().Multiplier(s.Stance) * (1 + s.RandomBonus)
}

// dealt scales a base amount by everything that boosts what s inflicts.
func dealt(s Side, base float64) float64 {
	v := base * effectiveness(s)
	if s.Stance == domain.StanceAttack {
		v *= 1 + WeaponBoostPct*float64(s.WeaponBoosts)
		if s.Berserk {
			v *= 2
		}
		v += float64(s.AttackBoost)
	}
	return v
}

// incoming rounds damage about to hit s, after its own skill state.
func incoming(s Side, v float64) int {
	return min(Incoming(int(math.Round(v)), s.Berserk, s.Fortified), s.HP)
}

// Incoming scales damage from any source by the receiver's skill state:
// FORTIFY blocks it, BERSERK doubles it.
func Incoming(amount int, berserk, fortified bool) int {
	if fortified || amount <= 0 {
		return 0
	}
	if berserk {
		return amount * 2
	}
	return amount
}

func settle(s Side, e effect) (damage, heal int) {
	damage = min(max(e.damage, 0), s.HP)
	heal = min(max(e.heal, 0), s.MaxHP-(s.HP-damage))
	return damage, heal
}

// SiphonOutcome is a direct HP transfer from target to user.
type SiphonOutcome struct {
	UserID   string `json:"user_id"`
	TargetID string `json:"target_id"`
	Drained  int    `json:"drained"`
	Healed   int    `json:"healed"`
}

// Siphon drains a share of the target's current HP into the user,
// independent of either stance.
func Siphon(user, target Side) SiphonOutcome {
	drained := incoming(target, SiphonRate*float64(target.HP))
	return SiphonOutcome{
		UserID:   user.ID,
		TargetID: target.ID,
		Drained:  drained,
		Healed:   min(drained, user.MaxHP-user.HP),
	}
}
