package domain

import (
	"github.com/nfrund/hexarena/internal/hexgrid"
)

// Status is the lifecycle state of a battle.
type Status string

const (
	StatusLobby     Status = "LOBBY"
	StatusCountdown Status = "COUNTDOWN"
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Joinable reports whether participants may still join.
func (s Status) Joinable() bool {
	return s == StatusLobby || s == StatusCountdown
}

// Stance is a participant's combat posture for one epoch.
type Stance string

const (
	StanceAttack   Stance = "ATTACK"
	StanceSabotage Stance = "SABOTAGE"
	StanceDefend   Stance = "DEFEND"
	StanceNone     Stance = "NONE"
)

// Direction is a market-direction call.
type Direction string

const (
	DirectionUp   Direction = "UP"
	DirectionDown Direction = "DOWN"
)

// Skill is a class ability with a cooldown.
type Skill string

const (
	SkillBerserk     Skill = "BERSERK"
	SkillFortify     Skill = "FORTIFY"
	SkillSiphon      Skill = "SIPHON"
	SkillInsiderInfo Skill = "INSIDER_INFO"
	SkillAllIn       Skill = "ALL_IN"
)

const (
	// DefaultMaxHP is the starting and maximum HP of every participant.
	DefaultMaxHP = 1000

	// RationaleLogSize bounds the rolling rationale log.
	RationaleLogSize = 5

	// MinStakePercent and MaxStakePercent bound prediction stakes.
	MinStakePercent = 5
	MaxStakePercent = 50
)

// Participant is one contestant. Once Alive is false it never flips back.
type Participant struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Archetype      Archetype      `json:"archetype"`
	HP             int            `json:"hp"`
	MaxHP          int            `json:"max_hp"`
	Alive          bool           `json:"alive"`
	Kills          int            `json:"kills"`
	EpochsSurvived int            `json:"epochs_survived"`
	Position       *hexgrid.Coord `json:"position,omitempty"`
	Rationale      []string       `json:"rationale,omitempty"`
	SkillCooldown  int            `json:"skill_cooldown"`
	WeaponBoosts   int            `json:"weapon_boosts,omitempty"`
	JoinOrder      int            `json:"join_order"`
}

// NewParticipant creates a participant at full health.
func NewParticipant(id, name string, archetype Archetype, joinOrder int) Participant {
	return Participant{
		ID:        id,
		Name:      name,
		Archetype: archetype,
		HP:        DefaultMaxHP,
		MaxHP:     DefaultMaxHP,
		Alive:     true,
		JoinOrder: joinOrder,
	}
}

// Heal adds hp up to MaxHP and returns the amount actually applied.
func (p *Participant) Heal(amount int) int {
	if amount <= 0 || !p.Alive {
		return 0
	}
	applied := min(amount, p.MaxHP-p.HP)
	p.HP += applied
	return applied
}

// Damage removes hp down to zero and returns the amount actually applied.
// Death is evaluated separately at the end of an epoch.
func (p *Participant) Damage(amount int) int {
	if amount <= 0 {
		return 0
	}
	applied := min(amount, p.HP)
	p.HP -= applied
	return applied
}

// Note appends to the rolling rationale log.
func (p *Participant) Note(rationale string) {
	if rationale == "" {
		return
	}
	p.Rationale = append(p.Rationale, rationale)
	if over := len(p.Rationale) - RationaleLogSize; over > 0 {
		p.Rationale = append([]string(nil), p.Rationale[over:]...)
	}
}

// Clone returns a deep copy.
func (p Participant) Clone() Participant {
	if p.Position != nil {
		pos := *p.Position
		p.Position = &pos
	}
	p.Rationale = append([]string(nil), p.Rationale...)
	return p
}

// Prediction is a market-direction call with a stake in percent of MaxHP.
type Prediction struct {
	Asset        string    `json:"asset" validate:"required"`
	Direction    Direction `json:"direction" validate:"oneof=UP DOWN"`
	StakePercent int       `json:"stake_percent" validate:"min=5,max=50"`
}

// EpochAction is everything a participant submits for one epoch.
type EpochAction struct {
	Prediction  Prediction     `json:"prediction"`
	Stance      Stance         `json:"stance" validate:"oneof=ATTACK SABOTAGE DEFEND NONE"`
	Target      string         `json:"target,omitempty"`
	Stake       int            `json:"stake,omitempty" validate:"gte=0"`
	Move        *hexgrid.Coord `json:"move,omitempty"`
	UseSkill    bool           `json:"use_skill,omitempty"`
	SkillTarget string         `json:"skill_target,omitempty"`
	Rationale   string         `json:"rationale,omitempty"`
}

// SafeDefault is the action used when a decision cannot be obtained.
func SafeDefault(assets []string) EpochAction {
	asset := ""
	if len(assets) > 0 {
		asset = assets[0]
	}
	return EpochAction{
		Prediction: Prediction{Asset: asset, Direction: DirectionUp, StakePercent: MinStakePercent},
		Stance:     StanceNone,
		Rationale:  "default action",
	}
}

// SponsorEffect is a one-epoch boost purchased for a participant.
type SponsorEffect struct {
	HPBoost     int  `json:"hp_boost"`
	FreeDefend  bool `json:"free_defend"`
	AttackBoost int  `json:"attack_boost"`
}
