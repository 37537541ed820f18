package domain

// Archetype is one of the five fixed participant classes.
type Archetype string

const (
	Warrior  Archetype = "WARRIOR"
	Trader   Archetype = "TRADER"
	Survivor Archetype = "SURVIVOR"
	Parasite Archetype = "PARASITE"
	Gambler  Archetype = "GAMBLER"
)

// Archetypes lists every class in a stable order.
var Archetypes = []Archetype{Warrior, Trader, Survivor, Parasite, Gambler}

// Traits is the per-class modifier table. Class behaviour is data, not code:
// resolvers and bots read these numbers instead of switching on the class.
type Traits struct {
	Skill         Skill
	SkillCooldown int

	// Prediction stake range in percent of MaxHP.
	StakeMin int
	StakeMax int

	// Combat stake range in percent of current HP.
	CombatStakeMin int
	CombatStakeMax int

	// Probability of picking each stance when a bot decides. Sums to 1.
	StanceBias map[Stance]float64

	// Multipliers applied to what the class deals with each stance.
	AttackMultiplier   float64
	SabotageMultiplier float64
	DefendMultiplier   float64

	// Upper bound of the random per-epoch bonus on whatever stance is used.
	RandomBonusMax float64
}

var traitTable = map[Archetype]Traits{
	Warrior: {
		Skill: SkillBerserk, SkillCooldown: 3,
		StakeMin: 15, StakeMax: 35,
		CombatStakeMin: 10, CombatStakeMax: 25,
		StanceBias: map[Stance]float64{
			StanceAttack: 0.60, StanceSabotage: 0.20, StanceDefend: 0.15, StanceNone: 0.05,
		},
		AttackMultiplier: 1.2, SabotageMultiplier: 1.0, DefendMultiplier: 1.0,
	},
	Trader: {
		Skill: SkillInsiderInfo, SkillCooldown: 4,
		StakeMin: 10, StakeMax: 30,
		CombatStakeMin: 5, CombatStakeMax: 15,
		StanceBias: map[Stance]float64{
			StanceAttack: 0.20, StanceSabotage: 0.40, StanceDefend: 0.30, StanceNone: 0.10,
		},
		AttackMultiplier: 1.0, SabotageMultiplier: 1.1, DefendMultiplier: 1.0,
	},
	Survivor: {
		Skill: SkillFortify, SkillCooldown: 3,
		StakeMin: 5, StakeMax: 15,
		CombatStakeMin: 5, CombatStakeMax: 10,
		StanceBias: map[Stance]float64{
			StanceAttack: 0.10, StanceSabotage: 0.10, StanceDefend: 0.60, StanceNone: 0.20,
		},
		AttackMultiplier: 1.0, SabotageMultiplier: 1.0, DefendMultiplier: 1.2,
	},
	Parasite: {
		Skill: SkillSiphon, SkillCooldown: 2,
		StakeMin: 10, StakeMax: 25,
		CombatStakeMin: 5, CombatStakeMax: 20,
		StanceBias: map[Stance]float64{
			StanceAttack: 0.20, StanceSabotage: 0.50, StanceDefend: 0.20, StanceNone: 0.10,
		},
		AttackMultiplier: 1.0, SabotageMultiplier: 1.1, DefendMultiplier: 1.0,
	},
	Gambler: {
		Skill: SkillAllIn, SkillCooldown: 3,
		StakeMin: 25, StakeMax: 50,
		CombatStakeMin: 15, CombatStakeMax: 40,
		StanceBias: map[Stance]float64{
			StanceAttack: 0.35, StanceSabotage: 0.35, StanceDefend: 0.15, StanceNone: 0.15,
		},
		AttackMultiplier: 1.0, SabotageMultiplier: 1.0, DefendMultiplier: 1.0,
		RandomBonusMax: 0.15,
	},
}

// Valid reports whether a is one of the known classes.
func (a Archetype) Valid() bool {
	_, ok := traitTable[a]
	return ok
}

// Traits returns the modifier table for the class. Unknown classes get a
// neutral table with no skill.
func (a Archetype) Traits() Traits {
	if t, ok := traitTable[a]; ok {
		return t
	}
	return Traits{
		StakeMin: MinStakePercent, StakeMax: MinStakePercent,
		StanceBias:       map[Stance]float64{StanceNone: 1},
		AttackMultiplier: 1, SabotageMultiplier: 1, DefendMultiplier: 1,
	}
}

// Multiplier returns the class multiplier for what it deals with stance s.
func (t Traits) Multiplier(s Stance) float64 {
	switch s {
	case StanceAttack:
		return t.AttackMultiplier
	case StanceSabotage:
		return t.SabotageMultiplier
	case StanceDefend:
		return t.DefendMultiplier
	default:
		return 1
	}
}
