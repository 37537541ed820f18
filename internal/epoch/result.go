package epoch

import (
	"fmt"

	"github.com/nfrund/hexarena/internal/combat"
	"github.com/nfrund/hexarena/internal/domain"
	"github.com/nfrund/hexarena/internal/hexgrid"
	"github.com/nfrund/hexarena/internal/market"
	"github.com/nfrund/hexarena/internal/phase"
	"github.com/nfrund/hexarena/internal/prediction"
)

// ActionRecord is the action actually used for a participant.
type ActionRecord struct {
	ParticipantID string             `json:"participant_id"`
	Action        domain.EpochAction `json:"action"`
	Effective     domain.Stance      `json:"effective_stance"`
	Substituted   bool               `json:"substituted"`
	Reason        string             `json:"reason,omitempty"`
}

// SkillActivation records a skill that went off this epoch.
type SkillActivation struct {
	ParticipantID string       `json:"participant_id"`
	Skill         domain.Skill `json:"skill"`
	Target        string       `json:"target,omitempty"`
}

// SponsorBoost records a sponsor effect that was applied.
type SponsorBoost struct {
	ParticipantID string               `json:"participant_id"`
	Effect        domain.SponsorEffect `json:"effect"`
	Healed        int                  `json:"healed"`
}

// MoveOutcome records one movement request.
type MoveOutcome struct {
	ParticipantID string             `json:"participant_id"`
	From          hexgrid.Coord      `json:"from"`
	To            hexgrid.Coord      `json:"to"`
	Success       bool               `json:"success"`
	Reason        hexgrid.MoveReason `json:"reason,omitempty"`
}

// Pickup records an item collected by a participant.
type Pickup struct {
	ParticipantID string       `json:"participant_id"`
	Item          hexgrid.Item `json:"item"`
	Healed        int          `json:"healed,omitempty"`
	WeaponBoost   bool         `json:"weapon_boost,omitempty"`
}

// TrapTrigger records a trap going off.
type TrapTrigger struct {
	ParticipantID string       `json:"participant_id"`
	Item          hexgrid.Item `json:"item"`
	Damage        int          `json:"damage"`
}

// PredictionRecord is a scored prediction plus the HP change applied.
type PredictionRecord struct {
	prediction.Outcome
	Applied int `json:"applied"`
}

// HPLoss records passive damage such as bleed or storm.
type HPLoss struct {
	ParticipantID string        `json:"participant_id"`
	Amount        int           `json:"amount"`
	Coord         hexgrid.Coord `json:"coord"`
}

// Cause names what dealt the final blow.
type Cause string

const (
	CauseCombat     Cause = "combat"
	CauseSiphon     Cause = "siphon"
	CausePrediction Cause = "prediction"
	CauseTrap       Cause = "trap"
	CauseBleed      Cause = "bleed"
	CauseStorm      Cause = "storm"
)

// Death records an elimination.
type Death struct {
	ParticipantID string        `json:"participant_id"`
	KillerID      string        `json:"killer_id,omitempty"`
	Cause         Cause         `json:"cause"`
	LastPosition  hexgrid.Coord `json:"last_position"`
}

// PhaseChange is set when the resolved epoch opened a new phase.
type PhaseChange struct {
	From       phase.Phase `json:"from"`
	To         phase.Phase `json:"to"`
	HazardRing int         `json:"hazard_ring"`
}

// Result is the full record of one epoch. It is never mutated after
// Process returns; it doubles as the persistence delta and the event source.
type Result struct {
	Epoch       int             `json:"epoch"`
	Phase       phase.Phase     `json:"phase"`
	HazardRing  int             `json:"hazard_ring"`
	MarketStart market.Snapshot `json:"market_start"`
	MarketEnd   market.Snapshot `json:"market_end"`

	Actions      []ActionRecord         `json:"actions"`
	Skills       []SkillActivation      `json:"skills,omitempty"`
	Sponsors     []SponsorBoost         `json:"sponsors,omitempty"`
	Movements    []MoveOutcome          `json:"movements,omitempty"`
	Pickups      []Pickup               `json:"pickups,omitempty"`
	Traps        []TrapTrigger          `json:"traps,omitempty"`
	Predictions  []PredictionRecord     `json:"predictions"`
	Siphons      []combat.SiphonOutcome `json:"siphons,omitempty"`
	Combat       []combat.Outcome       `json:"combat,omitempty"`
	Bleed        []HPLoss               `json:"bleed,omitempty"`
	Spawns       []hexgrid.Item         `json:"spawns,omitempty"`
	Storm        []HPLoss               `json:"storm,omitempty"`
	Deaths       []Death                `json:"deaths,omitempty"`
	Participants []domain.Participant   `json:"participants"`
	PhaseChange  *PhaseChange           `json:"phase_change,omitempty"`

	Complete bool   `json:"complete"`
	Timeout  bool   `json:"timeout,omitempty"`
	Winner   string `json:"winner,omitempty"`
}

// ProcessingFault is returned when resolution fails unexpectedly. The epoch
// must not be committed.
type ProcessingFault struct {
	Epoch int
	Cause any
}

func (f *ProcessingFault) Error() string {
	return fmt.Sprintf("epoch %d processing fault: %v", f.Epoch, f.Cause)
}

// Unwrap exposes the cause when it is an error.
func (f *ProcessingFault) Unwrap() error {
	if err, ok := f.Cause.(error); ok {
		return err
	}
	return nil
}
