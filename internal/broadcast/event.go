package broadcast

import (
	"time"

	"github.com/nfrund/hexarena/internal/epoch"
	"github.com/nfrund/hexarena/internal/hexgrid"
)

// EventType names a broadcast event.
type EventType string

// Epoch events, in emission order.
const (
	EpochStart         EventType = "epoch_start"
	SponsorBoosts      EventType = "sponsor_boosts"
	MovementResults    EventType = "movement_results"
	ItemPickups        EventType = "item_pickups"
	TrapTriggers       EventType = "trap_triggers"
	ParticipantActions EventType = "participant_actions"
	PredictionResults  EventType = "prediction_results"
	CombatResults      EventType = "combat_results"
	ItemSpawns         EventType = "item_spawns"
	StormDamage        EventType = "storm_damage"
	Deaths             EventType = "deaths"
	EpochEnd           EventType = "epoch_end"
	GridSnapshot       EventType = "grid_snapshot"
	BattleEnd          EventType = "battle_end"
	TimeoutWin         EventType = "timeout_win"
	PhaseChange        EventType = "phase_change"
)

// Lifecycle events.
const (
	LobbyUpdate      EventType = "lobby_update"
	CountdownStarted EventType = "countdown_started"
	BattleStarted    EventType = "battle_started"
	BattleCancelled  EventType = "battle_cancelled"
	StateSnapshot    EventType = "state_snapshot"
)

// Event is one message on a battle's stream. Seq increases by one for every
// event a battle emits and survives restarts.
type Event struct {
	ID       string    `json:"id"`
	BattleID string    `json:"battle_id"`
	Seq      uint64    `json:"seq"`
	Type     EventType `json:"type"`
	Epoch    int       `json:"epoch"`
	At       time.Time `json:"at"`
	Payload  any       `json:"payload"`
}

// EpochStartPayload opens an epoch.
type EpochStartPayload struct {
	Epoch      int    `json:"epoch"`
	Phase      string `json:"phase"`
	HazardRing int    `json:"hazard_ring"`
	Market     any    `json:"market"`
}

// CombatPayload groups siphons and stance interactions.
type CombatPayload struct {
	Siphons any `json:"siphons"`
	Combat  any `json:"combat"`
}

// EpochEndPayload closes an epoch with the participant snapshots.
type EpochEndPayload struct {
	Epoch        int `json:"epoch"`
	Market       any `json:"market"`
	Bleed        any `json:"bleed"`
	Participants any `json:"participants"`
}

// OutcomePayload announces the end of a battle.
type OutcomePayload struct {
	Winner       string `json:"winner,omitempty"`
	Epoch        int    `json:"epoch"`
	Participants any    `json:"participants"`
}

// Sequence converts one epoch result into its fixed, ordered event list.
// Only Type, Epoch and Payload are set; the session stamps the rest.
func Sequence(res epoch.Result, tiles []hexgrid.Tile) []Event {
	ev := func(t EventType, payload any) Event {
		return Event{Type: t, Epoch: res.Epoch, Payload: payload}
	}
	out := []Event{
		ev(EpochStart, EpochStartPayload{
			Epoch: res.Epoch, Phase: string(res.Phase), HazardRing: res.HazardRing, Market: res.MarketStart,
		}),
		ev(SponsorBoosts, nonNil(res.Sponsors)),
		ev(MovementResults, nonNil(res.Movements)),
		ev(ItemPickups, nonNil(res.Pickups)),
		ev(TrapTriggers, nonNil(res.Traps)),
		ev(ParticipantActions, nonNil(res.Actions)),
		ev(PredictionResults, nonNil(res.Predictions)),
		ev(CombatResults, CombatPayload{Siphons: nonNil(res.Siphons), Combat: nonNil(res.Combat)}),
		ev(ItemSpawns, nonNil(res.Spawns)),
		ev(StormDamage, nonNil(res.Storm)),
		ev(Deaths, nonNil(res.Deaths)),
		ev(EpochEnd, EpochEndPayload{
			Epoch: res.Epoch, Market: res.MarketEnd, Bleed: nonNil(res.Bleed), Participants: res.Participants,
		}),
		ev(GridSnapshot, tiles),
	}
	if res.Complete {
		kind := BattleEnd
		if res.Timeout {
			kind = TimeoutWin
		}
		out = append(out, ev(kind, OutcomePayload{Winner: res.Winner, Epoch: res.Epoch, Participants: res.Participants}))
	}
	if res.PhaseChange != nil {
		out = append(out, ev(PhaseChange, res.PhaseChange))
	}
	return out
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
