// Package prediction scores a market-direction call against two snapshots.
package prediction

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/nfrund/hexarena/internal/domain"
	"github.com/nfrund/hexarena/internal/market"
)

// Movement is what the market actually did.
type Movement string

const (
	MovedUp   Movement = "UP"
	MovedDown Movement = "DOWN"
	MovedFlat Movement = "FLAT"
	Unknown   Movement = "UNKNOWN"
)

// Modifiers are the prediction-only skills active this epoch.
type Modifiers struct {
	InsiderInfo bool
	AllIn       bool
}

// Outcome is the scored prediction. Delta is the signed HP change before the
// receiver's own damage modifiers.
type Outcome struct {
	ParticipantID string           `json:"participant_id"`
	Asset         string           `json:"asset"`
	Direction     domain.Direction `json:"direction"`
	StakePercent  int              `json:"stake_percent"`
	Actual        Movement         `json:"actual"`
	ChangePercent decimal.Decimal  `json:"change_percent"`
	Correct       bool             `json:"correct"`
	InsiderInfo   bool             `json:"insider_info,omitempty"`
	AllIn         bool             `json:"all_in,omitempty"`
	Delta         int              `json:"delta"`
}

// Observe compares an asset across two snapshots. A missing price is Unknown.
func Observe(asset string, start, end market.Snapshot) (Movement, decimal.Decimal) {
	from, ok1 := start.Price(asset)
	to, ok2 := end.Price(asset)
	if !ok1 || !ok2 || from.IsZero() {
		return Unknown, decimal.Zero
	}
	change := to.Sub(from).Div(from).Mul(decimal.NewFromInt(100)).Round(4)
	switch to.Cmp(from) {
	case 1:
		return MovedUp, change
	case -1:
		return MovedDown, change
	default:
		return MovedFlat, change
	}
}

// Resolve scores one prediction. A flat or unknown market counts as a miss.
func Resolve(participantID string, p domain.Prediction, maxHP int, start, end market.Snapshot, mods Modifiers) Outcome {
	actual, change := Observe(p.Asset, start, end)
	correct := (actual == MovedUp && p.Direction == domain.DirectionUp) ||
		(actual == MovedDown && p.Direction == domain.DirectionDown)
	if mods.InsiderInfo {
		correct = true
	}

	magnitude := int(math.Round(float64(p.StakePercent) * float64(maxHP) / 100))
	if mods.AllIn {
		magnitude *= 2
	}
	delta := -magnitude
	if correct {
		delta = magnitude
	}

	return Outcome{
		ParticipantID: participantID,
		Asset:         p.Asset,
		Direction:     p.Direction,
		StakePercent:  p.StakePercent,
		Actual:        actual,
		ChangePercent: change,
		Correct:       correct,
		InsiderInfo:   mods.InsiderInfo,
		AllIn:         mods.AllIn,
		Delta:         delta,
	}
}
