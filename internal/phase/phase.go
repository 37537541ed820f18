// Package phase maps epochs to the four narrative stretches of a battle.
package phase

// Phase names one stretch of a battle.
type Phase string

const (
	Loot       Phase = "LOOT"
	Hunt       Phase = "HUNT"
	Blood      Phase = "BLOOD"
	FinalStand Phase = "FINAL_STAND"
)

// Ordered lists the phases in the order they occur.
var Ordered = []Phase{Loot, Hunt, Blood, FinalStand}

const (
	minEpochs = 8
	maxEpochs = 20
)

// Span is an inclusive epoch range. Epochs are numbered from 1.
type Span struct {
	Phase Phase `json:"phase"`
	Start int   `json:"start"`
	End   int   `json:"end"`
}

// Schedule holds the phase boundaries and the total epoch budget.
type Schedule struct {
	Total int    `json:"total"`
	Spans []Span `json:"spans"`
}

// ComputeSchedule derives the schedule from the participant count. Fewer
// participants get a shorter battle; every phase gets at least one epoch.
func ComputeSchedule(participants int) Schedule {
	total := clamp(2*participants+4, minEpochs, maxEpochs)

	loot := max(1, total*20/100)
	hunt := max(1, total*30/100)
	blood := max(1, total*30/100)
	final := total - loot - hunt - blood

	lengths := []int{loot, hunt, blood, final}
	spans := make([]Span, 0, len(Ordered))
	start := 1
	for i, p := range Ordered {
		spans = append(spans, Span{Phase: p, Start: start, End: start + lengths[i] - 1})
		start += lengths[i]
	}
	return Schedule{Total: total, Spans: spans}
}

// CurrentPhase looks up the phase for an epoch. Epochs before the first span
// are LOOT and epochs past the budget stay in FINAL_STAND.
func CurrentPhase(epoch int, s Schedule) Phase {
	for _, span := range s.Spans {
		if epoch >= span.Start && epoch <= span.End {
			return span.Phase
		}
	}
	if len(s.Spans) > 0 && epoch > s.Spans[len(s.Spans)-1].End {
		return FinalStand
	}
	return Loot
}

// HazardRing returns the innermost lethal ring for a phase; 0 means no storm.
func HazardRing(p Phase) int {
	switch p {
	case Hunt:
		return 3
	case Blood:
		return 2
	case FinalStand:
		return 1
	default:
		return 0
	}
}

// CombatEnabled is false only during LOOT.
func CombatEnabled(p Phase) bool {
	return p != Loot
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
