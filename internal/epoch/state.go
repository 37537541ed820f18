// Package epoch runs one tick of a battle: decisions in, a new state and an
// immutable Result out. Processing is pure: identical inputs produce
// identical outputs.
package epoch

import (
	"cmp"
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/nfrund/hexarena/internal/domain"
	"github.com/nfrund/hexarena/internal/hexgrid"
	"github.com/nfrund/hexarena/internal/market"
	"github.com/nfrund/hexarena/internal/phase"
)

// State is the part of a battle the pipeline reads and rewrites.
type State struct {
	// Epoch is the last committed epoch; 0 before the first tick.
	Epoch        int                  `json:"epoch"`
	Participants []domain.Participant `json:"participants"`
	Arena        *hexgrid.Arena       `json:"arena"`
	Schedule     phase.Schedule       `json:"schedule"`
	Assets       []string             `json:"assets"`
	Seed         uint64               `json:"seed"`
	// Market is the snapshot that closed the last epoch and opens the next.
	Market market.Snapshot `json:"market"`
}

// Clone returns a deep copy so a tick can be computed without touching the
// committed state.
func (s State) Clone() State {
	c := s
	c.Participants = make([]domain.Participant, len(s.Participants))
	for i, p := range s.Participants {
		c.Participants[i] = p.Clone()
	}
	if s.Arena != nil {
		c.Arena = s.Arena.Clone()
	}
	c.Schedule.Spans = slices.Clone(s.Schedule.Spans)
	c.Assets = slices.Clone(s.Assets)
	c.Market = s.Market.Clone()
	return c
}

// Participant returns a pointer into the state's participant slice.
func (s *State) Participant(id string) *domain.Participant {
	for i := range s.Participants {
		if s.Participants[i].ID == id {
			return &s.Participants[i]
		}
	}
	return nil
}

// AliveIDs returns the ids of living participants in ascending order.
func (s *State) AliveIDs() []string {
	var ids []string
	for _, p := range s.Participants {
		if p.Alive {
			ids = append(ids, p.ID)
		}
	}
	slices.Sort(ids)
	return ids
}

// Phase is the phase of the next epoch to run.
func (s *State) Phase() phase.Phase {
	return phase.CurrentPhase(s.Epoch+1, s.Schedule)
}

// Start lays out a fresh arena: participants on random outer-ring tiles,
// the schedule from the final headcount and some opening loot.
func Start(participants []domain.Participant, assets []string, seed uint64, opening market.Snapshot) (State, error) {
	arena := hexgrid.New(hexgrid.DefaultRadius)
	rng := rand.New(rand.NewPCG(seed, 0))

	outer := arena.RingCoords(arena.Radius())
	if len(participants) > len(outer) {
		return State{}, fmt.Errorf("%d participants do not fit on %d starting tiles", len(participants), len(outer))
	}
	rng.Shuffle(len(outer), func(i, j int) { outer[i], outer[j] = outer[j], outer[i] })

	ordered := slices.Clone(participants)
	slices.SortFunc(ordered, func(a, b domain.Participant) int { return cmp.Compare(a.JoinOrder, b.JoinOrder) })
	for i := range ordered {
		if err := arena.Place(ordered[i].ID, outer[i]); err != nil {
			return State{}, err
		}
		pos := outer[i]
		ordered[i].Position = &pos
	}

	if err := arena.AddItem(hexgrid.Item{ID: "item-0-0", Kind: hexgrid.ItemCornucopia, Coord: hexgrid.Origin}); err != nil {
		return State{}, err
	}
	inner := append(arena.RingCoords(1), arena.RingCoords(2)...)
	rng.Shuffle(len(inner), func(i, j int) { inner[i], inner[j] = inner[j], inner[i] })
	for n := 1; n <= openingLoot && n <= len(inner); n++ {
		item := hexgrid.Item{ID: itemID(0, n), Kind: drawItemKind(rng), Coord: inner[n-1]}
		if err := arena.AddItem(item); err != nil {
			return State{}, err
		}
	}

	return State{
		Participants: ordered,
		Arena:        arena,
		Schedule:     phase.ComputeSchedule(len(participants)),
		Assets:       slices.Clone(assets),
		Seed:         seed,
		Market:       opening.Clone(),
	}, nil
}
