package epoch

import (
	"fmt"
	"math/rand/v2"

	"github.com/nfrund/hexarena/internal/hexgrid"
)

const (
	openingLoot      = 3
	cornucopiaChance = 0.10
)

// itemWeights is the spawn table for ordinary drops.
var itemWeights = []struct {
	kind   hexgrid.ItemKind
	weight int
}{
	{hexgrid.ItemHealing, 40},
	{hexgrid.ItemWeaponBoost, 30},
	{hexgrid.ItemTrap, 30},
}

func itemID(epoch, n int) string {
	return fmt.Sprintf("item-%d-%d", epoch, n)
}

func drawItemKind(rng *rand.Rand) hexgrid.ItemKind {
	total := 0
	for _, w := range itemWeights {
		total += w.weight
	}
	roll := rng.IntN(total)
	for _, w := range itemWeights {
		if roll < w.weight {
			return w.kind
		}
		roll -= w.weight
	}
	return hexgrid.ItemHealing
}

// spawnItems drops one or two ordinary items on free tiles plus an
// occasional cornucopia at the center. Every random draw happens
// unconditionally so the stream does not depend on board contents.
func (r *run) spawnItems(epochNo int) {
	count := 1 + r.rng.IntN(2)
	jackpot := r.rng.Float64() < cornucopiaChance

	free := r.st.Arena.FreeTiles(true)
	n := 0
	for i := 0; i < count; i++ {
		pick := r.rng.IntN(64)
		kind := drawItemKind(r.rng)
		if len(free) == 0 {
			continue
		}
		idx := pick % len(free)
		n++
		item := hexgrid.Item{ID: itemID(epochNo, n), Kind: kind, Coord: free[idx]}
		free = append(free[:idx], free[idx+1:]...)
		if err := r.st.Arena.AddItem(item); err != nil {
			panic(err)
		}
		r.res.Spawns = append(r.res.Spawns, item)
	}

	if !jackpot {
		return
	}
	center, _ := r.st.Arena.Tile(hexgrid.Origin)
	if center.Occupant != "" || len(center.Items) > 0 {
		return
	}
	n++
	item := hexgrid.Item{ID: itemID(epochNo, n), Kind: hexgrid.ItemCornucopia, Coord: hexgrid.Origin}
	if err := r.st.Arena.AddItem(item); err != nil {
		panic(err)
	}
	r.res.Spawns = append(r.res.Spawns, item)
}
