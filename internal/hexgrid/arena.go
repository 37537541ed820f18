// Package hexgrid implements the bounded hex arena that battles are played on.
//
// Tiles live in a flat slice addressed by an index computed from their axial
// coordinate. Occupancy is a plain participant id on the tile, mirrored by a
// reverse id -> coordinate table so both directions are O(1).
package hexgrid

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// DefaultRadius yields the 37-tile reference board.
const DefaultRadius = 3

var (
	// ErrOutOfBounds is returned when a coordinate is not on the board.
	ErrOutOfBounds = errors.New("coordinate out of bounds")

	// ErrOccupied is returned when placing onto a tile that already has an occupant.
	ErrOccupied = errors.New("tile occupied")

	// ErrAlreadyPlaced is returned when placing a participant that is already on the board.
	ErrAlreadyPlaced = errors.New("participant already placed")
)

// MoveReason explains why a move was rejected.
type MoveReason string

const (
	ReasonNotPlaced   MoveReason = "not_placed"
	ReasonOutOfBounds MoveReason = "out_of_bounds"
	ReasonNotAdjacent MoveReason = "not_adjacent"
	ReasonOccupied    MoveReason = "occupied"
	ReasonStorm       MoveReason = "storm"
)

// MoveError is returned by Arena.Move. The participant stays where it was.
type MoveError struct {
	ParticipantID string
	Target        Coord
	Reason        MoveReason
}

func (e *MoveError) Error() string {
	return fmt.Sprintf("move %s to %s rejected: %s", e.ParticipantID, e.Target, e.Reason)
}

// ItemKind enumerates the loot that can appear on a tile.
type ItemKind string

const (
	ItemHealing     ItemKind = "HEALING"
	ItemWeaponBoost ItemKind = "WEAPON_BOOST"
	ItemTrap        ItemKind = "TRAP"
	ItemCornucopia  ItemKind = "CORNUCOPIA"
)

// Item sits on a tile until someone steps on it. Items never block movement.
type Item struct {
	ID    string   `json:"id"`
	Kind  ItemKind `json:"kind"`
	Coord Coord    `json:"coord"`
}

// Tile is one hex cell.
type Tile struct {
	Coord    Coord  `json:"coord"`
	Ring     int    `json:"ring"`
	Level    int    `json:"level"`
	Occupant string `json:"occupant,omitempty"`
	Items    []Item `json:"items,omitempty"`
}

// Arena is the board. It is not safe for concurrent use; the owning battle
// actor is the only writer.
type Arena struct {
	radius    int
	tiles     []Tile
	index     []int
	positions map[string]Coord
}

// New builds an empty arena of the given radius.
func New(radius int) *Arena {
	if radius < 1 {
		radius = DefaultRadius
	}
	side := 2*radius + 1
	a := &Arena{
		radius:    radius,
		index:     make([]int, side*side),
		positions: make(map[string]Coord),
	}
	for i := range a.index {
		a.index[i] = -1
	}
	// Ring by ring so tile order is stable: center first, then outward.
	a.addTile(Origin)
	for ring := 1; ring <= radius; ring++ {
		for _, c := range ringCoords(ring) {
			a.addTile(c)
		}
	}
	return a
}

func (a *Arena) addTile(c Coord) {
	ring := c.Ring()
	a.index[a.slot(c)] = len(a.tiles)
	a.tiles = append(a.tiles, Tile{Coord: c, Ring: ring, Level: a.radius + 1 - ring})
}

// ringCoords walks the hexagon of the given ring starting at its south-west corner.
func ringCoords(ring int) []Coord {
	out := make([]Coord, 0, 6*ring)
	c := Coord{Q: directions[4].Q * ring, R: directions[4].R * ring}
	for side := 0; side < 6; side++ {
		for step := 0; step < ring; step++ {
			out = append(out, c)
			c = c.Add(directions[side])
		}
	}
	return out
}

func (a *Arena) slot(c Coord) int {
	side := 2*a.radius + 1
	return (c.R+a.radius)*side + (c.Q + a.radius)
}

func (a *Arena) tileIndex(c Coord) (int, bool) {
	if c.Q < -a.radius || c.Q > a.radius || c.R < -a.radius || c.R > a.radius {
		return 0, false
	}
	i := a.index[a.slot(c)]
	return i, i >= 0
}

// Radius returns the board radius.
func (a *Arena) Radius() int { return a.radius }

// Size returns the number of tiles on the board.
func (a *Arena) Size() int { return len(a.tiles) }

// InBounds reports whether c is a tile on the board.
func (a *Arena) InBounds(c Coord) bool {
	_, ok := a.tileIndex(c)
	return ok
}

// Tile returns a copy of the tile at c.
func (a *Arena) Tile(c Coord) (Tile, bool) {
	i, ok := a.tileIndex(c)
	if !ok {
		return Tile{}, false
	}
	return copyTile(a.tiles[i]), true
}

// Tiles returns copies of every tile, center first.
func (a *Arena) Tiles() []Tile {
	out := make([]Tile, len(a.tiles))
	for i, t := range a.tiles {
		out[i] = copyTile(t)
	}
	return out
}

// RingCoords returns the on-board coordinates of the given ring.
func (a *Arena) RingCoords(ring int) []Coord {
	if ring < 0 || ring > a.radius {
		return nil
	}
	if ring == 0 {
		return []Coord{Origin}
	}
	return ringCoords(ring)
}

// Neighbors returns the in-bounds axial neighbors of c.
func (a *Arena) Neighbors(c Coord) []Coord {
	out := make([]Coord, 0, 6)
	for _, d := range directions {
		n := c.Add(d)
		if a.InBounds(n) {
			out = append(out, n)
		}
	}
	return out
}

// Occupant returns the participant standing on c, if any.
func (a *Arena) Occupant(c Coord) string {
	i, ok := a.tileIndex(c)
	if !ok {
		return ""
	}
	return a.tiles[i].Occupant
}

// PositionOf returns the tile a participant stands on.
func (a *Arena) PositionOf(id string) (Coord, bool) {
	c, ok := a.positions[id]
	return c, ok
}

// Occupants returns participant ids currently on the board, sorted.
func (a *Arena) Occupants() []string {
	ids := make([]string, 0, len(a.positions))
	for id := range a.positions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Place puts a participant on an empty tile.
func (a *Arena) Place(id string, c Coord) error {
	i, ok := a.tileIndex(c)
	if !ok {
		return fmt.Errorf("place %s at %s: %w", id, c, ErrOutOfBounds)
	}
	if _, placed := a.positions[id]; placed {
		return fmt.Errorf("place %s: %w", id, ErrAlreadyPlaced)
	}
	if a.tiles[i].Occupant != "" {
		return fmt.Errorf("place %s at %s: %w", id, c, ErrOccupied)
	}
	a.tiles[i].Occupant = id
	a.positions[id] = c
	return nil
}

// Move steps a participant onto an adjacent free tile. Entering the storm is
// refused unless the step heads inward, so a participant caught outside can
// always walk toward safety.
func (a *Arena) Move(id string, target Coord, hazardRing int) error {
	from, ok := a.positions[id]
	if !ok {
		return &MoveError{ParticipantID: id, Target: target, Reason: ReasonNotPlaced}
	}
	to, ok := a.tileIndex(target)
	if !ok {
		return &MoveError{ParticipantID: id, Target: target, Reason: ReasonOutOfBounds}
	}
	if !Adjacent(from, target) {
		return &MoveError{ParticipantID: id, Target: target, Reason: ReasonNotAdjacent}
	}
	if a.tiles[to].Occupant != "" {
		return &MoveError{ParticipantID: id, Target: target, Reason: ReasonOccupied}
	}
	if InStorm(target, hazardRing) && target.Ring() >= from.Ring() {
		return &MoveError{ParticipantID: id, Target: target, Reason: ReasonStorm}
	}
	fromIdx, _ := a.tileIndex(from)
	a.tiles[fromIdx].Occupant = ""
	a.tiles[to].Occupant = id
	a.positions[id] = target
	return nil
}

// Remove takes a participant off the board and returns its last tile.
func (a *Arena) Remove(id string) (Coord, bool) {
	c, ok := a.positions[id]
	if !ok {
		return Coord{}, false
	}
	i, _ := a.tileIndex(c)
	a.tiles[i].Occupant = ""
	delete(a.positions, id)
	return c, true
}

// AddItem drops an item on its coordinate.
func (a *Arena) AddItem(item Item) error {
	i, ok := a.tileIndex(item.Coord)
	if !ok {
		return fmt.Errorf("add item %s at %s: %w", item.ID, item.Coord, ErrOutOfBounds)
	}
	a.tiles[i].Items = append(a.tiles[i].Items, item)
	return nil
}

// TakeItems removes and returns every item on c.
func (a *Arena) TakeItems(c Coord) []Item {
	i, ok := a.tileIndex(c)
	if !ok || len(a.tiles[i].Items) == 0 {
		return nil
	}
	items := a.tiles[i].Items
	a.tiles[i].Items = nil
	return items
}

// Items lists every item on the board in tile order.
func (a *Arena) Items() []Item {
	var out []Item
	for _, t := range a.tiles {
		out = append(out, t.Items...)
	}
	return out
}

// FreeTiles returns unoccupied coordinates, optionally limited to tiles
// without items, in tile order.
func (a *Arena) FreeTiles(withoutItems bool) []Coord {
	var out []Coord
	for _, t := range a.tiles {
		if t.Occupant != "" {
			continue
		}
		if withoutItems && len(t.Items) > 0 {
			continue
		}
		out = append(out, t.Coord)
	}
	return out
}

// Clone returns a deep copy.
func (a *Arena) Clone() *Arena {
	b := &Arena{
		radius:    a.radius,
		tiles:     make([]Tile, len(a.tiles)),
		index:     append([]int(nil), a.index...),
		positions: make(map[string]Coord, len(a.positions)),
	}
	for i, t := range a.tiles {
		b.tiles[i] = copyTile(t)
	}
	for id, c := range a.positions {
		b.positions[id] = c
	}
	return b
}

func copyTile(t Tile) Tile {
	if t.Items != nil {
		t.Items = append([]Item(nil), t.Items...)
	}
	return t
}

type arenaJSON struct {
	Radius int    `json:"radius"`
	Tiles  []Tile `json:"tiles"`
}

// MarshalJSON encodes the board as its radius and tile list.
func (a *Arena) MarshalJSON() ([]byte, error) {
	return json.Marshal(arenaJSON{Radius: a.radius, Tiles: a.tiles})
}

// UnmarshalJSON rebuilds the index and reverse occupant table from the tiles.
func (a *Arena) UnmarshalJSON(data []byte) error {
	var raw arenaJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	fresh := New(raw.Radius)
	for _, t := range raw.Tiles {
		i, ok := fresh.tileIndex(t.Coord)
		if !ok {
			return fmt.Errorf("decode arena tile %s: %w", t.Coord, ErrOutOfBounds)
		}
		fresh.tiles[i].Items = t.Items
		if t.Occupant != "" {
			if _, dup := fresh.positions[t.Occupant]; dup {
				return fmt.Errorf("decode arena: %s occupies two tiles", t.Occupant)
			}
			fresh.tiles[i].Occupant = t.Occupant
			fresh.positions[t.Occupant] = t.Coord
		}
	}
	*a = *fresh
	return nil
}
