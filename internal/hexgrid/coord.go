package hexgrid

import "fmt"

// Coord is an axial hex coordinate. The implicit cube coordinate is s = -q-r.
type Coord struct {
	Q int `json:"q"`
	R int `json:"r"`
}

// Origin is the center tile of every arena.
var Origin = Coord{}

var directions = [6]Coord{
	{Q: 1, R: 0}, {Q: 1, R: -1}, {Q: 0, R: -1},
	{Q: -1, R: 0}, {Q: -1, R: 1}, {Q: 0, R: 1},
}

// Add returns the component-wise sum of c and d.
func (c Coord) Add(d Coord) Coord {
	return Coord{Q: c.Q + d.Q, R: c.R + d.R}
}

// Ring returns the distance of c from the origin.
func (c Coord) Ring() int {
	return Distance(c, Origin)
}

func (c Coord) String() string {
	return fmt.Sprintf("(%d,%d)", c.Q, c.R)
}

// Distance is the hex distance between two coordinates.
func Distance(a, b Coord) int {
	dq := a.Q - b.Q
	dr := a.R - b.R
	return (abs(dq) + abs(dr) + abs(dq+dr)) / 2
}

// Adjacent reports whether a and b are direct neighbors.
func Adjacent(a, b Coord) bool {
	return Distance(a, b) == 1
}

// InStorm reports whether c lies inside the lethal zone for the given hazard
// ring. A hazard ring of 0 means no storm.
func InStorm(c Coord, hazardRing int) bool {
	return hazardRing > 0 && c.Ring() >= hazardRing
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
