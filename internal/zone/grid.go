package zone

import (
	"fmt"
	"sort"

	"voxelzone.app/internal/protocol"
)

// Coord is an integer voxel coordinate. Grid keys and user positions share
// this space.
type Coord [3]int

func (c Coord) String() string {
	return fmt.Sprintf("%d,%d,%d", c[0], c[1], c[2])
}

func (c Coord) Add(dx, dy, dz int) Coord {
	return Coord{c[0] + dx, c[1] + dy, c[2] + dz}
}

func CoordOf(p protocol.Position) Coord { return Coord(p) }

func (c Coord) Position() protocol.Position { return protocol.Position(c) }

// Grid maps occupied voxels to a block type id. Absence means empty; 0 is
// never stored.
type Grid map[Coord]int

func (g Grid) Has(c Coord) bool {
	_, ok := g[c]
	return ok
}

func (g Grid) Get(c Coord) (int, bool) {
	b, ok := g[c]
	return b, ok
}

// Set stores a block id, erasing the voxel when id is 0. It reports whether
// the stored value changed.
func (g Grid) Set(c Coord, id int) bool {
	prev, had := g[c]
	if id == 0 {
		if !had {
			return false
		}
		delete(g, c)
		return true
	}
	if had && prev == id {
		return false
	}
	g[c] = id
	return true
}

// Coords returns the occupied coordinates in x, y, z order.
func (g Grid) Coords() []Coord {
	out := make([]Coord, 0, len(g))
	for c := range g {
		out = append(out, c)
	}
	SortCoords(out)
	return out
}

// SortCoords orders coordinates by x, then y, then z.
func SortCoords(cs []Coord) {
	sort.Slice(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		if a[1] != b[1] {
			return a[1] < b[1]
		}
		return a[2] < b[2]
	})
}
