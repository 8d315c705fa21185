package l3groups

import (
	"math"
	"sort"
)

// point is a coherent detection in threshold-scaled coordinates. Two
// points are neighbours when every coordinate differs by at most 1.
type point struct {
	t, dm, ew, ns float64
}

func (p point) near(o point) bool {
	return math.Abs(p.t-o.t) <= 1 &&
		math.Abs(p.dm-o.dm) <= 1 &&
		math.Abs(p.ew-o.ew) <= 1 &&
		math.Abs(p.ns-o.ns) <= 1
}

// spatialIndex buckets points into unit cells over (t, dm). Beam
// coordinates are few and small, so they are checked per candidate only.
type spatialIndex struct {
	cells map[int64][]int // cell ID → point indices
}

func newSpatialIndex(points []point) *spatialIndex {
	si := &spatialIndex{cells: make(map[int64][]int, len(points))}
	for i, p := range points {
		id := cellID(cellOf(p.t), cellOf(p.dm))
		si.cells[id] = append(si.cells[id], i)
	}
	return si
}

func cellOf(v float64) int64 { return int64(math.Floor(v)) }

// cellID pairs two signed cell coordinates using zigzag encoding and
// Szudzik's pairing function.
func cellID(x, y int64) int64 {
	a, b := zigzag(x), zigzag(y)
	if a >= b {
		return a*a + a + b
	}
	return a + b*b
}

func zigzag(v int64) int64 {
	if v >= 0 {
		return 2 * v
	}
	return -2*v - 1
}

// neighbours returns the indices of all points within unit Chebyshev
// distance of points[idx], including idx itself.
func (si *spatialIndex) neighbours(points []point, idx int) []int {
	p := points[idx]
	cx, cy := cellOf(p.t), cellOf(p.dm)
	var out []int
	for dx := int64(-1); dx <= 1; dx++ {
		for dy := int64(-1); dy <= 1; dy++ {
			for _, j := range si.cells[cellID(cx+dx, cy+dy)] {
				if p.near(points[j]) {
					out = append(out, j)
				}
			}
		}
	}
	return out
}

// components returns the connected components of the neighbour graph.
// Each component is sorted ascending and components are ordered by their
// lowest index.
func (si *spatialIndex) components(points []point) [][]int {
	n := len(points)
	visited := make([]bool, n)
	var comps [][]int
	for root := 0; root < n; root++ {
		if visited[root] {
			continue
		}
		visited[root] = true
		comp := []int{}
		stack := []int{root}
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			comp = append(comp, i)
			for _, j := range si.neighbours(points, i) {
				if !visited[j] {
					visited[j] = true
					stack = append(stack, j)
				}
			}
		}
		sort.Ints(comp)
		comps = append(comps, comp)
	}
	return comps
}
