package chessboard

import (
	"image"
	"math"

	"github.com/golang/geo/r2"
)

// seed is an inner corner candidate formed where two dark quads meet.
type seed struct {
	pos       r2.Point
	neighbors []int
}

// pairCorners joins quad vertices that are mutual nearest neighbours across different quads and
// closer than half the smaller square side. It returns the seeds and, per quad vertex, the seed
// index or -1.
func pairCorners(quads []quad) ([]seed, [][4]int) {
	type vertexRef struct{ q, v int }
	nearest := func(q, v int) (vertexRef, float64) {
		best, bestDist := vertexRef{-1, -1}, math.Inf(1)
		p := quads[q].corners[v]
		for oq := range quads {
			if oq == q {
				continue
			}
			for ov := 0; ov < 4; ov++ {
				if d := p.Sub(quads[oq].corners[ov]).Norm(); d < bestDist {
					best, bestDist = vertexRef{oq, ov}, d
				}
			}
		}
		return best, bestDist
	}

	seedOf := make([][4]int, len(quads))
	for i := range seedOf {
		seedOf[i] = [4]int{-1, -1, -1, -1}
	}
	var seeds []seed
	for q := range quads {
		for v := 0; v < 4; v++ {
			if seedOf[q][v] >= 0 {
				continue
			}
			other, dist := nearest(q, v)
			if other.q < 0 || seedOf[other.q][other.v] >= 0 {
				continue
			}
			if dist > 0.5*math.Min(quads[q].minSide, quads[other.q].minSide) {
				continue
			}
			if back, _ := nearest(other.q, other.v); back.q != q || back.v != v {
				continue
			}
			mid := quads[q].corners[v].Add(quads[other.q].corners[other.v]).Mul(0.5)
			seedOf[q][v] = len(seeds)
			seedOf[other.q][other.v] = len(seeds)
			seeds = append(seeds, seed{pos: mid})
		}
	}

	// two seeds on one quad side are lattice neighbours
	linked := map[[2]int]struct{}{}
	for q := range quads {
		for v := 0; v < 4; v++ {
			a, b := seedOf[q][v], seedOf[q][(v+1)%4]
			if a < 0 || b < 0 || a == b {
				continue
			}
			key := [2]int{a, b}
			if a > b {
				key = [2]int{b, a}
			}
			if _, ok := linked[key]; ok {
				continue
			}
			linked[key] = struct{}{}
			seeds[a].neighbors = append(seeds[a].neighbors, b)
			seeds[b].neighbors = append(seeds[b].neighbors, a)
		}
	}
	return seeds, seedOf
}

// connectedGroups returns the seed indices of each connected lattice component.
func connectedGroups(seeds []seed) [][]int {
	visited := make([]bool, len(seeds))
	var groups [][]int
	for start := range seeds {
		if visited[start] {
			continue
		}
		visited[start] = true
		group := []int{start}
		for head := 0; head < len(group); head++ {
			for _, n := range seeds[group[head]].neighbors {
				if !visited[n] {
					visited[n] = true
					group = append(group, n)
				}
			}
		}
		groups = append(groups, group)
	}
	return groups
}

// bfsDistances returns hop counts from start over the lattice, -1 when unreachable.
func bfsDistances(seeds []seed, start int) []int {
	dist := make([]int, len(seeds))
	for i := range dist {
		dist[i] = -1
	}
	dist[start] = 0
	queue := []int{start}
	for head := 0; head < len(queue); head++ {
		cur := queue[head]
		for _, n := range seeds[cur].neighbors {
			if dist[n] < 0 {
				dist[n] = dist[cur] + 1
				queue = append(queue, n)
			}
		}
	}
	return dist
}

// assignGrid orders a lattice component of exactly pattern.X*pattern.Y seeds into rows of
// pattern.X corners. The origin is the lattice corner nearest the image's top left, and columns are
// mirrored if needed so that rows run clockwise from columns in image coordinates.
func assignGrid(seeds []seed, group []int, pattern image.Point) ([]r2.Point, bool) {
	cols, rows := pattern.X, pattern.Y
	if len(group) != cols*rows {
		return nil, false
	}

	var latticeCorners []int
	for _, s := range group {
		deg := len(seeds[s].neighbors)
		if deg < 2 || deg > 4 {
			return nil, false
		}
		if deg == 2 {
			latticeCorners = append(latticeCorners, s)
		}
	}
	if len(latticeCorners) != 4 {
		return nil, false
	}

	origin := latticeCorners[0]
	for _, c := range latticeCorners[1:] {
		p, best := seeds[c].pos, seeds[origin].pos
		if p.X+p.Y < best.X+best.Y {
			origin = c
		}
	}
	distOrigin := bfsDistances(seeds, origin)

	// the corner at the end of the first row sits cols-1 hops away
	rowEnd, colEnd := -1, -1
	for _, c := range latticeCorners {
		if c == origin {
			continue
		}
		switch d := distOrigin[c]; {
		case d == cols-1 && rowEnd < 0:
			rowEnd = c
		case d == rows-1 && colEnd < 0:
			colEnd = c
		}
	}
	if rowEnd < 0 || colEnd < 0 {
		return nil, false
	}
	distRowEnd := bfsDistances(seeds, rowEnd)
	distColEnd := bfsDistances(seeds, colEnd)

	grid := make([]int, cols*rows)
	for i := range grid {
		grid[i] = -1
	}
	for _, s := range group {
		dA, dB, dC := distOrigin[s], distRowEnd[s], distColEnd[s]
		twiceJ := dA - dB + cols - 1
		if dA < 0 || dB < 0 || dC < 0 || twiceJ%2 != 0 {
			return nil, false
		}
		j := twiceJ / 2
		i := dA - j
		if i < 0 || i >= rows || j < 0 || j >= cols || dC != (rows-1-i)+j {
			return nil, false
		}
		if grid[i*cols+j] >= 0 {
			return nil, false
		}
		grid[i*cols+j] = s
	}

	// every lattice edge must join grid neighbours
	position := make(map[int]int, len(grid))
	for k, s := range grid {
		position[s] = k
	}
	for _, s := range group {
		k := position[s]
		for _, n := range seeds[s].neighbors {
			kn, ok := position[n]
			if !ok {
				return nil, false
			}
			di, dj := k/cols-kn/cols, k%cols-kn%cols
			if di*di+dj*dj != 1 {
				return nil, false
			}
		}
	}

	corners := make([]r2.Point, len(grid))
	for k, s := range grid {
		corners[k] = seeds[s].pos
	}
	if handedness(corners, cols) < 0 {
		corners = mirrorColumns(corners, cols, rows)
	}
	return corners, true
}

// handedness is positive when the row direction turns clockwise onto the column direction in
// image coordinates (x right, y down).
func handedness(corners []r2.Point, cols int) float64 {
	along := corners[cols-1].Sub(corners[0])
	down := corners[len(corners)-cols].Sub(corners[0])
	return along.Cross(down)
}

func mirrorColumns(corners []r2.Point, cols, rows int) []r2.Point {
	out := make([]r2.Point, len(corners))
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out[i*cols+j] = corners[i*cols+(cols-1-j)]
		}
	}
	return out
}
