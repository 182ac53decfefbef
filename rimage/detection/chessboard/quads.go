package chessboard

import (
	"math"
	"sort"

	"github.com/golang/geo/r2"
)

// quad is a dark square candidate. Corners are ordered around the outline.
type quad struct {
	corners [4]r2.Point
	area    float64
	minSide float64
}

// component is a 4-connected set of dark pixels.
type component struct {
	pixels        []int
	touchesBorder bool
}

// darkComponents labels 4-connected dark regions of at least minArea pixels.
func darkComponents(b *binaryImage, minArea, maxArea int) []component {
	labels := make([]int32, len(b.dark))
	var comps []component
	stack := make([]int, 0, 1024)
	var next int32 = 1
	for start, dark := range b.dark {
		if !dark || labels[start] != 0 {
			continue
		}
		comp := component{}
		labels[start] = next
		stack = append(stack[:0], start)
		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			comp.pixels = append(comp.pixels, idx)
			x, y := idx%b.width, idx/b.width
			if x == 0 || y == 0 || x == b.width-1 || y == b.height-1 {
				comp.touchesBorder = true
			}
			for _, d := range [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
				nx, ny := x+d[0], y+d[1]
				if nx < 0 || ny < 0 || nx >= b.width || ny >= b.height {
					continue
				}
				nIdx := ny*b.width + nx
				if b.dark[nIdx] && labels[nIdx] == 0 {
					labels[nIdx] = next
					stack = append(stack, nIdx)
				}
			}
		}
		next++
		if len(comp.pixels) >= minArea && len(comp.pixels) <= maxArea && !comp.touchesBorder {
			comps = append(comps, comp)
		}
	}
	return comps
}

// outlinePoints returns the pixel corners of the component's boundary pixels.
func outlinePoints(b *binaryImage, comp component) []r2.Point {
	member := make(map[int]struct{}, len(comp.pixels))
	for _, idx := range comp.pixels {
		member[idx] = struct{}{}
	}
	var pts []r2.Point
	for _, idx := range comp.pixels {
		x, y := idx%b.width, idx/b.width
		boundary := false
		for _, d := range [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
			if _, ok := member[(y+d[1])*b.width+x+d[0]]; !ok {
				boundary = true
				break
			}
		}
		if !boundary {
			continue
		}
		fx, fy := float64(x), float64(y)
		pts = append(pts,
			r2.Point{X: fx - 0.5, Y: fy - 0.5}, r2.Point{X: fx + 0.5, Y: fy - 0.5},
			r2.Point{X: fx + 0.5, Y: fy + 0.5}, r2.Point{X: fx - 0.5, Y: fy + 0.5})
	}
	return pts
}

// convexHull returns the hull in counter-clockwise order (monotone chain).
func convexHull(pts []r2.Point) []r2.Point {
	if len(pts) < 3 {
		return pts
	}
	sorted := make([]r2.Point, len(pts))
	copy(sorted, pts)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].X != sorted[j].X {
			return sorted[i].X < sorted[j].X
		}
		return sorted[i].Y < sorted[j].Y
	})
	cross := func(o, a, b r2.Point) float64 {
		return a.Sub(o).Cross(b.Sub(o))
	}
	hull := make([]r2.Point, 0, 2*len(sorted))
	for _, p := range sorted {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(sorted) - 2; i >= 0; i-- {
		p := sorted[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

func triangleArea(a, b, c r2.Point) float64 {
	return math.Abs(b.Sub(a).Cross(c.Sub(a))) / 2
}

func polygonArea(pts []r2.Point) float64 {
	area := 0.
	for i := range pts {
		area += pts[i].Cross(pts[(i+1)%len(pts)])
	}
	return math.Abs(area) / 2
}

// fitQuad picks four hull vertices spanning the largest quadrilateral. It starts from the hull
// diameter plus the farthest vertex on each side, then moves one vertex at a time to grow the area.
func fitQuad(hull []r2.Point) ([4]int, bool) {
	n := len(hull)
	var idx [4]int
	if n < 4 {
		return idx, false
	}
	bestD := -1.
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			diff := hull[i].Sub(hull[j])
			if d := diff.Dot(diff); d > bestD {
				bestD = d
				idx[0], idx[2] = i, j
			}
		}
	}
	farthest := func(from, to int) (int, float64) {
		best, bestArea := -1, 0.
		for k := (from + 1) % n; k != to; k = (k + 1) % n {
			if a := triangleArea(hull[from], hull[k], hull[to]); a > bestArea {
				best, bestArea = k, a
			}
		}
		return best, bestArea
	}
	var a1, a2 float64
	idx[1], a1 = farthest(idx[0], idx[2])
	idx[3], a2 = farthest(idx[2], idx[0])
	if idx[1] < 0 || idx[3] < 0 || a1 == 0 || a2 == 0 {
		return idx, false
	}

	for pass := 0; pass < 3; pass++ {
		moved := false
		for v := 0; v < 4; v++ {
			prev, next := idx[(v+3)%4], idx[(v+1)%4]
			best, _ := farthest(prev, next)
			if best >= 0 && best != idx[v] &&
				triangleArea(hull[prev], hull[best], hull[next]) > triangleArea(hull[prev], hull[idx[v]], hull[next])+1e-9 {
				idx[v] = best
				moved = true
			}
		}
		if !moved {
			break
		}
	}
	return idx, true
}

// quadFromComponent fits and validates a quadrilateral for one dark region.
func quadFromComponent(b *binaryImage, comp component) (quad, bool) {
	hull := convexHull(outlinePoints(b, comp))
	idx, ok := fitQuad(hull)
	if !ok {
		return quad{}, false
	}
	q := quad{}
	for i, k := range idx {
		q.corners[i] = hull[k]
	}
	q.area = polygonArea(q.corners[:])
	if q.area <= 0 {
		return quad{}, false
	}

	// squares fill their quad; blobs and wedges do not
	fill := float64(len(comp.pixels)) / q.area
	if fill < 0.75 || fill > 1.25 {
		return quad{}, false
	}
	hullArea := polygonArea(hull)
	if q.area < 0.85*hullArea {
		return quad{}, false
	}

	minSide, maxSide := math.Inf(1), 0.
	for i := 0; i < 4; i++ {
		side := q.corners[i].Sub(q.corners[(i+1)%4]).Norm()
		minSide = math.Min(minSide, side)
		maxSide = math.Max(maxSide, side)
	}
	if minSide < 3 || minSide < 0.2*maxSide {
		return quad{}, false
	}
	q.minSide = minSide
	return q, true
}
