package physics

import (
	"github.com/go-gl/mathgl/mgl32"
)

// pairFunc tests a against b and reports the contact as seen by a.
type pairFunc func(a, b Collider) (CollisionData, bool)

// pairTable is the double-dispatch table. A nil entry means the pair never
// collides. A new shape adds a row and a column.
var pairTable = [kindCount][kindCount]pairFunc{
	KindCircle: {
		KindCircle:  circleCircle,
		KindLine:    circleLine,
		KindTilemap: circleTilemap,
	},
	KindLine: {
		KindCircle:  flip(circleLine),
		KindLine:    lineLine,
		KindTilemap: lineTilemap,
	},
	KindTilemap: {
		KindCircle: flip(circleTilemap),
		KindLine:   flip(lineTilemap),
	},
}

// Collide runs the narrow phase for a and b, ignoring layers.
func Collide(a, b Collider) (CollisionData, bool) {
	fn := pairTable[a.Kind()][b.Kind()]
	if fn == nil {
		return CollisionData{}, false
	}
	return fn(a, b)
}

// flip adapts fn(b, a) into a function for (a, b).
func flip(fn pairFunc) pairFunc {
	return func(a, b Collider) (CollisionData, bool) {
		d, ok := fn(b, a)
		if !ok {
			return d, false
		}
		return d.Negated(), true
	}
}

// circleCircle reports coincident centres as a contact with a zero normal;
// the physics response ignores zero normals.
func circleCircle(a, b Collider) (CollisionData, bool) {
	ca, cb := a.(*CircleCollider), b.(*CircleCollider)
	pa, pb := ca.Center(), cb.Center()
	ra, rb := ca.WorldRadius(), cb.WorldRadius()
	d := pa.Sub(pb)
	dist := d.Len()
	if dist >= ra+rb {
		return CollisionData{}, false
	}
	if dist == 0 {
		return CollisionData{Depth: ra + rb, Position: pa}, true
	}
	n := d.Mul(1 / dist)
	return CollisionData{Normal: n, Depth: ra + rb - dist, Position: pb.Add(n.Mul(rb))}, true
}

func circleLine(a, b Collider) (CollisionData, bool) {
	c := a.(*CircleCollider)
	s0, s1 := b.(*LineCollider).World()
	p, r := c.Center(), c.WorldRadius()
	q := closestOnSegment(p, s0, s1)
	d := p.Sub(q)
	dist := d.Len()
	if dist >= r {
		return CollisionData{}, false
	}
	if dist == 0 {
		return CollisionData{Depth: r, Position: q}, true
	}
	return CollisionData{Normal: d.Mul(1 / dist), Depth: r - dist, Position: q}, true
}

// circleTilemap returns the deepest contact among the solid tiles the circle
// overlaps.
func circleTilemap(a, b Collider) (CollisionData, bool) {
	c, m := a.(*CircleCollider), b.(*TilemapCollider)
	p, r := c.Center(), c.WorldRadius()
	var best CollisionData
	found := false
	m.SolidIn(c.Bounds(), func(x, y int) {
		d, ok := circleBox(p, r, m.TileBox(x, y))
		if !ok || (found && d.Depth <= best.Depth) {
			return
		}
		d.TilePos, d.HasTile = [2]int{x, y}, true
		best, found = d, true
	})
	return best, found
}

func circleBox(p mgl32.Vec2, r float32, box AABB) (CollisionData, bool) {
	q := mgl32.Vec2{clamp(p.X(), box.Min.X(), box.Max.X()), clamp(p.Y(), box.Min.Y(), box.Max.Y())}
	d := p.Sub(q)
	dist := d.Len()
	if dist > 0 {
		if dist >= r {
			return CollisionData{}, false
		}
		return CollisionData{Normal: d.Mul(1 / dist), Depth: r - dist, Position: q}, true
	}
	// centre inside the box: push out through the nearest face
	left, right := p.X()-box.Min.X(), box.Max.X()-p.X()
	down, up := p.Y()-box.Min.Y(), box.Max.Y()-p.Y()
	n, pen := mgl32.Vec2{-1, 0}, left
	if right < pen {
		n, pen = mgl32.Vec2{1, 0}, right
	}
	if down < pen {
		n, pen = mgl32.Vec2{0, -1}, down
	}
	if up < pen {
		n, pen = mgl32.Vec2{0, 1}, up
	}
	return CollisionData{Normal: n, Depth: r + pen, Position: p.Sub(n.Mul(pen))}, true
}

// lineLine reports crossing segments with zero depth and a normal
// perpendicular to b, facing a's midpoint.
func lineLine(a, b Collider) (CollisionData, bool) {
	a0, a1 := a.(*LineCollider).World()
	b0, b1 := b.(*LineCollider).World()
	t, _, ok := segmentIntersect(a0, a1, b0, b1)
	if !ok {
		return CollisionData{}, false
	}
	pos := a0.Add(a1.Sub(a0).Mul(t))
	n := perp(b1.Sub(b0))
	if n.LenSqr() > 0 {
		n = n.Normalize()
		mid := a0.Add(a1).Mul(0.5)
		if n.Dot(mid.Sub(pos)) < 0 {
			n = n.Mul(-1)
		}
	}
	return CollisionData{Normal: n, Position: pos}, true
}

// lineTilemap reports the first solid tile along the segment from its start.
func lineTilemap(a, b Collider) (CollisionData, bool) {
	s0, s1 := a.(*LineCollider).World()
	dir := s1.Sub(s0)
	length := dir.Len()
	if length == 0 {
		return CollisionData{}, false
	}
	hit, ok := b.(*TilemapCollider).RayCast(s0, dir.Mul(1/length), length)
	if !ok {
		return CollisionData{}, false
	}
	// the tile face normal points toward the line
	return CollisionData{
		Normal:   hit.Normal,
		Position: hit.Position,
		TilePos:  hit.TilePos,
		HasTile:  true,
	}, true
}

func closestOnSegment(p, a, b mgl32.Vec2) mgl32.Vec2 {
	ab := b.Sub(a)
	l2 := ab.LenSqr()
	if l2 == 0 {
		return a
	}
	t := clamp(p.Sub(a).Dot(ab)/l2, 0, 1)
	return a.Add(ab.Mul(t))
}

func clamp(v, lo, hi float32) float32 {
	return max(lo, min(v, hi))
}
