package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	json "github.com/goccy/go-json"
	"github.com/quarrygate/engine/internal/core/ecs"
	"github.com/quarrygate/engine/internal/core/serial"
	"github.com/rotisserie/eris"
)

// RayCastHit is the nearest intersection of a ray with a collider.
type RayCastHit struct {
	Collider Collider
	Normal   mgl32.Vec2
	Distance float32
	Position mgl32.Vec2
	TilePos  [2]int
	HasTile  bool
}

// CircleCollider is a disc around the transform's translation. The radius
// scales with the larger transform scale axis.
type CircleCollider struct {
	ColliderBase
	radius float32
}

func NewCircleCollider() *CircleCollider { return &CircleCollider{radius: 0.5} }

func (c *CircleCollider) Kind() Kind { return KindCircle }

func (c *CircleCollider) Radius() float32 { return c.radius }

func (c *CircleCollider) SetRadius(r float32) {
	if r != c.radius {
		c.radius = r
		c.changed = true
	}
}

// Center and WorldRadius give the circle in world space.
func (c *CircleCollider) Center() mgl32.Vec2   { return c.origin() }
func (c *CircleCollider) WorldRadius() float32 { return c.radius * c.scale() }

func (c *CircleCollider) Bounds() AABB {
	p, r := c.Center(), c.WorldRadius()
	return AABB{Min: p.Sub(mgl32.Vec2{r, r}), Max: p.Add(mgl32.Vec2{r, r})}
}

func (c *CircleCollider) RayCast(origin, dir mgl32.Vec2, maxDistance float32) (RayCastHit, bool) {
	center, r := c.Center(), c.WorldRadius()
	f := origin.Sub(center)
	b := f.Dot(dir)
	cc := f.Dot(f) - r*r
	if cc > 0 && b > 0 {
		return RayCastHit{}, false
	}
	disc := b*b - cc
	if disc < 0 {
		return RayCastHit{}, false
	}
	t := -b - float32(math.Sqrt(float64(disc)))
	if t < 0 {
		t = 0
	}
	if t > maxDistance {
		return RayCastHit{}, false
	}
	pos := origin.Add(dir.Mul(t))
	n := pos.Sub(center)
	if n.LenSqr() == 0 {
		n = dir.Mul(-1)
	}
	return RayCastHit{Collider: c, Normal: n.Normalize(), Distance: t, Position: pos}, true
}

func (c *CircleCollider) ReadMethods() serial.Methods {
	return append(serial.Methods{
		{Key: "Radius", Read: serial.Func(c.SetRadius)},
	}, c.readMethods()...)
}

func (c *CircleCollider) Write() *serial.Object {
	return c.write(serial.NewObject().Set("Radius", c.radius))
}

func (c *CircleCollider) Clone() ecs.Component {
	return &CircleCollider{ColliderBase: c.cloneBase(), radius: c.radius}
}

// LineCollider is a segment whose endpoints are in the transform's local
// space.
type LineCollider struct {
	ColliderBase
	start, end mgl32.Vec2
}

func NewLineCollider() *LineCollider { return &LineCollider{end: mgl32.Vec2{1, 0}} }

func (l *LineCollider) Kind() Kind { return KindLine }

func (l *LineCollider) Start() mgl32.Vec2 { return l.start }
func (l *LineCollider) End() mgl32.Vec2   { return l.end }

func (l *LineCollider) SetPoints(start, end mgl32.Vec2) {
	if start != l.start || end != l.end {
		l.start, l.end = start, end
		l.changed = true
	}
}

// World returns the endpoints in world space.
func (l *LineCollider) World() (a, b mgl32.Vec2) { return l.local(l.start), l.local(l.end) }

func (l *LineCollider) Bounds() AABB {
	a, b := l.World()
	return AABB{
		Min: mgl32.Vec2{min(a.X(), b.X()), min(a.Y(), b.Y())},
		Max: mgl32.Vec2{max(a.X(), b.X()), max(a.Y(), b.Y())},
	}
}

func (l *LineCollider) RayCast(origin, dir mgl32.Vec2, maxDistance float32) (RayCastHit, bool) {
	a, b := l.World()
	t, _, ok := segmentIntersect(origin, origin.Add(dir.Mul(maxDistance)), a, b)
	if !ok {
		return RayCastHit{}, false
	}
	n := perp(b.Sub(a))
	if n.LenSqr() == 0 {
		return RayCastHit{}, false
	}
	n = n.Normalize()
	if n.Dot(dir) > 0 {
		n = n.Mul(-1)
	}
	d := t * maxDistance
	return RayCastHit{Collider: l, Normal: n, Distance: d, Position: origin.Add(dir.Mul(d))}, true
}

func (l *LineCollider) ReadMethods() serial.Methods {
	return append(serial.Methods{
		{Key: "Start", Read: serial.Floats(l.start[:])},
		{Key: "End", Read: serial.Floats(l.end[:])},
	}, l.readMethods()...)
}

func (l *LineCollider) AfterLoad() { l.changed = true }

func (l *LineCollider) Write() *serial.Object {
	return l.write(serial.NewObject().Set("Start", l.start).Set("End", l.end))
}

func (l *LineCollider) Clone() ecs.Component {
	return &LineCollider{ColliderBase: l.cloneBase(), start: l.start, end: l.end}
}

// TilemapCollider is a grid of square tiles anchored at the transform's
// translation; tile (x, y) covers [x, x+1)·TileSize by [y, y+1)·TileSize.
// A non-zero tile is solid. Rotation and scale are ignored.
type TilemapCollider struct {
	ColliderBase
	width, height int
	tileSize      float32
	tiles         []int
}

func NewTilemapCollider() *TilemapCollider { return &TilemapCollider{tileSize: 1} }

func (m *TilemapCollider) Kind() Kind { return KindTilemap }

func (m *TilemapCollider) Size() (width, height int) { return m.width, m.height }
func (m *TilemapCollider) TileSize() float32         { return m.tileSize }

// SetTiles replaces the grid. tiles is row-major and must hold width*height
// entries.
func (m *TilemapCollider) SetTiles(width, height int, tileSize float32, tiles []int) error {
	if width < 0 || height < 0 || len(tiles) != width*height {
		return eris.Wrapf(serial.ErrJSONArraySizeMismatch, "%dx%d tilemap needs %d tiles, got %d",
			width, height, width*height, len(tiles))
	}
	m.width, m.height, m.tileSize = width, height, tileSize
	m.tiles = append(m.tiles[:0], tiles...)
	m.changed = true
	return nil
}

// Solid reports whether tile (x, y) is solid; out of range is empty.
func (m *TilemapCollider) Solid(x, y int) bool {
	if x < 0 || y < 0 || x >= m.width || y >= m.height {
		return false
	}
	return m.tiles[y*m.width+x] != 0
}

// SetTile changes one tile.
func (m *TilemapCollider) SetTile(x, y, v int) {
	if x < 0 || y < 0 || x >= m.width || y >= m.height {
		return
	}
	m.tiles[y*m.width+x] = v
	m.changed = true
}

// TileBox is the world-space square of tile (x, y).
func (m *TilemapCollider) TileBox(x, y int) AABB {
	o := m.origin()
	lo := o.Add(mgl32.Vec2{float32(x) * m.tileSize, float32(y) * m.tileSize})
	return AABB{Min: lo, Max: lo.Add(mgl32.Vec2{m.tileSize, m.tileSize})}
}

// TileAt returns the tile containing world point p.
func (m *TilemapCollider) TileAt(p mgl32.Vec2) (x, y int) {
	d := p.Sub(m.origin())
	return int(math.Floor(float64(d.X() / m.tileSize))), int(math.Floor(float64(d.Y() / m.tileSize)))
}

// SolidIn calls fn for every solid tile whose square overlaps box.
func (m *TilemapCollider) SolidIn(box AABB, fn func(x, y int)) {
	if m.tileSize <= 0 {
		return
	}
	x0, y0 := m.TileAt(box.Min)
	x1, y1 := m.TileAt(box.Max)
	x0, y0 = max(x0, 0), max(y0, 0)
	x1, y1 = min(x1, m.width-1), min(y1, m.height-1)
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			if m.Solid(x, y) {
				fn(x, y)
			}
		}
	}
}

func (m *TilemapCollider) Bounds() AABB {
	o := m.origin()
	return AABB{Min: o, Max: o.Add(mgl32.Vec2{float32(m.width) * m.tileSize, float32(m.height) * m.tileSize})}
}

func (m *TilemapCollider) RayCast(origin, dir mgl32.Vec2, maxDistance float32) (RayCastHit, bool) {
	end := origin.Add(dir.Mul(maxDistance))
	span := AABB{
		Min: mgl32.Vec2{min(origin.X(), end.X()), min(origin.Y(), end.Y())},
		Max: mgl32.Vec2{max(origin.X(), end.X()), max(origin.Y(), end.Y())},
	}
	var best RayCastHit
	found := false
	m.SolidIn(span, func(x, y int) {
		t, n, ok := rayBox(origin, dir, m.TileBox(x, y))
		if !ok || t > maxDistance || (found && t >= best.Distance) {
			return
		}
		best = RayCastHit{
			Collider: m, Normal: n, Distance: t, Position: origin.Add(dir.Mul(t)),
			TilePos: [2]int{x, y}, HasTile: true,
		}
		found = true
	})
	return best, found
}

func (m *TilemapCollider) ReadMethods() serial.Methods {
	return append(serial.Methods{
		{Key: "Width", Read: serial.Value(&m.width)},
		{Key: "Height", Read: serial.Value(&m.height)},
		{Key: "TileSize", Read: serial.Value(&m.tileSize)},
		{Key: "Tiles", Read: func(r *serial.Reader, data json.RawMessage) {
			var tiles []int
			serial.Slice(&tiles, serial.Value[int])(r, data)
			if err := m.SetTiles(m.width, m.height, m.tileSize, tiles); err != nil {
				r.Error(err)
			}
		}},
	}, m.readMethods()...)
}

// AfterLoad keeps the grid consistent when Width or Height changed without
// a matching Tiles array.
func (m *TilemapCollider) AfterLoad() {
	if len(m.tiles) != m.width*m.height {
		resized := make([]int, m.width*m.height)
		copy(resized, m.tiles)
		m.tiles = resized
	}
	if m.tileSize <= 0 {
		m.tileSize = 1
	}
	m.changed = true
}

func (m *TilemapCollider) Write() *serial.Object {
	tiles := m.tiles
	if tiles == nil {
		tiles = []int{}
	}
	return m.write(serial.NewObject().
		Set("Width", m.width).
		Set("Height", m.height).
		Set("TileSize", m.tileSize).
		Set("Tiles", tiles))
}

func (m *TilemapCollider) Clone() ecs.Component {
	return &TilemapCollider{
		ColliderBase: m.cloneBase(),
		width:        m.width,
		height:       m.height,
		tileSize:     m.tileSize,
		tiles:        append([]int(nil), m.tiles...),
	}
}

func perp(v mgl32.Vec2) mgl32.Vec2 { return mgl32.Vec2{-v.Y(), v.X()} }

func cross(a, b mgl32.Vec2) float32 { return a.X()*b.Y() - a.Y()*b.X() }

// segmentIntersect intersects p1p2 with q1q2, returning the parameters along
// each segment.
func segmentIntersect(p1, p2, q1, q2 mgl32.Vec2) (t, u float32, ok bool) {
	r, s := p2.Sub(p1), q2.Sub(q1)
	denom := cross(r, s)
	if denom == 0 {
		return 0, 0, false
	}
	qp := q1.Sub(p1)
	t = cross(qp, s) / denom
	u = cross(qp, r) / denom
	if t < 0 || t > 1 || u < 0 || u > 1 {
		return 0, 0, false
	}
	return t, u, true
}

// rayBox is the slab test. It returns the entry distance along dir and the
// face normal; a ray starting inside the box hits at distance 0.
func rayBox(origin, dir mgl32.Vec2, box AABB) (float32, mgl32.Vec2, bool) {
	tmin, tmax := float32(math.Inf(-1)), float32(math.Inf(1))
	var normal mgl32.Vec2
	for axis := 0; axis < 2; axis++ {
		o, d := origin[axis], dir[axis]
		lo, hi := box.Min[axis], box.Max[axis]
		if d == 0 {
			if o < lo || o > hi {
				return 0, mgl32.Vec2{}, false
			}
			continue
		}
		t1, t2 := (lo-o)/d, (hi-o)/d
		var n mgl32.Vec2
		n[axis] = -1
		if t1 > t2 {
			t1, t2 = t2, t1
			n[axis] = 1
		}
		if t1 > tmin {
			tmin, normal = t1, n
		}
		tmax = min(tmax, t2)
		if tmin > tmax {
			return 0, mgl32.Vec2{}, false
		}
	}
	if tmax < 0 {
		return 0, mgl32.Vec2{}, false
	}
	if tmin < 0 {
		return 0, dir.Mul(-1), true
	}
	return tmin, normal, true
}
