package model

// Vec2 is a point or extent in arena units.
type Vec2 struct {
	X float64
	Y float64
}

// Add returns v + other.
func (v Vec2) Add(other Vec2) Vec2 {
	return Vec2{X: v.X + other.X, Y: v.Y + other.Y}
}

// Rect is an axis-aligned rectangle given by its minimum corner and size.
type Rect struct {
	Origin Vec2
	Size   Vec2
}

// NewRect builds a rectangle from origin and width/height.
func NewRect(x, y, w, h float64) Rect {
	return Rect{Origin: Vec2{X: x, Y: y}, Size: Vec2{X: w, Y: h}}
}

func (r Rect) MinX() float64 { return r.Origin.X }
func (r Rect) MinY() float64 { return r.Origin.Y }
func (r Rect) MaxX() float64 { return r.Origin.X + r.Size.X }
func (r Rect) MaxY() float64 { return r.Origin.Y + r.Size.Y }

// Contains reports whether other lies fully inside r. Shared edges count as
// inside.
func (r Rect) Contains(other Rect) bool {
	return other.MinX() >= r.MinX() && other.MaxX() <= r.MaxX() &&
		other.MinY() >= r.MinY() && other.MaxY() <= r.MaxY()
}

// Intersects reports whether r and other overlap on both axes. Touching edges
// count as an intersection.
func (r Rect) Intersects(other Rect) bool {
	return r.MinX() <= other.MaxX() && other.MinX() <= r.MaxX() &&
		r.MinY() <= other.MaxY() && other.MinY() <= r.MaxY()
}

// Agent is a single simulated entity. The registry owns every Agent; other
// components receive pointers and mutate in place.
type Agent struct {
	ID       string
	Species  Species
	Position Vec2 // minimum corner of the footprint
	Size     Vec2
}

// Footprint returns the agent's current axis-aligned extent.
func (a *Agent) Footprint() Rect {
	return Rect{Origin: a.Position, Size: a.Size}
}
