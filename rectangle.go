package rfb

// Rectangle is a pixel-coordinate region, used both for client-requested
// update areas and for the dirty regions the damage tracker hands back.
type Rectangle struct {
	X, Y, W, H int
}

// empty reports whether the rectangle covers no pixels.
func (r Rectangle) empty() bool {
	return r.W <= 0 || r.H <= 0
}

// intersect returns the overlap of r and bounds, with ok=false if they
// do not overlap at all.
func (r Rectangle) intersect(bounds Rectangle) (Rectangle, bool) {
	x0 := max(r.X, bounds.X)
	y0 := max(r.Y, bounds.Y)
	x1 := min(r.X+r.W, bounds.X+bounds.W)
	y1 := min(r.Y+r.H, bounds.Y+bounds.H)
	if x1 <= x0 || y1 <= y0 {
		return Rectangle{}, false
	}
	return Rectangle{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}, true
}

// union returns the smallest rectangle containing both r and other. It
// is used by the damage tracker to coalesce overlapping or adjacent
// rectangles; some over-approximation (covering more area than the
// strict union of the two inputs) is acceptable per the damage model.
func (r Rectangle) union(other Rectangle) Rectangle {
	if r.empty() {
		return other
	}
	if other.empty() {
		return r
	}
	x0 := min(r.X, other.X)
	y0 := min(r.Y, other.Y)
	x1 := max(r.X+r.W, other.X+other.W)
	y1 := max(r.Y+r.H, other.Y+other.H)
	return Rectangle{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// withinSurface reports whether the rectangle is fully inside a
// surface of the given width and height, per the §3 invariant that is
// re-checked at send time against the *current* surface.
func (r Rectangle) withinSurface(width, height int) bool {
	return r.X >= 0 && r.Y >= 0 && r.X+r.W <= width && r.Y+r.H <= height
}
