package rfb

import "sync"

// damageTracker accumulates the dirty rectangles for one connection
// between successive FramebufferUpdateRequests. It coalesces
// aggressively (union-of-all into a handful of rectangles) rather than
// keeping an exact region: per SPEC_FULL.md §4.3, fragmentation is a
// quality concern, not a correctness one.
type damageTracker struct {
	mu    sync.Mutex
	rects []Rectangle
	all   bool
}

func newDamageTracker() *damageTracker {
	return &damageTracker{}
}

// maxDamageRects bounds how many discrete rectangles accumulate before
// mark collapses them into a single bounding box: a client that
// dirties many small regions between update requests should not make
// the next FramebufferUpdate enumerate each one.
const maxDamageRects = 32

// mark unions rect into the pending region, collapsing to a single
// bounding rectangle once the discrete count gets unwieldy.
func (d *damageTracker) mark(rect Rectangle) {
	if rect.empty() {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.all {
		return
	}
	if len(d.rects) >= maxDamageRects {
		merged := rect
		for _, r := range d.rects {
			merged = merged.union(r)
		}
		d.rects = []Rectangle{merged}
		return
	}
	d.rects = append(d.rects, rect)
}

// markAll replaces the pending region with the full surface, discarding
// any previously accumulated rectangles — a resize or a non-incremental
// request both want "everything", not a growing list of pieces of it.
// The actual bounds are supplied later by drainIntersect, which always
// clips against the surface current at send time.
func (d *damageTracker) markAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.all = true
	d.rects = d.rects[:0]
}

// drainIntersect clips the pending region to bounds and clears it,
// atomically, returning the rectangles to send. Clipping happens here
// rather than at mark time because the surface the client sees may have
// changed between the two.
func (d *damageTracker) drainIntersect(bounds Rectangle) []Rectangle {
	d.mu.Lock()
	defer d.mu.Unlock()

	var pending []Rectangle
	if d.all {
		pending = []Rectangle{bounds}
	} else {
		pending = d.rects
	}
	d.all = false
	d.rects = nil

	out := make([]Rectangle, 0, len(pending))
	for _, r := range pending {
		if clipped, ok := r.intersect(bounds); ok {
			out = append(out, clipped)
		}
	}
	return out
}

// isEmpty reports whether there is nothing pending, used by the
// connection loop to decide whether an update is worth waking up for.
func (d *damageTracker) isEmpty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.all && len(d.rects) == 0
}
