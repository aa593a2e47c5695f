package rfb

import "testing"

func TestDamageTracker_MarkAndDrain(t *testing.T) {
	d := newDamageTracker()
	if !d.isEmpty() {
		t.Fatal("new tracker should be empty")
	}

	d.mark(Rectangle{X: 0, Y: 0, W: 10, H: 10})
	d.mark(Rectangle{X: 5, Y: 5, W: 10, H: 10})
	if d.isEmpty() {
		t.Fatal("tracker should not be empty after mark")
	}

	bounds := Rectangle{X: 0, Y: 0, W: 100, H: 100}
	rects := d.drainIntersect(bounds)
	if len(rects) != 2 {
		t.Fatalf("drainIntersect returned %d rects, want 2", len(rects))
	}
	if !d.isEmpty() {
		t.Fatal("tracker should be empty after drain")
	}
}

func TestDamageTracker_MarkAll_DiscardsDiscreteRects(t *testing.T) {
	d := newDamageTracker()
	d.mark(Rectangle{X: 0, Y: 0, W: 1, H: 1})
	d.markAll()

	bounds := Rectangle{X: 0, Y: 0, W: 50, H: 80}
	rects := d.drainIntersect(bounds)
	if len(rects) != 1 || rects[0] != bounds {
		t.Fatalf("drainIntersect after markAll = %+v, want [%+v]", rects, bounds)
	}
}

func TestDamageTracker_DrainClipsToBounds(t *testing.T) {
	d := newDamageTracker()
	d.mark(Rectangle{X: 40, Y: 40, W: 100, H: 100})

	bounds := Rectangle{X: 0, Y: 0, W: 50, H: 50}
	rects := d.drainIntersect(bounds)
	if len(rects) != 1 {
		t.Fatalf("expected 1 clipped rect, got %d", len(rects))
	}
	want := Rectangle{X: 40, Y: 40, W: 10, H: 10}
	if rects[0] != want {
		t.Fatalf("clipped rect = %+v, want %+v", rects[0], want)
	}
}

func TestDamageTracker_DrainDropsRectsOutsideBounds(t *testing.T) {
	d := newDamageTracker()
	d.mark(Rectangle{X: 200, Y: 200, W: 10, H: 10})

	rects := d.drainIntersect(Rectangle{X: 0, Y: 0, W: 50, H: 50})
	if len(rects) != 0 {
		t.Fatalf("expected no rects, got %v", rects)
	}
}

func TestDamageTracker_CoalescesPastLimit(t *testing.T) {
	d := newDamageTracker()
	for i := 0; i < maxDamageRects+5; i++ {
		d.mark(Rectangle{X: i, Y: i, W: 1, H: 1})
	}
	rects := d.drainIntersect(Rectangle{X: 0, Y: 0, W: 1000, H: 1000})
	if len(rects) != 1 {
		t.Fatalf("expected coalesced single rect, got %d rects", len(rects))
	}
}

func TestRectangle_Union(t *testing.T) {
	a := Rectangle{X: 0, Y: 0, W: 10, H: 10}
	b := Rectangle{X: 5, Y: 5, W: 10, H: 10}
	got := a.union(b)
	want := Rectangle{X: 0, Y: 0, W: 15, H: 15}
	if got != want {
		t.Fatalf("union = %+v, want %+v", got, want)
	}
}

func TestRectangle_WithinSurface(t *testing.T) {
	if !(Rectangle{X: 0, Y: 0, W: 50, H: 80}).withinSurface(50, 80) {
		t.Error("exact-fit rectangle should be within surface")
	}
	if (Rectangle{X: 0, Y: 0, W: 51, H: 80}).withinSurface(50, 80) {
		t.Error("oversize rectangle should not be within surface")
	}
	if (Rectangle{X: -1, Y: 0, W: 10, H: 10}).withinSurface(50, 80) {
		t.Error("negative-origin rectangle should not be within surface")
	}
}
