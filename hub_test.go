package rfb

import "testing"

func newTestSurface(w, h int) Surface {
	return NewSurface(w, h, make([]byte, w*h*4))
}

func TestFramebufferHub_SnapshotSurfaceAndName(t *testing.T) {
	h := newFramebufferHub(newTestSurface(10, 10), "x")
	if got := h.snapshotName(); got != "x" {
		t.Fatalf("snapshotName() = %q, want %q", got, "x")
	}
	s := h.snapshotSurface()
	if s.Width != 10 || s.Height != 10 {
		t.Fatalf("snapshotSurface() = %+v", s)
	}
}

func TestFramebufferHub_ChangeSurface_MarksEveryConnection(t *testing.T) {
	h := newFramebufferHub(newTestSurface(100, 100), "x")
	c1 := &connection{damage: newDamageTracker(), wakeCh: make(chan struct{}, 1)}
	c2 := &connection{damage: newDamageTracker(), wakeCh: make(chan struct{}, 1)}
	h.register(c1)
	h.register(c2)

	h.changeSurface(newTestSurface(50, 80))

	for _, c := range []*connection{c1, c2} {
		if !c.pendingSizeChange.Load() {
			t.Error("expected pendingSizeChange to be set")
		}
		if c.damage.isEmpty() {
			t.Error("expected full damage after resize")
		}
		select {
		case <-c.wakeCh:
		default:
			t.Error("expected a wake signal")
		}
	}

	got := h.snapshotSurface()
	if got.Width != 50 || got.Height != 80 {
		t.Fatalf("snapshotSurface() after change = %+v", got)
	}
}

func TestFramebufferHub_ChangeName_DoesNotForceDamage(t *testing.T) {
	h := newFramebufferHub(newTestSurface(10, 10), "old")
	c := &connection{damage: newDamageTracker(), wakeCh: make(chan struct{}, 1)}
	h.register(c)

	h.changeName("new")

	if !c.pendingNameChange.Load() {
		t.Error("expected pendingNameChange to be set")
	}
	if !c.damage.isEmpty() {
		t.Error("changeName should not force damage")
	}
	if h.snapshotName() != "new" {
		t.Fatalf("snapshotName() = %q, want %q", h.snapshotName(), "new")
	}
}

func TestFramebufferHub_MarkDamage_UnionsIntoLiveConns(t *testing.T) {
	h := newFramebufferHub(newTestSurface(10, 10), "x")
	c := &connection{damage: newDamageTracker(), wakeCh: make(chan struct{}, 1)}
	h.register(c)

	h.markDamage(Rectangle{X: 1, Y: 1, W: 2, H: 2})
	if c.damage.isEmpty() {
		t.Error("expected damage after markDamage")
	}
}

func TestFramebufferHub_Unregister(t *testing.T) {
	h := newFramebufferHub(newTestSurface(10, 10), "x")
	c := &connection{damage: newDamageTracker(), wakeCh: make(chan struct{}, 1)}
	h.register(c)
	h.unregister(c)
	h.markDamage(Rectangle{X: 0, Y: 0, W: 1, H: 1})
	if !c.damage.isEmpty() {
		t.Error("unregistered connection should not receive damage")
	}
}
