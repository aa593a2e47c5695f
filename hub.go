package rfb

import (
	"sync"
	"sync/atomic"
)

// framebufferHub owns the current surface and desktop name and knows
// about every live connection, so it can fan changes made by the
// animator out to all of them (SPEC_FULL.md §4.6). It never blocks on a
// slow connection beyond what that connection's own writeMu demands.
type framebufferHub struct {
	surface atomic.Pointer[Surface]

	mu          sync.Mutex
	desktopName string
	conns       map[*connection]struct{}
}

func newFramebufferHub(initial Surface, desktopName string) *framebufferHub {
	h := &framebufferHub{
		desktopName: desktopName,
		conns:       make(map[*connection]struct{}),
	}
	h.surface.Store(&initial)
	return h
}

// register adds a connection to the broadcast set. It is called once
// the connection has finished its handshake and is ready to receive
// damage/pending-change notifications.
func (h *framebufferHub) register(c *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c] = struct{}{}
}

// unregister removes a connection, called on close.
func (h *framebufferHub) unregister(c *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c)
}

// snapshotSurface returns the current surface descriptor. Callers must
// hold the external SurfaceLock before reading Pixels through it.
func (h *framebufferHub) snapshotSurface() Surface {
	return *h.surface.Load()
}

// snapshotName returns the current desktop name.
func (h *framebufferHub) snapshotName() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.desktopName
}

// markDamage unions rect into every live connection's damage tracker.
func (h *framebufferHub) markDamage(rect Rectangle) {
	for _, c := range h.liveConns() {
		c.damage.mark(rect)
		c.wake()
	}
}

// changeSurface atomically swaps in newSurface, marks every connection
// for a full resend (pending size-change pseudo-rect plus full damage),
// per SPEC_FULL.md §4.6.
func (h *framebufferHub) changeSurface(newSurface Surface) {
	h.surface.Store(&newSurface)
	for _, c := range h.liveConns() {
		c.pendingSizeChange.Store(true)
		c.damage.markAll()
		c.wake()
	}
}

// changeName updates the desktop name and marks every connection with
// a pending name-change pseudo-rect. It does not force damage.
func (h *framebufferHub) changeName(name string) {
	h.mu.Lock()
	h.desktopName = name
	h.mu.Unlock()
	for _, c := range h.liveConns() {
		c.pendingNameChange.Store(true)
		c.wake()
	}
}

func (h *framebufferHub) liveConns() []*connection {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*connection, 0, len(h.conns))
	for c := range h.conns {
		out = append(out, c)
	}
	return out
}
