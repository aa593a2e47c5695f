package rfb

import "fmt"

// pendingRectangle is a fully-encoded rectangle body ready to be
// written to the wire: header fields plus payload bytes. Pseudo-encoded
// rectangles (DesktopSize, DesktopName) and Raw pixel rectangles both
// flow through this same shape so sendUpdate can write them uniformly.
type pendingRectangle struct {
	rect     Rectangle
	encoding int32
	payload  []byte
}

// senderLoop is the connection's dedicated sender goroutine: it wakes
// whenever wake() fires (a client FramebufferUpdateRequest, new
// damage, a pending resize/rename) and sends one FramebufferUpdate
// whenever a request is outstanding and there is something to say.
// This keeps at most one update in flight per connection, satisfying
// the latch described in SPEC_FULL.md §4.5 for free: there is only one
// goroutine that could ever be sending.
func (c *connection) senderLoop() {
	for {
		select {
		case <-c.doneCh:
			return
		case <-c.wakeCh:
		}

		for c.updateDue() {
			if err := c.sendUpdate(); err != nil {
				if isClosedConnErr(err) {
					c.log.Debug("sender: connection closed")
				} else {
					c.log.WithError(err).Warn("sender: failed to write update")
				}
				c.close()
				return
			}
		}

		select {
		case <-c.doneCh:
			return
		default:
		}
	}
}

// updateDue reports whether the sender has an outstanding request and
// something worth sending for it.
func (c *connection) updateDue() bool {
	if !c.updateRequested.Load() {
		return false
	}
	return c.pendingSizeChange.Load() || c.pendingNameChange.Load() || !c.damage.isEmpty()
}

// sendUpdate performs one FramebufferUpdate: it assembles any pending
// pseudo-rectangles and the drained damage, converts pixels under the
// external SurfaceLock, and writes the whole thing atomically under
// writeMu. The update-requested latch is consumed before the rectangle
// list is assembled, so a request that arrives mid-assembly sets it
// again and is answered by senderLoop's next pass.
func (c *connection) sendUpdate() error {
	c.updateRequested.Store(false)

	var rects []pendingRectangle

	if c.pendingSizeChange.CompareAndSwap(true, false) {
		surface := c.hub.snapshotSurface()
		c.encodingsMu.Lock()
		supportsDesktopSize := c.supportsDesktopSize
		c.encodingsMu.Unlock()
		if supportsDesktopSize {
			rects = append(rects, pendingRectangle{
				rect:     surface.Bounds(),
				encoding: encodingDesktopSize,
			})
		}
	}

	if c.pendingNameChange.CompareAndSwap(true, false) {
		c.encodingsMu.Lock()
		supportsDesktopName := c.supportsDesktopName
		c.encodingsMu.Unlock()
		if supportsDesktopName {
			name := c.hub.snapshotName()
			rects = append(rects, pendingRectangle{
				encoding: encodingDesktopName,
				payload:  encodeLengthPrefixedString(name),
			})
		}
	}

	surface := c.hub.snapshotSurface()
	bounds := surface.Bounds()
	damageRects := c.damage.drainIntersect(bounds)
	if len(damageRects) > 0 {
		c.pixelFormatMu.Lock()
		pf := c.pixelFormat
		c.pixelFormatMu.Unlock()

		c.server.surfaceLock.Lock()
		for _, r := range damageRects {
			payload := convertRectangle(pf, surface.Pixels, surface.Stride, r)
			rects = append(rects, pendingRectangle{rect: r, encoding: encodingRaw, payload: payload})
		}
		c.server.surfaceLock.Unlock()
	}

	if len(rects) == 0 {
		return nil
	}

	for _, r := range rects {
		if r.encoding == encodingRaw && !r.rect.withinSurface(surface.Width, surface.Height) {
			return fmt.Errorf("%w: rectangle %+v outside surface %dx%d", ErrProtocol, r.rect, surface.Width, surface.Height)
		}
	}

	return c.writeFramebufferUpdate(rects)
}

func (c *connection) writeFramebufferUpdate(rects []pendingRectangle) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	w := newWireWriter(c.conn)
	if err := w.writeUint8(msgFramebufferUpdate); err != nil {
		return err
	}
	if err := w.writePadding(1); err != nil {
		return err
	}
	if err := w.writeUint16(uint16(len(rects))); err != nil {
		return err
	}
	for _, r := range rects {
		if err := w.writeUint16(uint16(r.rect.X)); err != nil {
			return err
		}
		if err := w.writeUint16(uint16(r.rect.Y)); err != nil {
			return err
		}
		if err := w.writeUint16(uint16(r.rect.W)); err != nil {
			return err
		}
		if err := w.writeUint16(uint16(r.rect.H)); err != nil {
			return err
		}
		if err := w.writeInt32(r.encoding); err != nil {
			return err
		}
		if len(r.payload) > 0 {
			if err := w.writeBytes(r.payload); err != nil {
				return err
			}
		}
	}
	return nil
}

// encodeLengthPrefixedString builds the 4-byte-length-prefixed string
// payload DesktopName pseudo-rectangles carry in place of pixel data.
func encodeLengthPrefixedString(s string) []byte {
	buf := make([]byte, 4+len(s))
	putBeUint32(buf[:4], uint32(len(s)))
	copy(buf[4:], s)
	return buf
}

func putBeUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}
