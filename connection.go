package rfb

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	version38 = protocolVersion{Major: 3, Minor: 8}
	version37 = protocolVersion{Major: 3, Minor: 7}
	version33 = protocolVersion{Major: 3, Minor: 3}
)

// Client-to-server message type bytes (RFC 6143 §7.5).
const (
	msgSetPixelFormat           = 0
	msgSetEncodings             = 2
	msgFramebufferUpdateRequest = 3
	msgKeyEvent                 = 4
	msgPointerEvent             = 5
	msgClientCutText            = 6
)

const msgFramebufferUpdate = 0 // server-to-client

// encoding numbers recognised by SetEncodings (RFC 6143 §7.7).
const (
	encodingRaw         int32 = 0
	encodingCopyRect    int32 = 1
	encodingDesktopSize int32 = -223
	encodingDesktopName int32 = -307
)

const maxClientCutTextLen = 1 << 20 // generous cap against a hostile length prefix

// connection is one client's RFB session: its own socket, pixel format,
// negotiated encodings, damage tracker and a dedicated sender goroutine
// that flushes framebuffer updates as they become due. See
// SPEC_FULL.md §4.5 for the full state machine.
type connection struct {
	id         string
	conn       net.Conn
	server     *Server
	hub        *framebufferHub
	log        *logrus.Entry
	readOnly   bool

	pixelFormatMu sync.Mutex
	pixelFormat   PixelFormat

	encodingsMu         sync.Mutex
	encodings           []int32
	supportsDesktopSize bool
	supportsDesktopName bool

	damage            *damageTracker
	pendingSizeChange atomic.Bool
	pendingNameChange atomic.Bool
	updateRequested   atomic.Bool

	writeMu sync.Mutex
	wakeCh  chan struct{}
	doneCh  chan struct{}
	closeOnce sync.Once

	lastButtonsMu sync.Mutex
	lastButtons   uint8
}

func newConnection(server *Server, netConn net.Conn) *connection {
	id := uuid.NewString()
	c := &connection{
		id:          id,
		conn:        netConn,
		server:      server,
		hub:         server.hub,
		log:         connLogger(server.log, id, netConn.RemoteAddr().String()),
		pixelFormat: ServerNativeFormat,
		damage:      newDamageTracker(),
		wakeCh:      make(chan struct{}, 1),
		doneCh:      make(chan struct{}),
	}
	return c
}

// wake nudges the sender goroutine to re-check whether an update is
// due. It never blocks: a pending wakeup is as good as two.
func (c *connection) wake() {
	select {
	case c.wakeCh <- struct{}{}:
	default:
	}
}

func (c *connection) close() {
	c.closeOnce.Do(func() {
		close(c.doneCh)
		c.conn.Close()
	})
}

// serve runs the full per-connection lifecycle: handshake, then the
// read loop and sender loop concurrently until either exits. It never
// returns an error to the caller — all failures are logged and simply
// end the connection, per SPEC_FULL.md §7 ("errors in one connection
// never affect others").
func (c *connection) serve() {
	defer c.close()
	defer c.hub.unregister(c)

	deadline := time.Now().Add(c.server.config.HandshakeTimeout)
	if c.server.config.HandshakeTimeout > 0 {
		_ = c.conn.SetDeadline(deadline)
	}

	if err := c.handshake(); err != nil {
		if isClosedConnErr(err) {
			c.log.Debug("connection closed during handshake")
		} else {
			c.log.WithError(err).Warn("handshake failed")
		}
		return
	}
	if c.server.config.HandshakeTimeout > 0 {
		_ = c.conn.SetDeadline(time.Time{})
	}

	c.hub.register(c)
	c.log.Info("client connected")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.senderLoop()
	}()

	c.readLoop()
	c.close()
	wg.Wait()
	c.log.Info("client disconnected")
}

// handshake runs Accepted -> Versioned -> Securing -> Inited_pending,
// returning once ServerInit has been sent successfully.
func (c *connection) handshake() error {
	negotiated, err := c.negotiateVersion()
	if err != nil {
		return err
	}

	if max := c.server.config.MaxClients; max > 0 && c.server.connCount() > max {
		return c.rejectResourceLimit(negotiated)
	}

	readOnly, err := c.negotiateSecurity(negotiated)
	if err != nil {
		return err
	}
	c.readOnly = readOnly

	return c.performInit()
}

// rejectResourceLimit completes just enough of the Securing state to
// stay protocol-conformant, then fails every security type with
// "too many clients" (SPEC_FULL.md §7, ErrResourceLimit). The
// connection is never registered with the hub.
func (c *connection) rejectResourceLimit(version protocolVersion) error {
	types := c.server.config.securityTypes()
	w := newWireWriter(c.conn)
	if version == version33 {
		if err := w.writeUint32(uint32(types[0])); err != nil {
			return err
		}
	} else {
		if err := w.writeUint8(uint8(len(types))); err != nil {
			return err
		}
		for _, t := range types {
			if err := w.writeUint8(uint8(t)); err != nil {
				return err
			}
		}
		if _, err := newWireReader(c.conn).readUint8(); err != nil {
			return err
		}
	}
	_ = c.sendSecurityFailure(version, "too many clients")
	return ErrResourceLimit
}

func (c *connection) negotiateVersion() (protocolVersion, error) {
	serverMax, err := parseProtocolVersion(c.server.config.ProtocolVersionMax)
	if err != nil {
		return protocolVersion{}, err
	}
	w := newWireWriter(c.conn)
	if err := w.writeBytes([]byte(serverMax.String())); err != nil {
		return protocolVersion{}, err
	}

	var buf [12]byte
	r := newWireReader(c.conn)
	if err := r.readFull(buf[:]); err != nil {
		return protocolVersion{}, err
	}
	client, err := parseProtocolVersion(string(buf[:]))
	if err != nil {
		return protocolVersion{}, err
	}

	negotiated := negotiateVersion(serverMax, client)
	switch {
	case negotiated.atLeast(version38):
		return version38, nil
	case negotiated.atLeast(version37):
		return version37, nil
	default:
		return version33, nil
	}
}

// negotiateSecurity runs the Securing state and returns whether the
// connection should be treated as read-only.
func (c *connection) negotiateSecurity(version protocolVersion) (bool, error) {
	types := c.server.config.securityTypes()
	r := newWireReader(c.conn)
	w := newWireWriter(c.conn)

	var chosen securityType
	if version == version33 {
		// RFB 3.3: the server dictates the type unilaterally.
		chosen = types[0]
		if err := w.writeUint32(uint32(chosen)); err != nil {
			return false, err
		}
	} else {
		if err := w.writeUint8(uint8(len(types))); err != nil {
			return false, err
		}
		for _, t := range types {
			if err := w.writeUint8(uint8(t)); err != nil {
				return false, err
			}
		}
		selected, err := r.readUint8()
		if err != nil {
			return false, err
		}
		chosen = securityType(selected)
	}

	switch chosen {
	case securityNone:
		return false, c.sendSecuritySuccess()
	case securityVNCAuth:
		return c.runVNCAuth(version)
	default:
		_ = c.sendSecurityFailure(version, "unsupported security type")
		return false, fmt.Errorf("%w: client selected unsupported security type %d", ErrProtocol, chosen)
	}
}

func (c *connection) runVNCAuth(version protocolVersion) (bool, error) {
	challenge, err := generateChallenge()
	if err != nil {
		return false, fmt.Errorf("%w: generating VNCAuth challenge: %v", ErrFatal, err)
	}
	w := newWireWriter(c.conn)
	if err := w.writeBytes(challenge); err != nil {
		return false, err
	}

	r := newWireReader(c.conn)
	response := make([]byte, challengeSize)
	if err := r.readFull(response); err != nil {
		return false, err
	}

	if expected, ok := vncAuthResponse(c.server.config.Password, challenge); ok && constantTimeEqual(response, expected) {
		return false, c.sendSecuritySuccess()
	}
	if c.server.config.ReadOnlyPassword != "" {
		if expected, ok := vncAuthResponse(c.server.config.ReadOnlyPassword, challenge); ok && constantTimeEqual(response, expected) {
			return true, c.sendSecuritySuccess()
		}
	}
	_ = c.sendSecurityFailure(version, "Authentication failure")
	return false, ErrAuthFailure
}

func (c *connection) sendSecuritySuccess() error {
	return newWireWriter(c.conn).writeUint32(0)
}

// sendSecurityFailure writes SecurityResult=1, plus a length-prefixed
// reason string when the client speaks 3.8 (3.3/3.7 just get the
// status word and then the socket closes).
func (c *connection) sendSecurityFailure(version protocolVersion, reason string) error {
	w := newWireWriter(c.conn)
	if err := w.writeUint32(1); err != nil {
		return err
	}
	if version.atLeast(version38) {
		return w.writeString(reason)
	}
	return nil
}

func (c *connection) performInit() error {
	r := newWireReader(c.conn)
	w := newWireWriter(c.conn)

	if err := r.readPadding(1); err != nil { // shared-flag byte, unused
		return err
	}

	surface := c.hub.snapshotSurface()
	if err := w.writeUint16(uint16(surface.Width)); err != nil {
		return err
	}
	if err := w.writeUint16(uint16(surface.Height)); err != nil {
		return err
	}
	if err := w.writePixelFormat(c.pixelFormat); err != nil {
		return err
	}
	return w.writeString(c.hub.snapshotName())
}

// readLoop is the Running-state message loop: read a 1-byte message
// type, dispatch, repeat until the connection closes or a protocol
// error ends it.
func (c *connection) readLoop() {
	r := newWireReader(c.conn)
	for {
		msgType, err := r.readUint8()
		if err != nil {
			if isClosedConnErr(err) {
				c.log.Debug("read loop: connection closed")
			} else {
				c.log.WithError(err).Warn("read loop: protocol error")
			}
			return
		}
		if err := c.dispatch(r, msgType); err != nil {
			if isClosedConnErr(err) {
				c.log.Debug("read loop: connection closed")
			} else {
				c.log.WithError(err).Warn("read loop: message handling failed")
			}
			return
		}
	}
}

func (c *connection) dispatch(r *wireReader, msgType uint8) error {
	switch msgType {
	case msgSetPixelFormat:
		return c.handleSetPixelFormat(r)
	case msgSetEncodings:
		return c.handleSetEncodings(r)
	case msgFramebufferUpdateRequest:
		return c.handleFramebufferUpdateRequest(r)
	case msgKeyEvent:
		return c.handleKeyEvent(r)
	case msgPointerEvent:
		return c.handlePointerEvent(r)
	case msgClientCutText:
		return c.handleClientCutText(r)
	default:
		return fmt.Errorf("%w: unknown message type %d", ErrProtocol, msgType)
	}
}

func (c *connection) handleSetPixelFormat(r *wireReader) error {
	if err := r.readPadding(3); err != nil {
		return err
	}
	pf, err := readPixelFormat(r)
	if err != nil {
		return err
	}
	if err := pf.validate(); err != nil {
		return err
	}
	c.pixelFormatMu.Lock()
	c.pixelFormat = pf
	c.pixelFormatMu.Unlock()

	c.damage.markAll()
	c.wake()
	return nil
}

func (c *connection) handleSetEncodings(r *wireReader) error {
	if err := r.readPadding(1); err != nil {
		return err
	}
	count, err := r.readUint16()
	if err != nil {
		return err
	}
	encodings := make([]int32, count)
	desktopSize, desktopName := false, false
	for i := range encodings {
		e, err := r.readInt32()
		if err != nil {
			return err
		}
		encodings[i] = e
		switch e {
		case encodingDesktopSize:
			desktopSize = true
		case encodingDesktopName:
			desktopName = true
		}
	}
	c.encodingsMu.Lock()
	c.encodings = encodings
	c.supportsDesktopSize = desktopSize
	c.supportsDesktopName = desktopName
	c.encodingsMu.Unlock()
	return nil
}

func (c *connection) handleFramebufferUpdateRequest(r *wireReader) error {
	incremental, err := r.readUint8()
	if err != nil {
		return err
	}
	// x, y, w, h: the requested rectangle. This server always answers
	// with the full damaged region rather than clipping to it, so the
	// values only need to be consumed off the wire.
	if _, err := r.readUint16(); err != nil {
		return err
	}
	if _, err := r.readUint16(); err != nil {
		return err
	}
	if _, err := r.readUint16(); err != nil {
		return err
	}
	if _, err := r.readUint16(); err != nil {
		return err
	}
	if incremental == 0 {
		c.damage.markAll()
	}
	c.updateRequested.Store(true)
	c.wake()
	return nil
}

func (c *connection) handleKeyEvent(r *wireReader) error {
	down, err := r.readUint8()
	if err != nil {
		return err
	}
	if err := r.readPadding(2); err != nil {
		return err
	}
	sym, err := r.readUint32()
	if err != nil {
		return err
	}
	if !c.readOnly {
		c.server.events.put(KeyEvent{Sym: sym, Down: down != 0})
	}
	return nil
}

func (c *connection) handlePointerEvent(r *wireReader) error {
	buttons, err := r.readUint8()
	if err != nil {
		return err
	}
	x, err := r.readUint16()
	if err != nil {
		return err
	}
	y, err := r.readUint16()
	if err != nil {
		return err
	}
	if c.readOnly {
		return nil
	}

	c.lastButtonsMu.Lock()
	old := c.lastButtons
	c.lastButtons = buttons
	c.lastButtonsMu.Unlock()

	c.server.events.put(PointerMoveEvent{X: int32(x), Y: int32(y), Buttons: buttons})
	for _, click := range diffPointerEvents(int32(x), int32(y), old, buttons) {
		c.server.events.put(click)
	}
	return nil
}

func (c *connection) handleClientCutText(r *wireReader) error {
	if err := r.readPadding(3); err != nil {
		return err
	}
	length, err := r.readUint32()
	if err != nil {
		return err
	}
	if length > maxClientCutTextLen {
		return fmt.Errorf("%w: ClientCutText length %d exceeds limit", ErrProtocol, length)
	}
	buf := make([]byte, length)
	if err := r.readFull(buf); err != nil {
		return err
	}
	// Parsed and discarded: no clipboard extension in this profile.
	return nil
}
