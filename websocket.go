package rfb

import (
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// wsUpgrader mirrors the permissive defaults used by the websockify-style
// front doors this pattern is drawn from: generous buffers, origin
// checking left to the embedding application (a reverse proxy usually
// owns that decision).
var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	Subprotocols:    []string{"binary"},
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// NewWebSocketHandler returns an http.Handler that upgrades each
// request to a WebSocket and feeds it into the same connection state
// machine TCP clients use, so a browser-based (noVNC-style) client can
// speak RFB over ws:// against this server (SPEC_FULL.md §4.8). It is
// mounted independently of ServeForever/Daemonise/Start — both
// transports can run side by side against the same Server.
func NewWebSocketHandler(s *Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wsConnRaw, err := wsUpgrader.Upgrade(w, r, nil)
		if err != nil {
			s.log.WithError(err).Warn("websocket: upgrade failed")
			return
		}
		s.spawnConnection(newWSConn(wsConnRaw))
	})
}

// wsConn adapts a *websocket.Conn to net.Conn so the RFB state machine
// can treat it exactly like a TCP socket: each Write becomes one binary
// message, and Read drains one message at a time into the caller's
// buffer, carrying over whatever didn't fit into the next Read.
type wsConn struct {
	ws  *websocket.Conn
	buf []byte
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{ws: ws}
}

func (c *wsConn) Read(p []byte) (int, error) {
	for len(c.buf) == 0 {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return 0, err
		}
		c.buf = data
	}
	n := copy(p, c.buf)
	c.buf = c.buf[n:]
	return n, nil
}

func (c *wsConn) Write(p []byte) (int, error) {
	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Close() error                       { return c.ws.Close() }
func (c *wsConn) LocalAddr() net.Addr                { return c.ws.LocalAddr() }
func (c *wsConn) RemoteAddr() net.Addr               { return c.ws.RemoteAddr() }
func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.ws.SetReadDeadline(t); err != nil {
		return err
	}
	return c.ws.SetWriteDeadline(t)
}
func (c *wsConn) SetReadDeadline(t time.Time) error  { return c.ws.SetReadDeadline(t) }
func (c *wsConn) SetWriteDeadline(t time.Time) error { return c.ws.SetWriteDeadline(t) }
