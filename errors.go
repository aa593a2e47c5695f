package rfb

import "errors"

// Sentinel errors returned (often wrapped) by connection and server
// operations. Callers should match against these with errors.Is rather
// than comparing error strings.
var (
	// ErrConnectionClosed means the peer went away or a read came up
	// short. It is not logged as a failure.
	ErrConnectionClosed = errors.New("rfb: connection closed")

	// ErrProtocol means the client sent something the protocol does
	// not allow: a malformed message, an unsupported mandatory
	// feature, or dimensions that don't fit the current surface.
	ErrProtocol = errors.New("rfb: protocol error")

	// ErrAuthFailure means VNCAuth was attempted and neither the
	// primary nor the read-only password matched.
	ErrAuthFailure = errors.New("rfb: authentication failure")

	// ErrResourceLimit means MaxClients was already reached when a
	// new connection arrived.
	ErrResourceLimit = errors.New("rfb: too many clients")

	// ErrConfiguration means NewServer was called with options that
	// can never produce a working server.
	ErrConfiguration = errors.New("rfb: invalid configuration")

	// ErrFatal means the listening socket itself failed in a way
	// that cannot be recovered by closing one connection.
	ErrFatal = errors.New("rfb: fatal listener error")
)
