package rfb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// wireReader reads the fixed-width integers and length-prefixed strings
// that make up the RFB binary protocol. A short read of any kind is
// reported as ErrConnectionClosed: the protocol never leaves a partially
// consumed message lying around for the caller to misinterpret.
type wireReader struct {
	r io.Reader
}

func newWireReader(r io.Reader) *wireReader {
	return &wireReader{r: r}
}

func (w *wireReader) readFull(buf []byte) error {
	_, err := io.ReadFull(w.r, buf)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionClosed, err)
	}
	return nil
}

func (w *wireReader) readUint8() (uint8, error) {
	var buf [1]byte
	if err := w.readFull(buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (w *wireReader) readUint16() (uint16, error) {
	var buf [2]byte
	if err := w.readFull(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

func (w *wireReader) readUint32() (uint32, error) {
	var buf [4]byte
	if err := w.readFull(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func (w *wireReader) readInt32() (int32, error) {
	v, err := w.readUint32()
	return int32(v), err
}

// readString reads a 4-byte big-endian length followed by that many
// bytes of UTF-8 text.
func (w *wireReader) readString(maxLen uint32) (string, error) {
	n, err := w.readUint32()
	if err != nil {
		return "", err
	}
	if n > maxLen {
		return "", fmt.Errorf("%w: string length %d exceeds limit %d", ErrProtocol, n, maxLen)
	}
	buf := make([]byte, n)
	if err := w.readFull(buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func (w *wireReader) readPadding(n int) error {
	if n <= 0 {
		return nil
	}
	buf := make([]byte, n)
	return w.readFull(buf)
}

// wireWriter writes the same primitives in the same big-endian wire
// format. Writes are not buffered here; callers that need atomicity
// across several writes (one FramebufferUpdate, say) hold the
// connection's writeMu for the duration.
type wireWriter struct {
	w io.Writer
}

func newWireWriter(w io.Writer) *wireWriter {
	return &wireWriter{w: w}
}

func (w *wireWriter) writeBytes(buf []byte) error {
	_, err := w.w.Write(buf)
	return err
}

func (w *wireWriter) writeUint8(v uint8) error {
	return w.writeBytes([]byte{v})
}

func (w *wireWriter) writeUint16(v uint16) error {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	return w.writeBytes(buf[:])
}

func (w *wireWriter) writeUint32(v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	return w.writeBytes(buf[:])
}

func (w *wireWriter) writeInt32(v int32) error {
	return w.writeUint32(uint32(v))
}

func (w *wireWriter) writeString(s string) error {
	if err := w.writeUint32(uint32(len(s))); err != nil {
		return err
	}
	return w.writeBytes([]byte(s))
}

func (w *wireWriter) writePadding(n int) error {
	if n <= 0 {
		return nil
	}
	return w.writeBytes(make([]byte, n))
}

// isClosedConnErr reports whether err indicates the peer closed the
// socket, as opposed to some other I/O failure worth logging loudly.
func isClosedConnErr(err error) bool {
	return err != nil && (errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, ErrConnectionClosed))
}
