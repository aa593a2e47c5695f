package rfb

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestWireReaderWriter_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := newWireWriter(&buf)

	if err := w.writeUint8(0x42); err != nil {
		t.Fatalf("writeUint8: %v", err)
	}
	if err := w.writeUint16(0x1234); err != nil {
		t.Fatalf("writeUint16: %v", err)
	}
	if err := w.writeUint32(0xdeadbeef); err != nil {
		t.Fatalf("writeUint32: %v", err)
	}
	if err := w.writeInt32(-223); err != nil {
		t.Fatalf("writeInt32: %v", err)
	}
	if err := w.writeString("hello"); err != nil {
		t.Fatalf("writeString: %v", err)
	}
	if err := w.writePadding(3); err != nil {
		t.Fatalf("writePadding: %v", err)
	}

	r := newWireReader(&buf)
	if v, err := r.readUint8(); err != nil || v != 0x42 {
		t.Fatalf("readUint8 = %d, %v", v, err)
	}
	if v, err := r.readUint16(); err != nil || v != 0x1234 {
		t.Fatalf("readUint16 = %d, %v", v, err)
	}
	if v, err := r.readUint32(); err != nil || v != 0xdeadbeef {
		t.Fatalf("readUint32 = %d, %v", v, err)
	}
	if v, err := r.readInt32(); err != nil || v != -223 {
		t.Fatalf("readInt32 = %d, %v", v, err)
	}
	if s, err := r.readString(16); err != nil || s != "hello" {
		t.Fatalf("readString = %q, %v", s, err)
	}
	if err := r.readPadding(3); err != nil {
		t.Fatalf("readPadding: %v", err)
	}
}

func TestWireReader_ReadString_ExceedsLimit(t *testing.T) {
	var buf bytes.Buffer
	w := newWireWriter(&buf)
	if err := w.writeString("too long"); err != nil {
		t.Fatalf("writeString: %v", err)
	}
	r := newWireReader(&buf)
	if _, err := r.readString(4); !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
}

func TestWireReader_ShortRead_IsConnectionClosed(t *testing.T) {
	r := newWireReader(bytes.NewReader(nil))
	if _, err := r.readUint8(); !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("expected ErrConnectionClosed, got %v", err)
	}
}

func TestIsClosedConnErr(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{io.EOF, true},
		{io.ErrUnexpectedEOF, true},
		{ErrConnectionClosed, true},
		{ErrProtocol, false},
	}
	for _, c := range cases {
		if got := isClosedConnErr(c.err); got != c.want {
			t.Errorf("isClosedConnErr(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}
