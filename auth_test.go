package rfb

import (
	"bytes"
	"crypto/des"
	"testing"
)

func TestReverseBits(t *testing.T) {
	cases := map[byte]byte{
		0x00: 0x00,
		0xFF: 0xFF,
		0x01: 0x80,
		0x80: 0x01,
		0b00000110: 0b01100000,
	}
	for in, want := range cases {
		if got := reverseBits(in); got != want {
			t.Errorf("reverseBits(%08b) = %08b, want %08b", in, got, want)
		}
	}
}

func TestVNCAuthKey_PadsAndReverses(t *testing.T) {
	key := vncAuthKey("pw")
	if len(key) != 8 {
		t.Fatalf("key length = %d, want 8", len(key))
	}
	want := []byte{reverseBits('p'), reverseBits('w'), 0, 0, 0, 0, 0, 0}
	if !bytes.Equal(key, want) {
		t.Fatalf("vncAuthKey(\"pw\") = % x, want % x", key, want)
	}
}

func TestVNCAuthKey_Truncates(t *testing.T) {
	key := vncAuthKey("a very long password indeed")
	if len(key) != 8 {
		t.Fatalf("key length = %d, want 8", len(key))
	}
	for i, b := range []byte("a very l") {
		if key[i] != reverseBits(b) {
			t.Fatalf("key[%d] = %08b, want %08b", i, key[i], reverseBits(b))
		}
	}
}

// TestVNCAuthResponse_Scenario2 is the literal VNCAuth-success scenario:
// a zeroed challenge encrypted under the bit-reversed "pw" key must
// match what the server itself computes.
func TestVNCAuthResponse_Scenario2(t *testing.T) {
	challenge := make([]byte, challengeSize)

	block, err := des.NewCipher(vncAuthKey("pw"))
	if err != nil {
		t.Fatalf("des.NewCipher: %v", err)
	}
	want := make([]byte, challengeSize)
	block.Encrypt(want[:8], challenge[:8])
	block.Encrypt(want[8:], challenge[8:])

	got, ok := vncAuthResponse("pw", challenge)
	if !ok {
		t.Fatal("vncAuthResponse returned ok=false for non-empty password")
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("vncAuthResponse = % x, want % x", got, want)
	}
}

func TestVNCAuthResponse_EmptyPassword(t *testing.T) {
	if _, ok := vncAuthResponse("", make([]byte, challengeSize)); ok {
		t.Fatal("expected ok=false for empty password")
	}
}

// TestVNCAuthResponse_ReadOnlyPath mirrors scenario 3: the read-only
// password's response must match vncAuthResponse's own computation so
// the read-only branch in runVNCAuth is reachable independent
// of the main password.
func TestVNCAuthResponse_ReadOnlyPath(t *testing.T) {
	challenge, err := generateChallenge()
	if err != nil {
		t.Fatalf("generateChallenge: %v", err)
	}

	mainResp, ok := vncAuthResponse("abc", challenge)
	if !ok {
		t.Fatal("expected main password response")
	}
	roResp, ok := vncAuthResponse("xyz", challenge)
	if !ok {
		t.Fatal("expected read-only password response")
	}
	if bytes.Equal(mainResp, roResp) {
		t.Fatal("distinct passwords must not produce identical responses")
	}

	if !constantTimeEqual(roResp, roResp) {
		t.Fatal("constantTimeEqual should accept identical slices")
	}
	if constantTimeEqual(mainResp, roResp) {
		t.Fatal("constantTimeEqual should reject distinct responses")
	}
}

func TestGenerateChallenge_UsesOverriddenReader(t *testing.T) {
	orig := randReader
	defer func() { randReader = orig }()

	randReader = bytes.NewReader(bytes.Repeat([]byte{0x07}, challengeSize))
	got, err := generateChallenge()
	if err != nil {
		t.Fatalf("generateChallenge: %v", err)
	}
	want := bytes.Repeat([]byte{0x07}, challengeSize)
	if !bytes.Equal(got, want) {
		t.Fatalf("generateChallenge = % x, want % x", got, want)
	}
}
