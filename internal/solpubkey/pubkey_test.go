package solpubkey

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	var k Key
	for i := range k {
		k[i] = byte(i * 7)
	}

	encoded := k.String()
	decoded, err := Parse(encoded)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if decoded != k {
		t.Errorf("round trip mismatch: got %x, want %x", decoded, k)
	}
}

func TestParseInvalidLength(t *testing.T) {
	_, err := Parse(base58Encode([]byte{1, 2, 3}))
	if err == nil {
		t.Fatal("expected error for short decoded key")
	}
}

func TestParseInvalidCharacter(t *testing.T) {
	_, err := Parse("not-valid-base58-0OIl")
	if err == nil {
		t.Fatal("expected error for invalid base58 characters")
	}
}

func TestFromBytes(t *testing.T) {
	raw := bytes.Repeat([]byte{0xAB}, 32)
	k, err := FromBytes(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(k.Bytes(), raw) {
		t.Error("FromBytes did not preserve raw bytes")
	}
}

func TestFindProgramAddressIsDeterministic(t *testing.T) {
	programID, _ := FromBytes(bytes.Repeat([]byte{0x01}, 32))
	seed := []byte("vault")

	k1, bump1, err := FindProgramAddress([][]byte{seed}, programID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	k2, bump2, err := FindProgramAddress([][]byte{seed}, programID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if k1 != k2 || bump1 != bump2 {
		t.Error("FindProgramAddress is not deterministic for the same seeds")
	}
}

func TestFindProgramAddressDiffersByOwner(t *testing.T) {
	seed := []byte("vault")
	ownerA, _ := FromBytes(bytes.Repeat([]byte{0x02}, 32))
	ownerB, _ := FromBytes(bytes.Repeat([]byte{0x03}, 32))

	programID, _ := FromBytes(bytes.Repeat([]byte{0x09}, 32))

	ka, _, err := FindProgramAddress([][]byte{[]byte("vault"), ownerA.Bytes()}, programID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	kb, _, err := FindProgramAddress([][]byte{[]byte("vault"), ownerB.Bytes()}, programID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ka == kb {
		t.Error("expected different PDAs for different owner seeds")
	}
	_ = seed
}
