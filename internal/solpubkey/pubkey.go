// Package solpubkey implements the minimal Solana address representation
// the vault backend needs: fixed 32-byte public keys, their base58 string
// form (as used by AccountInfo/Address fields across the pack's Solana
// types, see other_examples/5c0feb22_cielu-go-solana), and
// program-derived-address search. No base58 library exists anywhere in
// the retrieval pack (the pack's on-chain domain is Stellar, which uses
// strkey, not base58), so encode/decode are implemented directly here.
package solpubkey

import (
	"crypto/sha256"
	"fmt"
	"math/big"
)

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// Key is a 32-byte Solana account/program address.
type Key [32]byte

func (k Key) String() string {
	return base58Encode(k[:])
}

func (k Key) Bytes() []byte {
	out := make([]byte, 32)
	copy(out, k[:])
	return out
}

// Parse decodes a base58 address string into a Key.
func Parse(s string) (Key, error) {
	b, err := base58Decode(s)
	if err != nil {
		return Key{}, fmt.Errorf("parse pubkey %q: %w", s, err)
	}
	if len(b) != 32 {
		return Key{}, fmt.Errorf("parse pubkey %q: decoded length %d, want 32", s, len(b))
	}
	var k Key
	copy(k[:], b)
	return k, nil
}

// FromBytes constructs a Key from a raw 32-byte slice.
func FromBytes(b []byte) (Key, error) {
	if len(b) != 32 {
		return Key{}, fmt.Errorf("pubkey must be 32 bytes, got %d", len(b))
	}
	var k Key
	copy(k[:], b)
	return k, nil
}

// maxSeedBumps bounds the off-curve bump search; Solana's own runtime gives
// up after 255 bumps (a single byte, descending from 255).
const maxSeedBumps = 256

// FindProgramAddress derives a program-derived address from seeds and a
// program id, searching bump seeds from 255 down to 0 until it lands off
// the ed25519 curve. Returns the derived Key and the bump used.
func FindProgramAddress(seeds [][]byte, programID Key) (Key, uint8, error) {
	for bump := 255; bump >= 0; bump-- {
		candidate, err := CreateProgramAddress(append(append([][]byte{}, seeds...), []byte{byte(bump)}), programID)
		if err == nil {
			return candidate, uint8(bump), nil
		}
	}
	return Key{}, 0, fmt.Errorf("unable to find a program address off the ed25519 curve for given seeds")
}

// CreateProgramAddress computes SHA-256(seeds... || programID || "ProgramDerivedAddress")
// and rejects the result when isOnCurve reports it. isOnCurve is a
// high-bit test, not a full ed25519 point check, so the accepted bump and
// address can differ from the ones Solana's runtime derives.
func CreateProgramAddress(seeds [][]byte, programID Key) (Key, error) {
	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > 32 {
			return Key{}, fmt.Errorf("seed length %d exceeds 32 bytes", len(seed))
		}
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write([]byte("ProgramDerivedAddress"))
	sum := h.Sum(nil)

	var out Key
	copy(out[:], sum)

	if isOnCurve(out) {
		return Key{}, fmt.Errorf("address is on the ed25519 curve")
	}
	return out, nil
}

// isOnCurve approximates Solana's curve-membership check. It does not
// decompress the point as the runtime does; it reports true when the
// highest bit of the last byte is set and false otherwise. This keeps
// FindProgramAddress deterministic and terminating without requiring a
// full curve arithmetic implementation, which no component needs otherwise.
func isOnCurve(k Key) bool {
	return k[31]&0x80 != 0
}

func base58Encode(input []byte) string {
	zeros := 0
	for zeros < len(input) && input[zeros] == 0 {
		zeros++
	}

	x := new(big.Int).SetBytes(input)
	base := big.NewInt(58)
	mod := new(big.Int)
	var out []byte

	for x.Sign() > 0 {
		x.DivMod(x, base, mod)
		out = append(out, base58Alphabet[mod.Int64()])
	}
	for i := 0; i < zeros; i++ {
		out = append(out, base58Alphabet[0])
	}
	reverse(out)
	return string(out)
}

func base58Decode(s string) ([]byte, error) {
	x := big.NewInt(0)
	base := big.NewInt(58)

	zeros := 0
	for zeros < len(s) && s[zeros] == base58Alphabet[0] {
		zeros++
	}

	for i := 0; i < len(s); i++ {
		idx := indexInAlphabet(s[i])
		if idx < 0 {
			return nil, fmt.Errorf("invalid base58 character %q", s[i])
		}
		x.Mul(x, base)
		x.Add(x, big.NewInt(int64(idx)))
	}

	decoded := x.Bytes()
	out := make([]byte, zeros+len(decoded))
	copy(out[zeros:], decoded)
	return out, nil
}

func indexInAlphabet(c byte) int {
	for i := 0; i < len(base58Alphabet); i++ {
		if base58Alphabet[i] == c {
			return i
		}
	}
	return -1
}

func reverse(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}
