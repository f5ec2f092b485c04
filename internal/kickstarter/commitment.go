package kickstarter

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

const SaltLength = 32

// Commitment hashes funder || amount (u64 little endian) || salt
func Commitment(funder solana.PublicKey, amount uint64, salt [SaltLength]byte) [32]byte {
	var amountBytes [8]byte
	binary.LittleEndian.PutUint64(amountBytes[:], amount)

	h := sha256.New()
	h.Write(funder[:])
	h.Write(amountBytes[:])
	h.Write(salt[:])

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// ChainRoot folds a commitment into the running root. The first commitment
// becomes the root itself.
func ChainRoot(root []byte, commitment [32]byte) [32]byte {
	if len(root) == 0 {
		return commitment
	}
	h := sha256.New()
	h.Write(root)
	h.Write(commitment[:])

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// ParseSalt decodes a hex salt and requires exactly 32 bytes
func ParseSalt(s string) ([SaltLength]byte, error) {
	var salt [SaltLength]byte
	raw, err := hex.DecodeString(s)
	if err != nil {
		return salt, fmt.Errorf("%w: salt is not hex: %v", ErrInvalidParameters, err)
	}
	if len(raw) != SaltLength {
		return salt, fmt.Errorf("%w: salt must be %d bytes, got %d", ErrInvalidParameters, SaltLength, len(raw))
	}
	copy(salt[:], raw)
	return salt, nil
}

func decodeRoot(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("stored commitments root is corrupt: %w", err)
	}
	return raw, nil
}
