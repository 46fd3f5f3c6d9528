package commitment

import (
	"encoding/hex"
	"errors"

	"github.com/outpace-network/validatorworker/balance"
)

// ErrMalformedRoot is returned by DecodeRoot when the input isn't a
// well-formed 32-byte hex string.
var ErrMalformedRoot = errors.New("commitment: malformed state root")

// IsValidRootHash recomputes the state root from claimed balancesAfterFees
// and compares it to stateRootHex, per spec.md §4.3.
func IsValidRootHash(stateRootHex string, channelID string, balancesAfterFees balance.Map) bool {
	want, err := hex.DecodeString(stateRootHex)
	if err != nil || len(want) != 32 {
		return false
	}
	got := StateRoot(channelID, balancesAfterFees)
	return hex.EncodeToString(got[:]) == hex.EncodeToString(want)
}

// Hex renders a state root as the lowercase 64-char hex string spec.md §3
// requires on the wire.
func Hex(root [32]byte) string {
	return hex.EncodeToString(root[:])
}

// DecodeRoot parses the wire hex form of a state root back into its
// 32-byte form.
func DecodeRoot(stateRootHex string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(stateRootHex)
	if err != nil || len(raw) != 32 {
		if err == nil {
			err = ErrMalformedRoot
		}
		return out, err
	}
	copy(out[:], raw)
	return out, nil
}
