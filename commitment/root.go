// Package commitment computes the 32-byte state-root commitment that binds
// a channel id to a post-fee balance tree (spec.md §4.3), using the same
// Keccak256-over-concatenated-fields hashing the teacher's validator/state.go
// and kvstore/state.go use for deterministic storage slots.
package commitment

import (
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/outpace-network/validatorworker/balance"
)

// channelPrefix distinguishes the leading leaf so two channels with
// identical balance trees never collide on the same root.
const channelPrefix = "outpace-channel"

// leafHash hashes one (publisher, amount) pair as
// Keccak256(publisher || big-endian-unsigned(amount)), per spec.md §4.3.
func leafHash(publisher string, amount *big.Int) [32]byte {
	buf := make([]byte, 0, len(publisher)+32)
	buf = append(buf, publisher...)
	buf = append(buf, amount.Bytes()...)
	return crypto.Keccak256Hash(buf)
}

// StateRoot computes the Merkle-style commitment over balancesAfterFees for
// channelID: leaves are sorted lexicographically by publisher, combined
// pairwise bottom-up, with a distinguished prefix leaf mixing in the channel
// id as the first element. Byte-identical on both validators given
// byte-identical (channelID, balancesAfterFees) inputs.
func StateRoot(channelID string, balancesAfterFees balance.Map) [32]byte {
	keys := balancesAfterFees.SortedKeys()

	leaves := make([][32]byte, 0, len(keys)+1)
	leaves = append(leaves, crypto.Keccak256Hash(append([]byte(channelPrefix), channelID...)))
	for _, k := range keys {
		leaves = append(leaves, leafHash(k, balancesAfterFees[k]))
	}

	return merkleRoot(leaves)
}

// merkleRoot combines leaves pairwise bottom-up. An odd node out at any
// level is duplicated (go-ethereum trie/light-client proof convention),
// never dropped, so every leaf contributes to the root.
func merkleRoot(level [][32]byte) [32]byte {
	if len(level) == 0 {
		return crypto.Keccak256Hash()
	}
	for len(level) > 1 {
		next := make([][32]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, hashPair(level[i], level[i]))
			} else {
				next = append(next, hashPair(level[i], level[i+1]))
			}
		}
		level = next
	}
	return level[0]
}

func hashPair(a, b [32]byte) [32]byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, a[:]...)
	buf = append(buf, b[:]...)
	return crypto.Keccak256Hash(buf)
}
