// Package balance implements the arbitrary-precision balance arithmetic of
// spec.md §4.1: the publisher balance map, saturating accumulation, and the
// validator fee tree. All money math runs on math/big.Int; no value ever
// touches a float.
package balance

import (
	"math/big"
	"sort"
)

// Map is a publisher-identifier-keyed set of non-negative balances.
type Map map[string]*big.Int

// New returns an empty Map.
func New() Map { return make(Map) }

// Clone deep-copies m so callers can mutate the result without aliasing the
// source map's big.Int pointers.
func (m Map) Clone() Map {
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = new(big.Int).Set(v)
	}
	return out
}

// SortedKeys returns m's keys in ascending lexicographic order. Every
// operation that must be byte-identical across nodes (fee distribution,
// commitment hashing) iterates in this order — spec.md §4.1's determinism
// requirement.
func (m Map) SortedKeys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Sum returns the sum of all values in m.
func (m Map) Sum() *big.Int {
	sum := new(big.Int)
	for _, v := range m {
		sum.Add(sum, v)
	}
	return sum
}

// Get returns m[k], or zero if k is absent.
func (m Map) Get(k string) *big.Int {
	if v, ok := m[k]; ok {
		return v
	}
	return new(big.Int)
}

// Equal reports whether m and other have identical publisher sets and
// values.
func (m Map) Equal(other Map) bool {
	if len(m) != len(other) {
		return false
	}
	for k, v := range m {
		ov, ok := other[k]
		if !ok || v.Cmp(ov) != 0 {
			return false
		}
	}
	return true
}
