package balance

import (
	"github.com/outpace-network/validatorworker/outpace"
)

// FromDecimalMap converts the wire form (publisher -> decimal string) into
// a Map, rejecting any value that isn't a non-negative base-10 integer.
func FromDecimalMap(m outpace.BalanceMap) (Map, error) {
	raw, err := outpace.UnmarshalBalances(m)
	if err != nil {
		return nil, err
	}
	return Map(raw), nil
}

// ToDecimalMap converts a Map to its wire form (publisher -> decimal
// string), per spec.md §4.1's on-wire decimal-string representation.
func ToDecimalMap(m Map) outpace.BalanceMap {
	return outpace.MarshalBalances(m)
}
