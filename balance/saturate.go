package balance

import "math/big"

// SaturatingAdd folds delta into base, clamping so the resulting sum never
// exceeds cap. When a publisher's added amount would push the channel sum
// past cap, only the remaining headroom is credited to that publisher and
// the rest is dropped — spec.md §4.5 step 3 ("the channel is exhausted").
// base is copied unchanged, then delta's keys are folded in in SortedKeys
// order, so the result is deterministic regardless of map iteration order.
//
// exhausted reports whether any clamping occurred (equivalently, whether the
// result sum equals cap while delta still had room left to give).
func SaturatingAdd(base, delta Map, cap *big.Int) (result Map, exhausted bool) {
	result = base.Clone()
	sum := result.Sum()
	headroom := new(big.Int).Sub(cap, sum)
	if headroom.Sign() < 0 {
		headroom = new(big.Int)
	}

	for _, k := range delta.SortedKeys() {
		add := delta[k]
		if add.Sign() <= 0 {
			continue
		}
		if headroom.Sign() <= 0 {
			exhausted = true
			continue
		}
		credited := add
		if add.Cmp(headroom) > 0 {
			credited = new(big.Int).Set(headroom)
			exhausted = true
		}
		cur, ok := result[k]
		if !ok {
			cur = new(big.Int)
			result[k] = cur
		}
		cur.Add(cur, credited)
		headroom.Sub(headroom, credited)
	}
	return result, exhausted
}
