package balance

import (
	"math/big"

	"github.com/outpace-network/validatorworker/outpace"
)

// IsValidTransition implements spec.md §4.2: next is a valid successor of
// prev iff the channel sum only grows, never exceeds the deposit, every
// publisher's balance is monotonically non-decreasing, and nothing is
// negative.
func IsValidTransition(ch *outpace.Channel, prev, next Map) bool {
	nextSum := next.Sum()
	if nextSum.Cmp(prev.Sum()) < 0 {
		return false
	}
	if nextSum.Cmp(ch.DepositAmount) > 0 {
		return false
	}
	for k, v := range prev {
		nv, ok := next[k]
		if !ok || nv.Cmp(v) < 0 {
			return false
		}
	}
	for _, v := range next {
		if v.Sign() < 0 {
			return false
		}
	}
	return true
}

// DefaultHealthThresholdPromilles is the default minimum fraction (in promilles,
// i.e. parts per thousand) of our balances that must also appear in the
// peer's approved view for the channel to be considered healthy.
const DefaultHealthThresholdPromilles = 950

// IsHealthy implements spec.md §4.2's health metric: the fraction of our
// committed balance that the peer's latest approved view also commits to,
// expressed in promilles and compared against thresholdPromilles.
func IsHealthy(our, approved Map, thresholdPromilles uint32) bool {
	total := our.Sum()
	if total.Sign() == 0 {
		return true
	}

	mins := new(big.Int)
	for k, ov := range our {
		av, ok := approved[k]
		if !ok {
			continue
		}
		m := ov
		if av.Cmp(ov) < 0 {
			m = av
		}
		mins.Add(mins, m)
	}

	if mins.Cmp(total) >= 0 {
		return true
	}

	promille := new(big.Int).Mul(mins, big.NewInt(1000))
	promille.Div(promille, total)
	return promille.Cmp(big.NewInt(int64(thresholdPromilles))) >= 0
}
