package balance

import (
	"math/big"

	"github.com/outpace-network/validatorworker/outpace"
)

// proratedFee computes validatorFee * balanceTotal / depositAmount, floored,
// the per-validator charge prorated by how much of the deposit is in use.
func proratedFee(balanceTotal, validatorFee, depositAmount *big.Int) *big.Int {
	if validatorFee == nil || validatorFee.Sign() == 0 || depositAmount.Sign() == 0 {
		return new(big.Int)
	}
	fee := new(big.Int).Mul(balanceTotal, validatorFee)
	fee.Div(fee, depositAmount)
	return fee
}

// AfterFees implements spec.md §4.1's getBalancesAfterFees: it deterministically
// redistributes a prorated slice of the balance tree from publishers to the
// channel's two validators. The computation is sum-preserving exactly:
// Sum(AfterFees(b, c)) == Sum(b) for any b, c.
//
// The validators' prorated fees are collected from publishers proportionally
// to their balances (sorted key order, so both nodes compute byte-identical
// results). Floor division during per-publisher collection can leave a
// small shortfall uncollected; that shortfall stays with the publishers and
// is not credited to either validator. Any remainder from splitting the
// collected amount between the two validators is credited entirely to the
// leader — the documented tie-break from spec.md §4.1.
func AfterFees(balances Map, ch *outpace.Channel) (Map, error) {
	if err := ch.Validate(); err != nil {
		return nil, err
	}
	result := balances.Clone()

	total := balances.Sum()
	if total.Sign() == 0 || ch.DepositAmount.Sign() == 0 {
		return result, nil
	}

	leader := ch.Spec.Leader()
	follower := ch.Spec.Follower()

	leaderFee := proratedFee(total, leader.Fee, ch.DepositAmount)
	followerFee := proratedFee(total, follower.Fee, ch.DepositAmount)
	totalFee := new(big.Int).Add(leaderFee, followerFee)
	if totalFee.Sign() == 0 {
		return result, nil
	}

	collected := new(big.Int)
	for _, pub := range result.SortedKeys() {
		bal := result[pub]
		if bal.Sign() == 0 {
			continue
		}
		share := new(big.Int).Mul(bal, totalFee)
		share.Div(share, total)
		if share.Sign() == 0 {
			continue
		}
		bal.Sub(bal, share)
		collected.Add(collected, share)
	}

	followerShare := new(big.Int)
	if totalFee.Sign() != 0 {
		followerShare.Mul(collected, followerFee)
		followerShare.Div(followerShare, totalFee)
	}
	leaderShare := new(big.Int).Sub(collected, followerShare)

	creditPublisher(result, leader.ID, leaderShare)
	creditPublisher(result, follower.ID, followerShare)

	return result, nil
}

func creditPublisher(m Map, key string, amount *big.Int) {
	if amount.Sign() == 0 {
		return
	}
	cur, ok := m[key]
	if !ok {
		cur = new(big.Int)
		m[key] = cur
	}
	cur.Add(cur, amount)
}
