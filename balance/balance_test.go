package balance

import (
	"math/big"
	"testing"

	"github.com/outpace-network/validatorworker/outpace"
	"github.com/stretchr/testify/require"
)

func bi(v int64) *big.Int { return big.NewInt(v) }

func mustChannel(t *testing.T, deposit int64, leaderFee, followerFee int64) *outpace.Channel {
	t.Helper()
	ch := &outpace.Channel{
		ID:            "c1",
		DepositAmount: bi(deposit),
		Spec: outpace.Spec{Validators: [2]outpace.Validator{
			{ID: "leader", Fee: bi(leaderFee)},
			{ID: "follower", Fee: bi(followerFee)},
		}},
	}
	require.NoError(t, ch.Validate())
	return ch
}

func TestSaturatingAddClampsToDeposit(t *testing.T) {
	base := Map{}
	delta := Map{"P": bi(11)}
	result, exhausted := SaturatingAdd(base, delta, bi(10))
	require.True(t, exhausted)
	require.Equal(t, "10", result.Sum().String())
	require.Equal(t, "10", result["P"].String())
}

func TestSaturatingAddNoClampWhenUnderCap(t *testing.T) {
	base := Map{"P": bi(2)}
	delta := Map{"P": bi(3)}
	result, exhausted := SaturatingAdd(base, delta, bi(1000))
	require.False(t, exhausted)
	require.Equal(t, "5", result["P"].String())
}

func TestAfterFeesPreservesSum(t *testing.T) {
	ch := mustChannel(t, 1000, 10, 20)
	balances := Map{"P1": bi(300), "P2": bi(700)}
	result, err := AfterFees(balances, ch)
	require.NoError(t, err)
	require.Equal(t, balances.Sum().String(), result.Sum().String())
	require.True(t, result.Get("leader").Sign() > 0 || result.Get("follower").Sign() > 0)
}

func TestAfterFeesDeterministicAcrossKeyOrder(t *testing.T) {
	ch := mustChannel(t, 1000, 7, 13)
	a := Map{"alpha": bi(111), "beta": bi(222), "gamma": bi(333)}
	b := Map{"gamma": bi(333), "alpha": bi(111), "beta": bi(222)}
	ra, err := AfterFees(a, ch)
	require.NoError(t, err)
	rb, err := AfterFees(b, ch)
	require.NoError(t, err)
	require.True(t, ra.Equal(rb))
}

func TestAfterFeesZeroBalance(t *testing.T) {
	ch := mustChannel(t, 1000, 10, 10)
	result, err := AfterFees(Map{}, ch)
	require.NoError(t, err)
	require.Equal(t, "0", result.Sum().String())
}

func TestIsValidTransition(t *testing.T) {
	ch := mustChannel(t, 1000, 0, 0)
	prev := Map{"P": bi(7)}
	require.True(t, IsValidTransition(ch, prev, Map{"P": bi(7)}))
	require.True(t, IsValidTransition(ch, prev, Map{"P": bi(10)}))
	require.False(t, IsValidTransition(ch, prev, Map{"P": bi(5)}), "balance must not decrease")
	require.False(t, IsValidTransition(ch, prev, Map{}), "publisher must still be present")
	require.False(t, IsValidTransition(ch, prev, Map{"P": bi(1001)}), "sum must not exceed deposit")
}

func TestIsHealthy(t *testing.T) {
	require.True(t, IsHealthy(Map{}, Map{}, 950), "zero total is always healthy")

	our := Map{"P": bi(5)}
	approved := Map{"P": bi(1)}
	require.False(t, IsHealthy(our, approved, 950), "1/5 = 200 promille < 950")

	our2 := Map{"P": bi(5)}
	approved2 := Map{"P": bi(5)}
	require.True(t, IsHealthy(our2, approved2, 950))
}

func TestIsHealthyMonotonic(t *testing.T) {
	our := Map{"P1": bi(3), "P2": bi(4)}
	approved := Map{"P1": bi(5), "P2": bi(6)} // approved >= our pointwise
	require.True(t, IsHealthy(our, approved, 950))
}
