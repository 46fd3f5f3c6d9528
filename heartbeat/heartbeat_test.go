package heartbeat

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/outpace-network/validatorworker/adapter/dummy"
	"github.com/outpace-network/validatorworker/outpace"
	"github.com/outpace-network/validatorworker/sentry"
)

func testChannel() *outpace.Channel {
	return &outpace.Channel{
		ID:            "c1",
		DepositAmount: big.NewInt(1000),
		Spec: outpace.Spec{Validators: [2]outpace.Validator{
			{ID: "leader", Fee: big.NewInt(0)},
			{ID: "follower", Fee: big.NewInt(0)},
		}},
	}
}

func TestMaybeEmitFirstTimeAlwaysEmits(t *testing.T) {
	ch := testChannel()
	signer := dummy.New("leader")
	client := sentry.NewMemoryClient()

	emitted, err := MaybeEmit(context.Background(), ch, signer, client, nil, time.Time{}, time.Minute)
	require.NoError(t, err)
	require.True(t, emitted)

	env, err := client.GetLatestMsg(context.Background(), ch.ID, "leader", outpace.TypeHeartbeat)
	require.NoError(t, err)
	require.NotNil(t, env)
	require.Equal(t, 64, len(env.Msg.Heartbeat.StateRoot))
}

func TestMaybeEmitSuppressedWithinThreshold(t *testing.T) {
	ch := testChannel()
	signer := dummy.New("leader")
	client := sentry.NewMemoryClient()

	emitted, err := MaybeEmit(context.Background(), ch, signer, client, nil, time.Now(), time.Hour)
	require.NoError(t, err)
	require.False(t, emitted)
}
