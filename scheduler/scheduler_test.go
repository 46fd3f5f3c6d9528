package scheduler

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/outpace-network/validatorworker/adapter/dummy"
	"github.com/outpace-network/validatorworker/config"
	"github.com/outpace-network/validatorworker/outpace"
	"github.com/outpace-network/validatorworker/sentry"
)

func testChannel() outpace.Channel {
	return outpace.Channel{
		ID:            "c1",
		DepositAmount: big.NewInt(1000),
		ValidUntil:    time.Now().Add(time.Hour).Unix(),
		Spec: outpace.Spec{Validators: [2]outpace.Validator{
			{ID: "leader", Fee: big.NewInt(0)},
			{ID: "follower", Fee: big.NewInt(0)},
		}},
	}
}

func TestRunOnceLeaderEmitsNewStateOnlyOnce(t *testing.T) {
	client := sentry.NewMemoryClient()
	ch := testChannel()
	client.SeedChannel(ch)
	client.SeedAggregates(ch.ID, outpace.EventAggregate{
		ChannelID: ch.ID,
		Created:   time.Now(),
		Events: map[string]outpace.PublisherEvents{
			"P": {EventPayouts: outpace.BalanceMap{"impression": "3"}},
		},
	})

	cfg := config.Defaults()
	cfg.TickTimeout = time.Second
	cfg.HeartbeatTime = time.Hour
	signer := dummy.New("leader")
	sched := New(cfg, signer, client)

	require.NoError(t, sched.RunOnce(context.Background()))

	env, err := client.GetLatestMsg(context.Background(), ch.ID, "leader", outpace.TypeNewState)
	require.NoError(t, err)
	require.NotNil(t, env)
	require.Equal(t, "3", env.Msg.NewState.Balances["P"])

	// A second cycle with nothing new should not emit another NewState.
	require.NoError(t, sched.RunOnce(context.Background()))
	env2, err := client.GetLatestMsg(context.Background(), ch.ID, "leader", outpace.TypeNewState)
	require.NoError(t, err)
	require.Equal(t, env.Seq, env2.Seq, "no second NewState should have been emitted")
}

func TestRunOnceSkipsChannelPastValidUntil(t *testing.T) {
	client := sentry.NewMemoryClient()
	ch := testChannel()
	ch.ValidUntil = time.Now().Add(-time.Hour).Unix()
	client.SeedChannel(ch)

	cfg := config.Defaults()
	signer := dummy.New("leader")
	sched := New(cfg, signer, client)

	require.NoError(t, sched.RunOnce(context.Background()))

	env, err := client.GetLatestMsg(context.Background(), ch.ID, "leader", outpace.TypeNewState)
	require.NoError(t, err)
	require.Nil(t, env)
}

func TestRunOnceExcludesExhaustedChannel(t *testing.T) {
	client := sentry.NewMemoryClient()
	ch := testChannel()
	client.SeedChannel(ch)
	client.Seed(outpace.Envelope{ChannelID: ch.ID, From: "leader", Msg: outpace.Message{
		Type: outpace.TypeAccounting,
		Accounting: &outpace.Accounting{
			LastEvAggr: time.Now(),
			Balances:   outpace.BalanceMap{"P": "1000"},
		},
	}})

	cfg := config.Defaults()
	cfg.TickTimeout = time.Second
	signer := dummy.New("leader")
	sched := New(cfg, signer, client)

	require.NoError(t, sched.RunOnce(context.Background()))

	env, err := client.GetLatestMsg(context.Background(), ch.ID, "leader", outpace.TypeNewState)
	require.NoError(t, err)
	require.Nil(t, env, "an exhausted channel's deposit is fully distributed, no further NewState is due")

	// The exclusion is sticky: a second cycle shouldn't even re-check.
	require.NoError(t, sched.RunOnce(context.Background()))
	env2, err := client.GetLatestMsg(context.Background(), ch.ID, "leader", outpace.TypeNewState)
	require.NoError(t, err)
	require.Nil(t, env2)
}
