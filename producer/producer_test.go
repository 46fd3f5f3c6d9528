package producer

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/outpace-network/validatorworker/outpace"
	"github.com/outpace-network/validatorworker/sentry"
)

func testChannel(deposit int64) *outpace.Channel {
	return &outpace.Channel{
		ID:            "c1",
		DepositAmount: big.NewInt(deposit),
		Spec: outpace.Spec{Validators: [2]outpace.Validator{
			{ID: "leader", Fee: big.NewInt(0)},
			{ID: "follower", Fee: big.NewInt(0)},
		}},
	}
}

func seedOne(client *sentry.MemoryClient, channelID, publisher string, amount int64) {
	client.SeedAggregates(channelID, outpace.EventAggregate{
		ChannelID: channelID,
		Created:   time.Now(),
		Events: map[string]outpace.PublisherEvents{
			publisher: {EventPayouts: outpace.BalanceMap{"impression": big.NewInt(amount).String()}},
		},
	})
}

func TestTickFoldsAggregatesIntoBalances(t *testing.T) {
	ch := testChannel(1000)
	client := sentry.NewMemoryClient()
	seedOne(client, ch.ID, "P", 3)
	seedOne(client, ch.ID, "P", 4)

	res, err := Tick(context.Background(), ch, "leader", client)
	require.NoError(t, err)
	require.True(t, res.Changed)
	require.Equal(t, "7", res.Balances["P"].String())
}

func TestTickNoAggregatesIsNoop(t *testing.T) {
	ch := testChannel(1000)
	client := sentry.NewMemoryClient()

	res, err := Tick(context.Background(), ch, "leader", client)
	require.NoError(t, err)
	require.False(t, res.Changed)
}

func TestTickIdempotentAcrossRepeatedCalls(t *testing.T) {
	ch := testChannel(1000)
	client := sentry.NewMemoryClient()
	seedOne(client, ch.ID, "P", 3)
	seedOne(client, ch.ID, "P", 4)

	res1, err := Tick(context.Background(), ch, "leader", client)
	require.NoError(t, err)
	require.Equal(t, "7", res1.Balances["P"].String())

	// A second tick with no new aggregates must not re-fold anything —
	// it sees the same cursor and returns the unchanged balances.
	res2, err := Tick(context.Background(), ch, "leader", client)
	require.NoError(t, err)
	require.False(t, res2.Changed)
	require.Equal(t, "7", res2.Balances["P"].String())
}

func TestTickClampsAtDeposit(t *testing.T) {
	ch := testChannel(10)
	client := sentry.NewMemoryClient()
	for i := 0; i < 11; i++ {
		seedOne(client, ch.ID, "P", 1)
	}

	res, err := Tick(context.Background(), ch, "leader", client)
	require.NoError(t, err)
	require.True(t, res.Exhausted)
	require.Equal(t, "10", res.Balances["P"].String())
}
