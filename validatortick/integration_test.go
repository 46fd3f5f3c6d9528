package validatortick

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/outpace-network/validatorworker/adapter/dummy"
	"github.com/outpace-network/validatorworker/commitment"
	"github.com/outpace-network/validatorworker/outpace"
	"github.com/outpace-network/validatorworker/sentry"
)

func bi(v int64) *big.Int { return big.NewInt(v) }

func newChannel(deposit int64) *outpace.Channel {
	return &outpace.Channel{
		ID:            "c1",
		DepositAmount: bi(deposit),
		ValidUntil:    time.Now().Add(time.Hour).Unix(),
		Spec: outpace.Spec{Validators: [2]outpace.Validator{
			{ID: "leader", URL: "http://leader", Fee: bi(0)},
			{ID: "follower", URL: "http://follower", Fee: bi(0)},
		}},
	}
}

// wiredClients returns a leader MemoryClient and follower MemoryClient
// whose Propagate calls deliver directly into each other's store, the way
// two sentry.HTTPClient instances would via real HTTP POSTs.
func wiredClients() (leaderClient, followerClient *sentry.MemoryClient) {
	leaderClient = sentry.NewMemoryClient()
	followerClient = sentry.NewMemoryClient()
	leaderClient.PropagateFunc = func(ctx context.Context, channelID string, to outpace.Validator, msg outpace.Message) error {
		followerClient.Seed(outpace.Envelope{ChannelID: channelID, From: "leader", Msg: msg})
		return nil
	}
	followerClient.PropagateFunc = func(ctx context.Context, channelID string, to outpace.Validator, msg outpace.Message) error {
		leaderClient.Seed(outpace.Envelope{ChannelID: channelID, From: "follower", Msg: msg})
		return nil
	}
	return leaderClient, followerClient
}

func postEvents(client *sentry.MemoryClient, channelID string, seq uint64, publisher string, amount int64) {
	client.SeedAggregates(channelID, outpace.EventAggregate{
		ChannelID: channelID,
		Created:   time.Now().Add(time.Duration(seq) * time.Millisecond),
		Events: map[string]outpace.PublisherEvents{
			publisher: {EventPayouts: outpace.BalanceMap{"impression": big.NewInt(amount).String()}},
		},
	})
}

// S1 — happy path: deposit 1000, zero fees, 3 impressions of 1 token each
// at P. After one leader tick and one follower tick, the leader has a
// NewState with balances {P:"3"}, and the follower approves it healthy.
func TestS1HappyPath(t *testing.T) {
	ch := newChannel(1000)
	leaderSigner := dummy.New("leader")
	followerSigner := dummy.New("follower")
	leaderClient, followerClient := wiredClients()

	postEvents(leaderClient, ch.ID, 1, "P", 1)
	postEvents(leaderClient, ch.ID, 2, "P", 1)
	postEvents(leaderClient, ch.ID, 3, "P", 1)

	outcome, err := LeaderTick(context.Background(), ch, leaderSigner, leaderClient)
	require.NoError(t, err)
	require.Equal(t, OutcomeNewState, outcome.Kind)
	require.Len(t, outcome.StateRoot, 64)

	postEvents(followerClient, ch.ID, 1, "P", 1)
	postEvents(followerClient, ch.ID, 2, "P", 1)
	postEvents(followerClient, ch.ID, 3, "P", 1)

	fOutcome, err := FollowerTick(context.Background(), ch, followerSigner, followerClient, 950)
	require.NoError(t, err)
	require.Equal(t, OutcomeApproveState, fOutcome.Kind)
	require.Equal(t, outcome.StateRoot, fOutcome.StateRoot)

	approveEnv, err := followerClient.GetLatestMsg(context.Background(), ch.ID, "follower", outpace.TypeApproveState)
	require.NoError(t, err)
	require.True(t, approveEnv.Msg.ApproveState.IsHealthy)
}

// S2 — unhealthy then recovery: 5 events to follower, 1 to leader first;
// health is false (1/5 = 200 promilles < 950). After the leader catches up
// to 5 total, health recovers to true.
func TestS2UnhealthyThenRecovery(t *testing.T) {
	ch := newChannel(1000)
	leaderSigner := dummy.New("leader")
	followerSigner := dummy.New("follower")
	leaderClient, followerClient := wiredClients()

	postEvents(leaderClient, ch.ID, 1, "P", 1)
	for i := int64(0); i < 5; i++ {
		postEvents(followerClient, ch.ID, uint64(i)+1, "P", 1)
	}

	_, err := LeaderTick(context.Background(), ch, leaderSigner, leaderClient)
	require.NoError(t, err)

	fOutcome, err := FollowerTick(context.Background(), ch, followerSigner, followerClient, 950)
	require.NoError(t, err)
	require.Equal(t, OutcomeApproveState, fOutcome.Kind)
	env, err := followerClient.GetLatestMsg(context.Background(), ch.ID, "follower", outpace.TypeApproveState)
	require.NoError(t, err)
	require.False(t, env.Msg.ApproveState.IsHealthy, "1/5 = 200 promille < 950")

	for i := int64(0); i < 4; i++ {
		postEvents(leaderClient, ch.ID, uint64(i)+10, "P", 1)
	}
	_, err = LeaderTick(context.Background(), ch, leaderSigner, leaderClient)
	require.NoError(t, err)
	fOutcome2, err := FollowerTick(context.Background(), ch, followerSigner, followerClient, 950)
	require.NoError(t, err)
	require.Equal(t, OutcomeApproveState, fOutcome2.Kind)
	env2, err := followerClient.GetLatestMsg(context.Background(), ch.ID, "follower", outpace.TypeApproveState)
	require.NoError(t, err)
	require.True(t, env2.Msg.ApproveState.IsHealthy)
}

// S3 — deposit clamp: deposit 10, 11 events of 1 token; balances never
// exceed the deposit.
func TestS3DepositClamp(t *testing.T) {
	ch := newChannel(10)
	leaderSigner := dummy.New("leader")
	leaderClient, _ := wiredClients()

	for i := int64(0); i < 11; i++ {
		postEvents(leaderClient, ch.ID, uint64(i)+1, "P", 1)
	}

	outcome, err := LeaderTick(context.Background(), ch, leaderSigner, leaderClient)
	require.NoError(t, err)
	require.Equal(t, OutcomeNewState, outcome.Kind)

	env, err := leaderClient.GetLatestMsg(context.Background(), ch.ID, "leader", outpace.TypeNewState)
	require.NoError(t, err)
	bal, ok := new(big.Int).SetString(env.Msg.NewState.Balances["P"], 10)
	require.True(t, ok)
	require.True(t, bal.Cmp(bi(10)) <= 0)
}

// S4 — invalid transition rejected: a byzantine NewState claims a lower
// balance than our prior approval.
func TestS4InvalidTransitionRejected(t *testing.T) {
	ch := newChannel(1000)
	followerSigner := dummy.New("follower")
	leaderSigner := dummy.New("leader")
	_, followerClient := wiredClients()

	// Seed a prior approved state at {P:"7"}.
	priorAfterFees := map[string]*big.Int{"P": bi(7)}
	priorRoot := commitment.StateRoot(ch.ID, priorAfterFees)
	priorRootHex := commitment.Hex(priorRoot)
	priorSig, err := leaderSigner.Sign(context.Background(), priorRoot)
	require.NoError(t, err)
	followerClient.Seed(outpace.Envelope{ChannelID: ch.ID, From: "leader", Msg: outpace.Message{
		Type: outpace.TypeNewState,
		NewState: &outpace.NewState{
			StateRoot:         priorRootHex,
			Signature:         string(priorSig),
			Balances:          outpace.BalanceMap{"P": "7"},
			BalancesAfterFees: outpace.BalanceMap{"P": "7"},
		},
	}})
	approveSig, err := followerSigner.Sign(context.Background(), priorRoot)
	require.NoError(t, err)
	followerClient.Seed(outpace.Envelope{ChannelID: ch.ID, From: "follower", Msg: outpace.Message{
		Type: outpace.TypeApproveState,
		ApproveState: &outpace.ApproveState{StateRoot: priorRootHex, Signature: string(approveSig), IsHealthy: true},
	}})

	// Now inject a byzantine NewState claiming balances={P:"5"} (a decrease).
	badAfterFees := map[string]*big.Int{"P": bi(5)}
	badRoot := commitment.StateRoot(ch.ID, badAfterFees)
	badRootHex := commitment.Hex(badRoot)
	badSig, err := leaderSigner.Sign(context.Background(), badRoot)
	require.NoError(t, err)
	followerClient.Seed(outpace.Envelope{ChannelID: ch.ID, From: "leader", Msg: outpace.Message{
		Type: outpace.TypeNewState,
		NewState: &outpace.NewState{
			StateRoot:         badRootHex,
			Signature:         string(badSig),
			Balances:          outpace.BalanceMap{"P": "5"},
			BalancesAfterFees: outpace.BalanceMap{"P": "5"},
		},
	}})

	outcome, err := FollowerTick(context.Background(), ch, followerSigner, followerClient, 950)
	require.NoError(t, err)
	require.Equal(t, OutcomeRejectState, outcome.Kind)
	require.Equal(t, outpace.ReasonInvalidTransition, outcome.Reason)
}

// S5 — bad signature rejected: NewState signed by a non-leader identity.
func TestS5BadSignatureRejected(t *testing.T) {
	ch := newChannel(1000)
	followerSigner := dummy.New("follower")
	impostor := dummy.New("impostor")
	_, followerClient := wiredClients()

	afterFees := map[string]*big.Int{"P": bi(3)}
	root := commitment.StateRoot(ch.ID, afterFees)
	sig, err := impostor.Sign(context.Background(), root)
	require.NoError(t, err)
	followerClient.Seed(outpace.Envelope{ChannelID: ch.ID, From: "leader", Msg: outpace.Message{
		Type: outpace.TypeNewState,
		NewState: &outpace.NewState{
			StateRoot:         commitment.Hex(root),
			Signature:         string(sig),
			Balances:          outpace.BalanceMap{"P": "3"},
			BalancesAfterFees: outpace.BalanceMap{"P": "3"},
		},
	}})

	outcome, err := FollowerTick(context.Background(), ch, followerSigner, followerClient, 950)
	require.NoError(t, err)
	require.Equal(t, OutcomeRejectState, outcome.Kind)
	require.Equal(t, outpace.ReasonInvalidSignature, outcome.Reason)
}

// S6 — root-hash mismatch: stateRoot doesn't match the claimed
// balancesAfterFees.
func TestS6RootHashMismatchRejected(t *testing.T) {
	ch := newChannel(1000)
	followerSigner := dummy.New("follower")
	leaderSigner := dummy.New("leader")
	_, followerClient := wiredClients()

	wrongRoot := commitment.StateRoot(ch.ID, map[string]*big.Int{"OTHER": bi(999)})
	sig, err := leaderSigner.Sign(context.Background(), wrongRoot)
	require.NoError(t, err)
	followerClient.Seed(outpace.Envelope{ChannelID: ch.ID, From: "leader", Msg: outpace.Message{
		Type: outpace.TypeNewState,
		NewState: &outpace.NewState{
			StateRoot:         commitment.Hex(wrongRoot),
			Signature:         string(sig),
			Balances:          outpace.BalanceMap{"P": "3"},
			BalancesAfterFees: outpace.BalanceMap{"P": "3"},
		},
	}})

	outcome, err := FollowerTick(context.Background(), ch, followerSigner, followerClient, 950)
	require.NoError(t, err)
	require.Equal(t, OutcomeRejectState, outcome.Kind)
	require.Equal(t, outpace.ReasonInvalidRootHash, outcome.Reason)
}

// S7 — crash recovery: a prior cycle's producer tick advanced the
// Accounting record, but the leader crashed or timed out before the
// matching NewState was ever signed and propagated (spec.md §5: "partial
// local persists remain, but no partial message is propagated"). A later
// LeaderTick call, with no new event aggregates since, must still notice
// its own last NewState (none, here) disagrees with the persisted
// Accounting balances and emit the pending NewState.
func TestS7LeaderResumesPendingNewStateAfterCrash(t *testing.T) {
	ch := newChannel(1000)
	leaderSigner := dummy.New("leader")
	leaderClient, _ := wiredClients()

	leaderClient.Seed(outpace.Envelope{ChannelID: ch.ID, From: "leader", Msg: outpace.Message{
		Type: outpace.TypeAccounting,
		Accounting: &outpace.Accounting{
			LastEvAggr: time.Now(),
			Balances:   outpace.BalanceMap{"P": "3"},
		},
	}})

	outcome, err := LeaderTick(context.Background(), ch, leaderSigner, leaderClient)
	require.NoError(t, err)
	require.Equal(t, OutcomeNewState, outcome.Kind)

	newEnv, err := leaderClient.GetLatestMsg(context.Background(), ch.ID, "leader", outpace.TypeNewState)
	require.NoError(t, err)
	require.Equal(t, outpace.BalanceMap{"P": "3"}, newEnv.Msg.NewState.Balances)

	// Once the NewState catches up to the Accounting record, a further tick
	// with nothing new must not re-emit it.
	outcome2, err := LeaderTick(context.Background(), ch, leaderSigner, leaderClient)
	require.NoError(t, err)
	require.Equal(t, OutcomeNone, outcome2.Kind)
}

// S8 — idle fresh channel: no Accounting record, no events, no NewState
// ever emitted. LeaderTick must resolve to a no-op rather than emitting an
// empty NewState every cycle.
func TestS8FreshChannelWithNoBalancesIsNoop(t *testing.T) {
	ch := newChannel(1000)
	leaderSigner := dummy.New("leader")
	leaderClient, _ := wiredClients()

	outcome, err := LeaderTick(context.Background(), ch, leaderSigner, leaderClient)
	require.NoError(t, err)
	require.Equal(t, OutcomeNone, outcome.Kind)

	outcome2, err := LeaderTick(context.Background(), ch, leaderSigner, leaderClient)
	require.NoError(t, err)
	require.Equal(t, OutcomeNone, outcome2.Kind)
}
