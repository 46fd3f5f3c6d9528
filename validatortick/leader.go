package validatortick

import (
	"context"

	"github.com/outpace-network/validatorworker/adapter"
	"github.com/outpace-network/validatorworker/balance"
	"github.com/outpace-network/validatorworker/commitment"
	"github.com/outpace-network/validatorworker/internal/logging"
	"github.com/outpace-network/validatorworker/outpace"
	"github.com/outpace-network/validatorworker/producer"
	"github.com/outpace-network/validatorworker/sentry"
)

// LeaderTick implements spec.md §4.6. The leader never rejects and never
// emits ApproveState; it unilaterally advances the balance tree and signs
// it. Step 2's "nothing new" test is solely the comparison below between
// our latest persisted NewState and the producer tick's current balances —
// producer.Tick's own Changed flag only reports whether new event
// aggregates were folded this cycle, and is not a substitute: a prior
// cycle's Accounting can have advanced without its matching NewState ever
// having been signed and propagated (a crash or timeout between the two),
// in which case this cycle's Changed is false yet a NewState is still due.
func LeaderTick(ctx context.Context, ch *outpace.Channel, signer adapter.Signer, client sentry.Client) (*Outcome, error) {
	ourIdentity := string(signer.WhoAmI())
	if ch.OurIndex(ourIdentity) != 0 {
		return nil, ErrNotOurChannel
	}
	log := logging.With("channelId", ch.ID, "component", "leader")

	result, err := producer.Tick(ctx, ch, ourIdentity, client)
	if err != nil {
		return nil, err
	}

	ourLatest, err := client.GetOurLatestMsg(ctx, ch.ID, ourIdentity, []outpace.MessageType{outpace.TypeNewState})
	if err != nil {
		return nil, err
	}
	prevBalances := balance.New()
	if ourLatest != nil {
		prevBalances, err = balance.FromDecimalMap(ourLatest.Msg.NewState.Balances)
		if err != nil {
			return nil, err
		}
	}
	if prevBalances.Equal(result.Balances) {
		log.Debug("no balance change since last NewState")
		return &Outcome{Kind: OutcomeNone}, nil
	}

	root := commitment.StateRoot(ch.ID, result.BalancesAfterFees)
	rootHex := commitment.Hex(root)
	sig, err := signer.Sign(ctx, root)
	if err != nil {
		return nil, err
	}

	msg := outpace.Message{
		Type: outpace.TypeNewState,
		NewState: &outpace.NewState{
			StateRoot:         rootHex,
			Signature:         string(sig),
			Balances:          balance.ToDecimalMap(result.Balances),
			BalancesAfterFees: balance.ToDecimalMap(result.BalancesAfterFees),
		},
	}
	follower := []outpace.Validator{ch.Spec.Follower()}
	if err := client.PersistAndPropagate(ctx, ch, ourIdentity, follower, msg); err != nil {
		return nil, err
	}
	log.Info("emitted NewState", "stateRoot", rootHex)
	return &Outcome{Kind: OutcomeNewState, StateRoot: rootHex}, nil
}
