// Package producer implements spec.md §4.5: the accounting tick that folds
// unconsumed event aggregates into the channel's running balance tree.
// Structurally grounded on staking/state.go's load-mutate-persist single
// record pattern (there, an account's staking ledger; here, a channel's
// Accounting record).
package producer

import (
	"context"
	"time"

	"github.com/outpace-network/validatorworker/balance"
	"github.com/outpace-network/validatorworker/internal/logging"
	"github.com/outpace-network/validatorworker/outpace"
	"github.com/outpace-network/validatorworker/sentry"
)

// Result is the outcome of a Tick: it always carries both the before- and
// after-fees views of the current balance tree that the leader/follower tick
// needs next. Changed reports whether any event aggregates were folded in
// this tick.
type Result struct {
	Balances          balance.Map
	BalancesAfterFees balance.Map
	Exhausted         bool
	Changed           bool
}

// Tick implements spec.md §4.5's four steps: load the current balance tree
// from the channel's last Accounting record, fold in unconsumed event
// aggregates by saturating addition, and persist the updated record. It is
// idempotent: replaying the same aggregate set from the same starting
// Accounting record yields the same balances (spec.md §8 property 4).
func Tick(ctx context.Context, ch *outpace.Channel, ourIdentity string, client sentry.Client) (*Result, error) {
	log := logging.With("channelId", ch.ID, "component", "producer")

	accEnv, err := client.GetOurLatestMsg(ctx, ch.ID, ourIdentity, []outpace.MessageType{outpace.TypeAccounting})
	if err != nil {
		return nil, err
	}

	running := balance.New()
	var lastEvAggr time.Time
	if accEnv != nil {
		running, err = balance.FromDecimalMap(accEnv.Msg.Accounting.Balances)
		if err != nil {
			return nil, err
		}
		lastEvAggr = accEnv.Msg.Accounting.LastEvAggr
	}

	aggregates, err := client.GetEventAggregates(ctx, ch.ID, lastEvAggr)
	if err != nil {
		return nil, err
	}

	exhausted := false
	if len(aggregates) > 0 {
		for _, agg := range aggregates {
			delta := balance.New()
			for publisher, pe := range agg.Events {
				amt, err := balance.FromDecimalMap(pe.EventPayouts)
				if err != nil {
					return nil, err
				}
				delta[publisher] = amt.Sum()
			}
			var didClamp bool
			running, didClamp = balance.SaturatingAdd(running, delta, ch.DepositAmount)
			exhausted = exhausted || didClamp
			if agg.Created.After(lastEvAggr) {
				lastEvAggr = agg.Created
			}
		}

		acc := outpace.Accounting{
			LastEvAggr: lastEvAggr,
			Balances:   balance.ToDecimalMap(running),
		}
		if err := client.PersistAndPropagate(ctx, ch, ourIdentity, nil, outpace.Message{Type: outpace.TypeAccounting, Accounting: &acc}); err != nil {
			return nil, err
		}

		if exhausted {
			log.Warn("channel deposit exhausted during producer tick", "depositAmount", ch.DepositAmount.String())
		}
	}

	// afterFees is derived every tick, not only when aggregates advanced
	// running: a crash between last cycle's Accounting persist and its
	// NewState propagation leaves Changed false this cycle while the
	// leader still needs BalancesAfterFees to notice and resume that
	// pending NewState (spec.md §4.6 step 2).
	afterFees, err := balance.AfterFees(running, ch)
	if err != nil {
		return nil, err
	}

	return &Result{Balances: running, BalancesAfterFees: afterFees, Exhausted: exhausted, Changed: len(aggregates) > 0}, nil
}
