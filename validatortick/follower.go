package validatortick

import (
	"context"
	"errors"
	"fmt"

	"github.com/outpace-network/validatorworker/adapter"
	"github.com/outpace-network/validatorworker/balance"
	"github.com/outpace-network/validatorworker/commitment"
	"github.com/outpace-network/validatorworker/internal/logging"
	"github.com/outpace-network/validatorworker/outpace"
	"github.com/outpace-network/validatorworker/producer"
	"github.com/outpace-network/validatorworker/sentry"
)

// FollowerTick implements spec.md §4.7, the core state machine. Evaluated
// in this exact order:
//
//  1. if there's no fresh NewState (missing, or already approved), fall
//     through to the producer tick with no ApproveState/RejectState;
//  2. otherwise validate the pending NewState against our own view, in the
//     order InvalidTransition, InvalidValidatorFees, InvalidRootHash,
//     InvalidSignature, rejecting on the first failure;
//  3. on success, sign and persist+propagate ApproveState with the
//     isHealthy verdict.
func FollowerTick(ctx context.Context, ch *outpace.Channel, signer adapter.Signer, client sentry.Client, healthThresholdPromilles uint32) (*Outcome, error) {
	ourIdentity := string(signer.WhoAmI())
	if ch.OurIndex(ourIdentity) != 1 {
		return nil, ErrNotOurChannel
	}
	log := logging.With("channelId", ch.ID, "component", "follower")
	leader := ch.Spec.Leader()

	newEnv, err := client.GetLatestMsg(ctx, ch.ID, leader.ID, outpace.TypeNewState)
	if err != nil {
		return nil, err
	}

	approved, err := client.GetLastApproved(ctx, ch.ID)
	if err != nil {
		if errors.Is(err, sentry.ErrApprovedStateCorrupt) {
			// spec.md §9's augmentWithBalances assertion: a recorded
			// ApproveState with no matching NewState is data corruption,
			// a hard failure for this channel's tick, never retried as if
			// it were a transient condition.
			return nil, ErrApprovedStateCorrupt
		}
		return nil, err
	}

	// Step 1: no fresh NewState pending.
	if newEnv == nil {
		return producerOnly(ctx, ch, ourIdentity, client)
	}
	if approved != nil && approved.NewState.Msg.NewState.StateRoot == newEnv.Msg.NewState.StateRoot {
		return producerOnly(ctx, ch, ourIdentity, client)
	}

	// Step 2: run the producer tick to obtain our own view before
	// validating, closing the window described in spec.md §5.
	result, err := producer.Tick(ctx, ch, ourIdentity, client)
	if err != nil {
		return nil, err
	}

	// prev is the balances of the NewState our latest ApproveState
	// references (joined by stateRoot, per spec.md §4.7's "approveMsg
	// augmented by joining to the NewState... for its balances"), or empty
	// if we've never approved anything on this channel.
	var prev balance.Map
	if approved != nil {
		prev, err = balance.FromDecimalMap(approved.NewState.Msg.NewState.Balances)
		if err != nil {
			return nil, err
		}
	} else {
		prev = balance.New()
	}
	next, err := balance.FromDecimalMap(newEnv.Msg.NewState.Balances)
	if err != nil {
		return nil, err
	}

	if reason, ok := validate(ch, prev, next, newEnv, leader, signer); !ok {
		// The rejected NewState can fail validation on grounds
		// (InvalidTransition, InvalidValidatorFees) checked before
		// validate's own root-hash-format check, so its stateRoot is not
		// yet known to be well-formed hex here. Decode it explicitly
		// rather than silently signing a RejectState over an all-zero
		// root for a byzantine leader that also sent a malformed root.
		root, decodeErr := commitment.DecodeRoot(newEnv.Msg.NewState.StateRoot)
		if decodeErr != nil {
			return nil, fmt.Errorf("validatortick: decoding rejected stateRoot: %w", decodeErr)
		}
		sig, signErr := signer.Sign(ctx, root)
		if signErr != nil {
			return nil, signErr
		}
		rejectMsg := outpace.Message{
			Type: outpace.TypeRejectState,
			RejectState: &outpace.RejectState{
				StateRoot: newEnv.Msg.NewState.StateRoot,
				Signature: string(sig),
				Reason:    reason,
			},
		}
		if err := client.PersistAndPropagate(ctx, ch, ourIdentity, []outpace.Validator{leader}, rejectMsg); err != nil {
			return nil, err
		}
		log.Warn("rejected NewState", "stateRoot", newEnv.Msg.NewState.StateRoot, "reason", reason)
		return &Outcome{Kind: OutcomeRejectState, StateRoot: newEnv.Msg.NewState.StateRoot, Reason: reason}, nil
	}

	root := mustDecodeRoot(newEnv.Msg.NewState.StateRoot)
	sig, err := signer.Sign(ctx, root)
	if err != nil {
		return nil, err
	}
	healthy := balance.IsHealthy(result.Balances, next, healthThresholdPromilles)
	approveMsg := outpace.Message{
		Type: outpace.TypeApproveState,
		ApproveState: &outpace.ApproveState{
			StateRoot: newEnv.Msg.NewState.StateRoot,
			Signature: string(sig),
			IsHealthy: healthy,
		},
	}
	if err := client.PersistAndPropagate(ctx, ch, ourIdentity, []outpace.Validator{leader}, approveMsg); err != nil {
		return nil, err
	}
	log.Info("approved NewState", "stateRoot", newEnv.Msg.NewState.StateRoot, "isHealthy", healthy)
	return &Outcome{Kind: OutcomeApproveState, StateRoot: newEnv.Msg.NewState.StateRoot}, nil
}

// validate runs the four ordered checks of spec.md §4.7 step 4, returning
// the first failing reason, or ("", true) on success.
func validate(ch *outpace.Channel, prev, next balance.Map, newEnv *outpace.Envelope, leader outpace.Validator, signer adapter.Signer) (outpace.RejectReason, bool) {
	if !balance.IsValidTransition(ch, prev, next) {
		return outpace.ReasonInvalidTransition, false
	}

	afterFees, err := balance.AfterFees(next, ch)
	if err != nil {
		return outpace.ReasonInvalidValidatorFees, false
	}
	claimedAfterFees, err := balance.FromDecimalMap(newEnv.Msg.NewState.BalancesAfterFees)
	if err != nil || !afterFees.Equal(claimedAfterFees) {
		return outpace.ReasonInvalidValidatorFees, false
	}

	if !commitment.IsValidRootHash(newEnv.Msg.NewState.StateRoot, ch.ID, claimedAfterFees) {
		return outpace.ReasonInvalidRootHash, false
	}

	root := mustDecodeRoot(newEnv.Msg.NewState.StateRoot)
	if !signer.Verify(adapter.Identity(leader.ID), root, adapter.Signature(newEnv.Msg.NewState.Signature)) {
		return outpace.ReasonInvalidSignature, false
	}

	return "", true
}

// producerOnly runs the producer tick only, with no ApproveState/RejectState
// emitted — the path taken when there's nothing fresh to validate.
func producerOnly(ctx context.Context, ch *outpace.Channel, ourIdentity string, client sentry.Client) (*Outcome, error) {
	if _, err := producer.Tick(ctx, ch, ourIdentity, client); err != nil {
		return nil, err
	}
	return &Outcome{Kind: OutcomeNone}, nil
}

// mustDecodeRoot decodes a stateRoot already known to be well-formed hex:
// both call sites above run only after commitment.IsValidRootHash has
// checked the same string, so the error return can't fire here. The reject
// path, which can run before that check, decodes explicitly instead of
// through this helper.
func mustDecodeRoot(hexRoot string) [32]byte {
	root, _ := commitment.DecodeRoot(hexRoot)
	return root
}
