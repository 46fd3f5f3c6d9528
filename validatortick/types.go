// Package validatortick implements spec.md §4.6-§4.7, the leader and
// follower tick state machines — the core of the validator worker.
// Structurally grounded on consensus/bft/vote_pool.go's per-round
// bookkeeping (generalized here to per-channel bookkeeping) and on
// sysaction/executor.go's validate-then-mutate, reject-with-reason handler
// shape for the follower's ordered validation.
package validatortick

import (
	"errors"

	"github.com/outpace-network/validatorworker/outpace"
)

// OutcomeKind names which of spec.md §4's five message variants (or none)
// a tick produced.
type OutcomeKind string

const (
	OutcomeNewState     OutcomeKind = "NewState"
	OutcomeApproveState OutcomeKind = "ApproveState"
	OutcomeRejectState  OutcomeKind = "RejectState"
	OutcomeHeartbeat    OutcomeKind = "Heartbeat"
	OutcomeNone         OutcomeKind = "None"
)

// Outcome reports what a leader or follower tick produced, for the
// scheduler to log per spec.md §7's structured-log requirement.
type Outcome struct {
	Kind      OutcomeKind
	StateRoot string
	Reason    outpace.RejectReason
}

// ErrApprovedStateCorrupt mirrors sentry.ErrApprovedStateCorrupt at this
// layer: a follower's ApproveState references a stateRoot with no matching
// NewState. Per spec.md §9, this is an AssertionFailure — fatal for the
// channel's tick, not retryable, not fatal for the process.
var ErrApprovedStateCorrupt = errors.New("validatortick: approved stateRoot has no matching NewState")

// ErrNotOurChannel is the ChannelNotOurs assertion of spec.md §7: the
// caller invoked LeaderTick/FollowerTick for an identity that isn't one of
// the channel's two validators.
var ErrNotOurChannel = errors.New("validatortick: identity is not a validator of this channel")
