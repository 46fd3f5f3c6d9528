// Package sentry defines the operations spec.md §4.4 exposes to the leader
// and follower ticks against the external sentry HTTP service, plus an
// HTTPClient implementation (a thin typed wrapper in the style of
// tosclient.Client) and a MemoryClient test double (an in-memory,
// mutex-guarded registry in the style of agent.Registry).
package sentry

import (
	"context"
	"time"

	"github.com/outpace-network/validatorworker/outpace"
)

// LastApproved is the pairing spec.md §4.4's getLastApproved returns: the
// NewState the follower last approved, and the ApproveState that approved
// it.
type LastApproved struct {
	NewState     *outpace.Envelope
	ApproveState *outpace.Envelope
}

// Client is the sentry surface the producer, leader and follower ticks
// depend on. All methods are context-bound I/O (spec.md §5's suspension
// points).
type Client interface {
	// GetLatestMsg returns the newest message of msgType from validator
	// `from` on channelID, or nil if none exists.
	GetLatestMsg(ctx context.Context, channelID, from string, msgType outpace.MessageType) (*outpace.Envelope, error)

	// GetOurLatestMsg returns the newest message of any of types authored
	// by our own identity on channelID.
	GetOurLatestMsg(ctx context.Context, channelID string, ourIdentity string, types []outpace.MessageType) (*outpace.Envelope, error)

	// GetLastApproved returns the follower's last approved state pairing,
	// or nil if the follower has never approved anything on this channel.
	GetLastApproved(ctx context.Context, channelID string) (*LastApproved, error)

	// Propagate POSTs msg, authored on channelID, to every validator in
	// validators other than ourIdentity. Per-peer failures are logged by the
	// implementation and are non-fatal — spec.md §4.4/§7 PropagationFailure.
	Propagate(ctx context.Context, channelID string, validators []outpace.Validator, ourIdentity string, msg outpace.Message) error

	// PersistAndPropagate writes msg locally (as authored by ourIdentity)
	// before propagating it to otherValidators. The local write must
	// succeed before propagation is attempted; a propagation failure never
	// undoes the local write.
	PersistAndPropagate(ctx context.Context, ch *outpace.Channel, ourIdentity string, otherValidators []outpace.Validator, msg outpace.Message) error

	// GetEventAggregates returns aggregates for channelID created strictly
	// after afterCursor (the producer's last-folded Accounting.LastEvAggr),
	// ordered by their Seq field — spec.md §4.4's afterCursor iterator.
	GetEventAggregates(ctx context.Context, channelID string, afterCursor time.Time) ([]outpace.EventAggregate, error)

	// ListChannels returns channels where validatorIdentity appears as
	// either the leader or follower — spec.md §6's GET /channel/list.
	ListChannels(ctx context.Context, validatorIdentity string) ([]outpace.Channel, error)
}
