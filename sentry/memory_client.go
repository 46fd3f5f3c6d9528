package sentry

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/outpace-network/validatorworker/outpace"
)

// MemoryClient is an in-memory Client, guarded by a single mutex the way
// agent.Registry guards its maps. It is the test double used by the
// scheduler, producer, heartbeat and validatortick tests; it also
// assigns its own monotonic sequence numbers, resolving spec.md §9's
// same-millisecond ordering ambiguity the way sentry.HTTPClient trusts the
// real sentry to.
type MemoryClient struct {
	mu       sync.RWMutex
	messages []outpace.Envelope
	seq      atomic.Uint64

	aggregates map[string][]outpace.EventAggregate // channelID -> aggregates, in cursor order
	channels   map[string]outpace.Channel

	// PropagateFunc, when set, is invoked instead of locally recording a
	// propagated message — tests use this to simulate a peer MemoryClient
	// or to inject PropagationFailure.
	PropagateFunc func(ctx context.Context, channelID string, to outpace.Validator, msg outpace.Message) error
}

// NewMemoryClient returns an empty MemoryClient.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		aggregates: make(map[string][]outpace.EventAggregate),
		channels:   make(map[string]outpace.Channel),
	}
}

// SeedChannel registers ch so ListChannels can return it.
func (c *MemoryClient) SeedChannel(ch outpace.Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels[ch.ID] = ch
}

// ListChannels implements Client.ListChannels.
func (c *MemoryClient) ListChannels(ctx context.Context, validatorIdentity string) ([]outpace.Channel, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []outpace.Channel
	for _, ch := range c.channels {
		if ch.OurIndex(validatorIdentity) >= 0 {
			out = append(out, ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Seed appends envelopes directly to the store without going through
// Propagate, for test setup (e.g. injecting a byzantine NewState).
func (c *MemoryClient) Seed(envelopes ...outpace.Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range envelopes {
		c.seq.Add(1)
		e.Seq = c.seq.Load()
		c.messages = append(c.messages, e)
	}
}

// SeedAggregates registers event aggregates for channelID, in the order
// given.
func (c *MemoryClient) SeedAggregates(channelID string, aggs ...outpace.EventAggregate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range aggs {
		aggs[i].Seq = uint64(len(c.aggregates[channelID]) + i + 1)
	}
	c.aggregates[channelID] = append(c.aggregates[channelID], aggs...)
}

func (c *MemoryClient) persist(channelID, from string, msg outpace.Message) outpace.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq.Add(1)
	env := outpace.Envelope{
		ChannelID: channelID,
		From:      from,
		Seq:       c.seq.Load(),
		Msg:       msg,
	}
	c.messages = append(c.messages, env)
	return env
}

// GetLatestMsg implements Client.GetLatestMsg by scanning for the
// highest-Seq envelope matching (channelID, from, msgType).
func (c *MemoryClient) GetLatestMsg(ctx context.Context, channelID, from string, msgType outpace.MessageType) (*outpace.Envelope, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var latest *outpace.Envelope
	for i := range c.messages {
		e := &c.messages[i]
		if e.ChannelID != channelID || e.From != from || e.Msg.Type != msgType {
			continue
		}
		if latest == nil || e.Seq > latest.Seq {
			latest = e
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

// GetOurLatestMsg implements Client.GetOurLatestMsg.
func (c *MemoryClient) GetOurLatestMsg(ctx context.Context, channelID string, ourIdentity string, types []outpace.MessageType) (*outpace.Envelope, error) {
	allowed := make(map[outpace.MessageType]bool, len(types))
	for _, t := range types {
		allowed[t] = true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	var latest *outpace.Envelope
	for i := range c.messages {
		e := &c.messages[i]
		if e.ChannelID != channelID || e.From != ourIdentity || !allowed[e.Msg.Type] {
			continue
		}
		if latest == nil || e.Seq > latest.Seq {
			latest = e
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

// GetLastApproved implements Client.GetLastApproved: the follower's latest
// ApproveState, joined to the NewState it references by stateRoot.
func (c *MemoryClient) GetLastApproved(ctx context.Context, channelID string) (*LastApproved, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var approve *outpace.Envelope
	for i := range c.messages {
		e := &c.messages[i]
		if e.ChannelID != channelID || e.Msg.Type != outpace.TypeApproveState {
			continue
		}
		if approve == nil || e.Seq > approve.Seq {
			approve = e
		}
	}
	if approve == nil {
		return nil, nil
	}

	var newState *outpace.Envelope
	for i := range c.messages {
		e := &c.messages[i]
		if e.ChannelID != channelID || e.Msg.Type != outpace.TypeNewState {
			continue
		}
		if e.Msg.NewState.StateRoot != approve.Msg.ApproveState.StateRoot {
			continue
		}
		if newState == nil || e.Seq > newState.Seq {
			newState = e
		}
	}
	if newState == nil {
		return nil, ErrApprovedStateCorrupt
	}

	approveCp, newStateCp := *approve, *newState
	return &LastApproved{NewState: &newStateCp, ApproveState: &approveCp}, nil
}

// Propagate implements Client.Propagate. In MemoryClient this either
// invokes PropagateFunc (to hand the message to a peer client under test)
// or is a no-op, matching spec.md §4.4's "failures per-peer are logged and
// non-fatal" — a MemoryClient with no PropagateFunc never fails.
func (c *MemoryClient) Propagate(ctx context.Context, channelID string, validators []outpace.Validator, ourIdentity string, msg outpace.Message) error {
	if c.PropagateFunc == nil {
		return nil
	}
	for _, v := range validators {
		if v.ID == ourIdentity {
			continue
		}
		_ = c.PropagateFunc(ctx, channelID, v, msg) // per-peer failures are logged by the caller's adapter, never fatal here
	}
	return nil
}

// PersistAndPropagate implements Client.PersistAndPropagate: local persist
// happens before propagation and always stands regardless of propagation
// outcome.
func (c *MemoryClient) PersistAndPropagate(ctx context.Context, ch *outpace.Channel, ourIdentity string, otherValidators []outpace.Validator, msg outpace.Message) error {
	c.persist(ch.ID, ourIdentity, msg)
	return c.Propagate(ctx, ch.ID, otherValidators, ourIdentity, msg)
}

// GetEventAggregates implements Client.GetEventAggregates.
func (c *MemoryClient) GetEventAggregates(ctx context.Context, channelID string, afterCursor time.Time) ([]outpace.EventAggregate, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	all := c.aggregates[channelID]
	out := make([]outpace.EventAggregate, 0, len(all))
	for _, a := range all {
		if a.Created.After(afterCursor) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}
