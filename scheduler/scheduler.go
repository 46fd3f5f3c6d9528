// Package scheduler implements spec.md §5: the per-cycle fan-out of ticks
// across every channel where our identity is validator 0 or 1. Structurally
// grounded on the teacher's node package's Start/Stop lifecycle, fanning out
// with golang.org/x/sync/errgroup for the "Promise.all semantics" spec.md §5
// names, bounding each channel's tick with VALIDATOR_TICK_TIMEOUT.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/outpace-network/validatorworker/adapter"
	"github.com/outpace-network/validatorworker/balance"
	"github.com/outpace-network/validatorworker/config"
	"github.com/outpace-network/validatorworker/heartbeat"
	"github.com/outpace-network/validatorworker/internal/logging"
	"github.com/outpace-network/validatorworker/outpace"
	"github.com/outpace-network/validatorworker/sentry"
	"github.com/outpace-network/validatorworker/validatortick"
)

// Scheduler runs periodic tick cycles across every channel where our
// identity appears as leader or follower.
type Scheduler struct {
	cfg    config.Config
	signer adapter.Signer
	client sentry.Client
	log    *logging.Logger

	mu            sync.Mutex
	lastHeartbeat map[string]time.Time // channelId -> last Heartbeat emission
	deadChannels  map[string]bool      // channelId -> permanently excluded (AssertionFailure or deposit exhaustion)
}

// New returns a Scheduler driven by signer against client, using cfg's
// tick/wait/heartbeat timings.
func New(cfg config.Config, signer adapter.Signer, client sentry.Client) *Scheduler {
	return &Scheduler{
		cfg:           cfg,
		signer:        signer,
		client:        client,
		log:           logging.With("component", "scheduler"),
		lastHeartbeat: make(map[string]time.Time),
		deadChannels:  make(map[string]bool),
	}
}

// RunOnce runs exactly one tick cycle over every channel currently listed
// for our identity, bounded per channel by cfg.TickTimeout, fanned out via
// errgroup (spec.md §5's "Promise.all semantics"). The fan-out has no
// concurrency limit: every listed channel gets its own goroutine.
// It never returns an error for a single channel's failure; those are
// logged and the channel is retried next cycle (or permanently skipped for
// AssertionFailure-class errors).
func (s *Scheduler) RunOnce(ctx context.Context) error {
	ourIdentity := string(s.signer.WhoAmI())
	channels, err := s.client.ListChannels(ctx, ourIdentity)
	if err != nil {
		s.log.Warn("sentry unreachable while listing channels", "err", err)
		return nil
	}
	if len(channels) > s.cfg.MaxChannels {
		s.log.Warn("channel count exceeds configured warning threshold", "count", len(channels), "max", s.cfg.MaxChannels)
	}

	g, gctx := errgroup.WithContext(context.Background())
	for i := range channels {
		ch := channels[i]
		g.Go(func() error {
			s.tickChannel(gctx, &ch)
			return nil
		})
	}
	return g.Wait()
}

// Run loops RunOnce every cfg.WaitTime until ctx is canceled, draining the
// in-flight cycle before returning — spec.md §5's SIGTERM drain policy.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.WaitTime)
	defer ticker.Stop()

	if err := s.RunOnce(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				return err
			}
		}
	}
}

// tickChannel runs one bounded tick for ch, dispatching to the leader or
// follower state machine depending on our position in the channel's
// validator pair, then the heartbeat fallback. Errors are logged, not
// propagated, per spec.md §7's per-channel error taxonomy — except
// AssertionFailure-class errors, which permanently exclude the channel.
// A channel also stops being ticked once its deposit is fully distributed
// (spec.md §3's lifecycle: live until validUntil *or* exhaustion), checked
// alongside validUntil before any leader/follower work is attempted.
func (s *Scheduler) tickChannel(ctx context.Context, ch *outpace.Channel) {
	if s.isDead(ch.ID) {
		return
	}
	log := s.log.With("channelId", ch.ID)

	if ch.ValidUntil > 0 && time.Now().Unix() > ch.ValidUntil {
		log.Debug("channel past validUntil, skipping")
		return
	}

	tctx, cancel := context.WithTimeout(ctx, s.cfg.TickTimeout)
	defer cancel()

	ourIdentity := string(s.signer.WhoAmI())

	exhausted, err := s.channelExhausted(tctx, ch, ourIdentity)
	if err != nil {
		log.Warn("failed to check channel exhaustion, ticking anyway", "err", err)
	} else if exhausted {
		log.Info("channel deposit fully distributed, excluding from further ticks")
		s.markDead(ch.ID)
		return
	}

	idx := ch.OurIndex(ourIdentity)

	var outcome *validatortick.Outcome
	switch idx {
	case 0:
		outcome, err = validatortick.LeaderTick(tctx, ch, s.signer, s.client)
	case 1:
		outcome, err = validatortick.FollowerTick(tctx, ch, s.signer, s.client, s.cfg.HealthThresholdPromilles)
	default:
		log.Error("scheduled a channel we are not a validator of", "identity", ourIdentity)
		return
	}

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn("tick timed out, will retry next cycle")
			return
		}
		if errors.Is(err, validatortick.ErrApprovedStateCorrupt) {
			log.Crit("approved state references no known NewState, excluding channel", "err", err)
			s.markDead(ch.ID)
			return
		}
		log.Error("tick failed", "err", err)
		return
	}

	if outcome.Kind != validatortick.OutcomeNone {
		s.resetHeartbeat(ch.ID)
		return
	}

	peers := otherValidators(ch, ourIdentity)
	emitted, err := heartbeat.MaybeEmit(tctx, ch, s.signer, s.client, peers, s.lastHeartbeatAt(ch.ID), s.cfg.HeartbeatTime)
	if err != nil {
		log.Error("heartbeat failed", "err", err)
		return
	}
	if emitted {
		s.resetHeartbeat(ch.ID)
	}
}

// channelExhausted reports whether ch's deposit has already been fully
// distributed, per its latest persisted Accounting record — spec.md §3's
// exhaustion half of the channel lifecycle. A channel with no Accounting
// record yet (nothing has ever been folded into its balance tree) is never
// exhausted.
func (s *Scheduler) channelExhausted(ctx context.Context, ch *outpace.Channel, ourIdentity string) (bool, error) {
	accEnv, err := s.client.GetOurLatestMsg(ctx, ch.ID, ourIdentity, []outpace.MessageType{outpace.TypeAccounting})
	if err != nil {
		return false, err
	}
	if accEnv == nil {
		return false, nil
	}
	balances, err := balance.FromDecimalMap(accEnv.Msg.Accounting.Balances)
	if err != nil {
		return false, err
	}
	return ch.Exhausted(balances.Sum()), nil
}

func otherValidators(ch *outpace.Channel, ourIdentity string) []outpace.Validator {
	var out []outpace.Validator
	for _, v := range ch.Spec.Validators {
		if v.ID != ourIdentity {
			out = append(out, v)
		}
	}
	return out
}

func (s *Scheduler) isDead(channelID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deadChannels[channelID]
}

func (s *Scheduler) markDead(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deadChannels[channelID] = true
}

func (s *Scheduler) lastHeartbeatAt(channelID string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHeartbeat[channelID]
}

func (s *Scheduler) resetHeartbeat(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastHeartbeat[channelID] = time.Now()
}
