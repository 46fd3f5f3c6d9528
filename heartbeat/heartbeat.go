// Package heartbeat implements spec.md §4.8: the liveness message emitted
// when a tick produced nothing new and enough time has elapsed since our
// last one.
package heartbeat

import (
	"context"
	"crypto/sha256"
	"time"

	"github.com/outpace-network/validatorworker/adapter"
	"github.com/outpace-network/validatorworker/commitment"
	"github.com/outpace-network/validatorworker/internal/logging"
	"github.com/outpace-network/validatorworker/outpace"
	"github.com/outpace-network/validatorworker/sentry"
)

// zeroRoot is the all-zero stateRoot a Heartbeat commits to, per spec.md
// §4.8.
var zeroRoot [32]byte

// MaybeEmit emits a Heartbeat if the time since lastHeartbeatAt exceeds
// heartbeatTime. lastHeartbeatAt is the zero time.Time if we've never sent
// one, which always exceeds any positive threshold.
func MaybeEmit(ctx context.Context, ch *outpace.Channel, signer adapter.Signer, client sentry.Client, peers []outpace.Validator, lastHeartbeatAt time.Time, heartbeatTime time.Duration) (bool, error) {
	if !lastHeartbeatAt.IsZero() && time.Since(lastHeartbeatAt) < heartbeatTime {
		return false, nil
	}

	now := time.Now().UTC()
	sigPayload := signaturePayload(zeroRoot, now, ch.ID)
	sig, err := signer.Sign(ctx, sigPayload)
	if err != nil {
		return false, err
	}

	msg := outpace.Message{
		Type: outpace.TypeHeartbeat,
		Heartbeat: &outpace.Heartbeat{
			StateRoot: commitment.Hex(zeroRoot),
			Signature: string(sig),
			Timestamp: now,
		},
	}
	ourIdentity := string(signer.WhoAmI())
	if err := client.PersistAndPropagate(ctx, ch, ourIdentity, peers, msg); err != nil {
		return false, err
	}
	logging.With("channelId", ch.ID, "component", "heartbeat").Debug("emitted Heartbeat", "timestamp", now)
	return true, nil
}

// signaturePayload hashes zeros||timestamp||channelId into the 32-byte
// value the adapter signs, per spec.md §4.8's "sign(zeros||timestamp||
// channelId)".
func signaturePayload(root [32]byte, timestamp time.Time, channelID string) [32]byte {
	h := sha256.New()
	h.Write(root[:])
	h.Write([]byte(timestamp.Format(time.RFC3339Nano)))
	h.Write([]byte(channelID))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
