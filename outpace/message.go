package outpace

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"
)

// MessageType identifies which variant of ValidatorMessage an envelope
// carries. The wire discriminator is the "type" field.
type MessageType string

const (
	TypeNewState     MessageType = "NewState"
	TypeApproveState MessageType = "ApproveState"
	TypeRejectState  MessageType = "RejectState"
	TypeHeartbeat    MessageType = "Heartbeat"
	TypeAccounting   MessageType = "Accounting"
)

// RejectReason enumerates the follower's validation-failure reasons, in the
// order they are checked (spec.md §4.7 step 4).
type RejectReason string

const (
	ReasonInvalidTransition    RejectReason = "InvalidTransition"
	ReasonInvalidValidatorFees RejectReason = "InvalidValidatorFees"
	ReasonInvalidRootHash      RejectReason = "InvalidRootHash"
	ReasonInvalidSignature     RejectReason = "InvalidSignature"
)

// BalanceMap is the wire form of a balance.Map: publisher -> decimal string.
// Business logic never touches this type directly; balance.Map is the
// internal big.Int representation and (De)MarshalBalances convert.
type BalanceMap map[string]string

// MarshalBalances converts a big.Int-keyed balance map to its wire form.
func MarshalBalances(m map[string]*big.Int) BalanceMap {
	out := make(BalanceMap, len(m))
	for k, v := range m {
		out[k] = v.String()
	}
	return out
}

// UnmarshalBalances converts a wire balance map to big.Int, rejecting any
// value that doesn't parse as a non-negative base-10 integer.
func UnmarshalBalances(m BalanceMap) (map[string]*big.Int, error) {
	out := make(map[string]*big.Int, len(m))
	for k, v := range m {
		n, ok := new(big.Int).SetString(v, 10)
		if !ok || n.Sign() < 0 {
			return nil, fmt.Errorf("outpace: invalid balance %q for publisher %q", v, k)
		}
		out[k] = n
	}
	return out, nil
}

// NewState is the leader's signed proposal of the next balance tree.
type NewState struct {
	StateRoot         string     `json:"stateRoot"`
	Signature         string     `json:"signature"`
	Balances          BalanceMap `json:"balances"`
	BalancesAfterFees BalanceMap `json:"balancesAfterFees"`
}

// ApproveState is the follower's signed acknowledgement of a NewState.
type ApproveState struct {
	StateRoot string `json:"stateRoot"`
	Signature string `json:"signature"`
	IsHealthy bool   `json:"isHealthy"`
}

// RejectState is the follower's signed rejection of a NewState.
type RejectState struct {
	StateRoot string       `json:"stateRoot"`
	Signature string       `json:"signature"`
	Reason    RejectReason `json:"reason"`
}

// Heartbeat is the periodic liveness message.
type Heartbeat struct {
	StateRoot string    `json:"stateRoot"`
	Signature string    `json:"signature"`
	Timestamp time.Time `json:"timestamp"`
}

// Accounting is the internal bookkeeping record produced by the producer
// tick: the running pre-fee balance tree and the event-aggregate consumption
// cursor. Fees are not stored here; the producer tick re-derives them from
// this tree with balance.AfterFees on every tick.
type Accounting struct {
	LastEvAggr time.Time  `json:"lastEvAggr"`
	Balances   BalanceMap `json:"balances"`
}

// Message is the tagged union of the five ValidatorMessage variants.
// Exactly one of the pointer fields is non-nil, matching Type.
type Message struct {
	Type         MessageType   `json:"type"`
	NewState     *NewState     `json:"-"`
	ApproveState *ApproveState `json:"-"`
	RejectState  *RejectState  `json:"-"`
	Heartbeat    *Heartbeat    `json:"-"`
	Accounting   *Accounting   `json:"-"`
}

// MarshalJSON flattens whichever variant is set into a single JSON object
// alongside the "type" discriminator, so the wire form matches spec.md §6.
func (m Message) MarshalJSON() ([]byte, error) {
	var payload interface{}
	switch m.Type {
	case TypeNewState:
		payload = m.NewState
	case TypeApproveState:
		payload = m.ApproveState
	case TypeRejectState:
		payload = m.RejectState
	case TypeHeartbeat:
		payload = m.Heartbeat
	case TypeAccounting:
		payload = m.Accounting
	default:
		return nil, fmt.Errorf("outpace: unknown message type %q", m.Type)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(body, &merged); err != nil {
		return nil, err
	}
	typeRaw, err := json.Marshal(m.Type)
	if err != nil {
		return nil, err
	}
	merged["type"] = typeRaw
	return json.Marshal(merged)
}

// UnmarshalJSON parses the "type" discriminator first, then decodes the
// matching variant, following the same decode-by-discriminator shape as
// sysaction.Decode.
func (m *Message) UnmarshalJSON(data []byte) error {
	var disc struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &disc); err != nil {
		return err
	}
	m.Type = disc.Type
	switch disc.Type {
	case TypeNewState:
		m.NewState = new(NewState)
		return json.Unmarshal(data, m.NewState)
	case TypeApproveState:
		m.ApproveState = new(ApproveState)
		return json.Unmarshal(data, m.ApproveState)
	case TypeRejectState:
		m.RejectState = new(RejectState)
		return json.Unmarshal(data, m.RejectState)
	case TypeHeartbeat:
		m.Heartbeat = new(Heartbeat)
		return json.Unmarshal(data, m.Heartbeat)
	case TypeAccounting:
		m.Accounting = new(Accounting)
		return json.Unmarshal(data, m.Accounting)
	default:
		return fmt.Errorf("outpace: unknown message type %q", disc.Type)
	}
}

// StateRootOf returns the state root carried by the message, if any.
func (m Message) StateRootOf() string {
	switch m.Type {
	case TypeNewState:
		return m.NewState.StateRoot
	case TypeApproveState:
		return m.ApproveState.StateRoot
	case TypeRejectState:
		return m.RejectState.StateRoot
	case TypeHeartbeat:
		return m.Heartbeat.StateRoot
	default:
		return ""
	}
}

// Envelope wraps a Message with the persistence metadata the sentry
// attaches: which channel, which validator emitted it, when it was
// received, and an insertion-order sequence number used to resolve
// same-millisecond ties (spec.md §9's recommended replacement for
// Mongo _id/created ordering).
type Envelope struct {
	ChannelID string    `json:"channelId"`
	From      string    `json:"from"`
	Received  time.Time `json:"received"`
	Seq       uint64    `json:"seq"`
	Msg       Message   `json:"msg"`
}
