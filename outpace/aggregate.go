package outpace

import "time"

// EventCounts holds per-event-type impression/click counters for a publisher
// within one aggregate window.
type EventCounts map[string]uint64

// PublisherEvents is one publisher's contribution to an EventAggregate.
type PublisherEvents struct {
	EventCounts  EventCounts `json:"eventCounts"`
	EventPayouts BalanceMap  `json:"eventPayouts"`
}

// EventAggregate is a batch of off-chain events the sentry has rolled up
// for a channel, keyed by publisher. Consumption by the producer tick is
// idempotent: an aggregate is either fully folded into the running balance
// tree or not at all.
type EventAggregate struct {
	ChannelID string                     `json:"channelId"`
	Created   time.Time                  `json:"created"`
	Seq       uint64                     `json:"seq"`
	Events    map[string]PublisherEvents `json:"events"`
}
