// Package config models the process-wide configuration of spec.md §6 as an
// immutable value threaded through constructors, per spec.md §9's design
// note, rather than global mutable state.
package config

import "time"

// AdapterKind selects which signing adapter implementation to construct.
type AdapterKind string

const (
	AdapterEthereum AdapterKind = "ethereum"
	AdapterDummy    AdapterKind = "dummy"
)

// Config holds every process-wide tunable named in spec.md §6.
type Config struct {
	Adapter       AdapterKind
	KeystoreFile  string
	DummyIdentity string
	KeystorePwd   string
	SentryURL     string
	SingleTick    bool

	TickTimeout              time.Duration
	WaitTime                 time.Duration
	ListTimeout              time.Duration
	HealthThresholdPromilles uint32
	HeartbeatTime            time.Duration
	MaxChannels              int
}

// Defaults returns the baseline configuration spec.md §6/§8 calls out by
// name (5s tick timeout, 95% health threshold, sentry at 127.0.0.1:8005).
func Defaults() Config {
	return Config{
		SentryURL:                "http://127.0.0.1:8005",
		TickTimeout:              5 * time.Second,
		WaitTime:                 30 * time.Second,
		ListTimeout:              10 * time.Second,
		HealthThresholdPromilles: 950,
		HeartbeatTime:            60 * time.Second,
		MaxChannels:              1000,
	}
}

// Validate checks the subset of fields that must be set regardless of
// adapter choice, plus the adapter-specific required fields.
func (c Config) Validate() error {
	switch c.Adapter {
	case AdapterEthereum:
		if c.KeystoreFile == "" {
			return ErrKeystoreFileRequired
		}
	case AdapterDummy:
		if c.DummyIdentity == "" {
			return ErrDummyIdentityRequired
		}
	default:
		return ErrUnknownAdapter
	}
	if c.SentryURL == "" {
		return ErrSentryURLRequired
	}
	return nil
}
