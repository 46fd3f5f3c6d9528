// Package outpace defines the channel and validator-message data model
// shared by the producer, leader, follower and sentry client packages.
package outpace

import (
	"errors"
	"math/big"
)

// Sentinel errors describing malformed channel specs.
var (
	ErrUnsupportedValidatorCount = errors.New("outpace: channel must declare exactly two validators")
	ErrFeesExceedDeposit         = errors.New("outpace: sum of validator fees exceeds deposit amount")
	ErrNegativeDeposit           = errors.New("outpace: deposit amount must be non-negative")
)

// Validator is one entry of a channel's validator pair.
type Validator struct {
	ID  string   `json:"id"`
	URL string   `json:"url"`
	Fee *big.Int `json:"fee"`
}

// Spec is the immutable validator configuration of a channel.
type Spec struct {
	Validators [2]Validator `json:"validators"`
}

// Leader returns the validator at index 0.
func (s Spec) Leader() Validator { return s.Validators[0] }

// Follower returns the validator at index 1.
func (s Spec) Follower() Validator { return s.Validators[1] }

// Channel is the immutable, on-chain-declared configuration of a payment
// channel. Only the fields the validator worker needs are modeled; the
// sentry owns the full channel document.
type Channel struct {
	ID            string   `json:"id"`
	DepositAsset  string   `json:"depositAsset"`
	DepositAmount *big.Int `json:"depositAmount"`
	ValidUntil    int64    `json:"validUntil"` // unix seconds
	Creator       string   `json:"creator"`
	Spec          Spec     `json:"spec"`
}

// Validate checks the invariants spec'd for a channel: exactly two
// validators, non-negative deposit, and fees not exceeding the deposit.
func (c *Channel) Validate() error {
	if c.DepositAmount == nil || c.DepositAmount.Sign() < 0 {
		return ErrNegativeDeposit
	}
	feeSum := new(big.Int)
	for _, v := range c.Spec.Validators {
		if v.ID == "" {
			return ErrUnsupportedValidatorCount
		}
		if v.Fee != nil {
			feeSum.Add(feeSum, v.Fee)
		}
	}
	if feeSum.Cmp(c.DepositAmount) > 0 {
		return ErrFeesExceedDeposit
	}
	return nil
}

// OurIndex returns 0 if identity is the leader, 1 if the follower, or -1 if
// identity does not appear in the channel's validator pair.
func (c *Channel) OurIndex(identity string) int {
	for i, v := range c.Spec.Validators {
		if v.ID == identity {
			return i
		}
	}
	return -1
}

// Exhausted reports whether the channel's deposit has been fully
// distributed, per spec.md's lifecycle rule sum(balances) == depositAmount.
func (c *Channel) Exhausted(balancesSum *big.Int) bool {
	return balancesSum.Cmp(c.DepositAmount) == 0
}
