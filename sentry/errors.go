package sentry

import "errors"

// ErrApprovedStateCorrupt is returned by GetLastApproved when an
// ApproveState references a stateRoot for which no matching NewState
// exists locally. Per spec.md §9 (augmentWithBalances), this is data
// corruption, not a retryable condition: the caller should treat it as a
// per-channel AssertionFailure (spec.md §7) and stop ticking the channel.
var ErrApprovedStateCorrupt = errors.New("sentry: approved stateRoot has no matching NewState")

// ErrSentryUnreachable wraps HTTP-transport failures from HTTPClient,
// letting callers distinguish spec.md §7's SentryUnreachable from a
// successful-but-empty response.
var ErrSentryUnreachable = errors.New("sentry: unreachable")
