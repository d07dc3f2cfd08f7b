package eventsync

import (
	"time"

	"github.com/makeorbreakshop/djr3x-voice-sub003/internal/clock"
)

// Option configures a Synchronizer at construction time.
type Option func(*Synchronizer)

// WithClock injects the time source used for timeouts and settle
// delays.
func WithClock(c clock.Clock) Option {
	return func(s *Synchronizer) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithSettleDelay sets the default trailing grace period applied after
// each matched event.
func WithSettleDelay(delay time.Duration) Option {
	return func(s *Synchronizer) {
		if delay >= 0 {
			s.settleDelay = delay
		}
	}
}

// WithBufferSize bounds the per-topic replay buffer.
func WithBufferSize(size int) Option {
	return func(s *Synchronizer) {
		if size > 0 {
			s.bufferSize = size
		}
	}
}

type waitOptions struct {
	timeout     time.Duration
	settleDelay time.Duration
	condition   Condition
	inOrder     bool
}

// WaitOption configures a single wait call.
type WaitOption func(*waitOptions)

// WithTimeout bounds the wait. For WaitForEvents it is the budget for
// the whole set.
func WithTimeout(timeout time.Duration) WaitOption {
	return func(o *waitOptions) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// WithCondition completes the wait only on a payload the condition
// accepts; other events on the topic re-park the waiter.
func WithCondition(condition Condition) WaitOption {
	return func(o *waitOptions) { o.condition = condition }
}

// WithWaitSettleDelay overrides the trailing grace period for this
// wait only.
func WithWaitSettleDelay(delay time.Duration) WaitOption {
	return func(o *waitOptions) {
		if delay >= 0 {
			o.settleDelay = delay
		}
	}
}

// InOrder makes WaitForEvents await its topics sequentially in the
// order given, sharing one timeout budget across the chain.
func InOrder() WaitOption {
	return func(o *waitOptions) { o.inOrder = true }
}
