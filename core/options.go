package orchestration

import (
	"time"

	"github.com/makeorbreakshop/djr3x-voice-sub003/internal/clock"
)

const (
	defaultSpeechWaitTimeout = 10 * time.Second
	defaultSettleDelay       = 100 * time.Millisecond
	defaultDuckingLevel      = 0.3
	defaultDuckFadeMs        = 500
)

// ExecutorOption configures an Executor at construction time.
type ExecutorOption func(*Executor)

// WithSpeechWaitTimeout bounds how long a speak step waits for its
// clip's speech.synthesis_ended before marking the step failed.
func WithSpeechWaitTimeout(timeout time.Duration) ExecutorOption {
	return func(e *Executor) {
		if timeout > 0 {
			e.speechWaitTimeout = timeout
		}
	}
}

// WithSettleDelay sets the fixed grace period inserted between ducking
// transitions and the speech request, so the audio service can
// converge before the next event in the protocol.
func WithSettleDelay(delay time.Duration) ExecutorOption {
	return func(e *Executor) {
		if delay >= 0 {
			e.settleDelay = delay
		}
	}
}

// WithDucking sets the duck target level in [0, 1] and the fade
// duration used for both the duck and the unduck.
func WithDucking(level float64, fadeMs int) ExecutorOption {
	return func(e *Executor) {
		if level >= 0 && level <= 1 {
			e.duckingLevel = level
		}
		if fadeMs >= 0 {
			e.duckFadeMs = fadeMs
		}
	}
}

// WithClock injects the time source used for delays and timeouts.
func WithClock(c clock.Clock) ExecutorOption {
	return func(e *Executor) {
		if c != nil {
			e.clock = c
		}
	}
}
