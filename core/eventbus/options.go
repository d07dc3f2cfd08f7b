package eventbus

import (
	"time"

	"github.com/makeorbreakshop/djr3x-voice-sub003/core/events"
	"github.com/makeorbreakshop/djr3x-voice-sub003/internal/clock"
)

// Option configures a Bus at construction time.
type Option func(*Bus)

// WithHandlerTimeout bounds each handler invocation during one publish
// call. A handler exceeding it is logged and skipped.
func WithHandlerTimeout(timeout time.Duration) Option {
	return func(b *Bus) {
		if timeout > 0 {
			b.handlerTimeout = timeout
		}
	}
}

// WithErrorPropagation makes Publish return handler errors joined
// together instead of only logging them.
func WithErrorPropagation() Option {
	return func(b *Bus) { b.propagateErrors = true }
}

// WithSchemaRegistry enables payload shape validation at the publish
// boundary for every topic the registry knows.
func WithSchemaRegistry(registry *events.SchemaRegistry) Option {
	return func(b *Bus) { b.schemas = registry }
}

// WithClock injects the time source used for dispatch timeouts.
func WithClock(c clock.Clock) Option {
	return func(b *Bus) {
		if c != nil {
			b.clock = c
		}
	}
}
