// Package eventbus provides the in-process publish/subscribe broker
// every other component of the DJ core communicates through.
//
// Dispatch is sequential and in registration order for one publish
// call, so causally-dependent side effects (duck before speak) are
// observable deterministically. Each handler invocation is bounded by
// a per-handler timeout; a slow or broken handler is logged and
// skipped, never blocking the remaining handlers or the caller.
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jinzhu/copier"
	"go.opentelemetry.io/otel/codes"

	"github.com/makeorbreakshop/djr3x-voice-sub003/core/events"
	"github.com/makeorbreakshop/djr3x-voice-sub003/internal/clock"
)

const defaultHandlerTimeout = 5 * time.Second

// Handler receives one event payload. Errors are isolated per handler:
// logged by default, aggregated into the Publish return value when the
// bus is configured to propagate them.
type Handler func(payload events.Payload) error

// ErrSlowHandler marks a handler that exceeded the per-handler
// dispatch timeout.
var ErrSlowHandler = errors.New("handler exceeded dispatch timeout")

// Subscription is the handle for one live registration, returned by
// Subscribe and required for removal. Handles are the unit of
// identity: two Subscribe calls with the same handler value are two
// independent registrations, each removed only through its own handle.
type Subscription struct {
	topic        events.Topic
	handler      Handler
	internal     bool
	registeredAt time.Time
}

// Topic returns the topic this subscription listens on.
func (s *Subscription) Topic() events.Topic {
	if s == nil {
		return ""
	}
	return s.topic
}

// Bus is the in-process broker. The registry is guarded by a single
// lock; publishing dispatches against a snapshot so concurrent
// subscribe/unsubscribe never corrupts an in-flight dispatch.
type Bus struct {
	mu       sync.RWMutex
	registry map[events.Topic][]*Subscription

	clock           clock.Clock
	handlerTimeout  time.Duration
	propagateErrors bool
	schemas         *events.SchemaRegistry
}

// New creates a bus with default dispatch settings.
func New(opts ...Option) *Bus {
	bus := &Bus{
		registry:       map[events.Topic][]*Subscription{},
		clock:          clock.System(),
		handlerTimeout: defaultHandlerTimeout,
	}
	for _, opt := range opts {
		opt(bus)
	}
	return bus
}

// Subscribe registers a handler for a topic and returns the
// subscription handle that identifies the registration. Every call
// creates its own registration; unsubscribing requires the handle.
func (b *Bus) Subscribe(topic events.Topic, handler Handler) (*Subscription, error) {
	return b.subscribe(topic, handler, false)
}

// SubscribeInternal registers a bus-internal handler. Internal
// subscriptions additionally receive verification probe payloads,
// which are withheld from ordinary subscribers.
func (b *Bus) SubscribeInternal(topic events.Topic, handler Handler) (*Subscription, error) {
	return b.subscribe(topic, handler, true)
}

func (b *Bus) subscribe(topic events.Topic, handler Handler, internal bool) (*Subscription, error) {
	if topic == "" {
		return nil, fmt.Errorf("cannot subscribe to an empty topic")
	}
	if handler == nil {
		return nil, fmt.Errorf("cannot subscribe a nil handler to topic %q", topic)
	}

	sub := &Subscription{
		topic:        topic,
		handler:      handler,
		internal:     internal,
		registeredAt: b.clock.Now(),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.registry[topic] = append(b.registry[topic], sub)
	return sub, nil
}

// Unsubscribe removes the registration identified by the handle.
// Removing a handle twice, or a nil handle, is a no-op.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	subscriptions := b.registry[sub.topic]
	for i, existing := range subscriptions {
		if existing == sub {
			b.registry[sub.topic] = append(subscriptions[:i:i], subscriptions[i+1:]...)
			break
		}
	}
	if len(b.registry[sub.topic]) == 0 {
		delete(b.registry, sub.topic)
	}
}

// UnsubscribeAll removes every registration for a topic, or for every
// topic when topic is empty.
func (b *Bus) UnsubscribeAll(topic events.Topic) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if topic == "" {
		b.registry = map[events.Topic][]*Subscription{}
		return
	}
	delete(b.registry, topic)
}

// SubscriberCount returns the number of live registrations on a topic.
func (b *Bus) SubscriberCount(topic events.Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.registry[topic])
}

// Publish delivers a payload to every subscriber of the topic,
// sequentially in registration order. Handler errors and panics are
// isolated per handler; a handler exceeding the per-handler timeout is
// logged and skipped. The returned error is nil unless the payload
// fails schema validation or the bus is configured to propagate
// handler errors.
func (b *Bus) Publish(ctx context.Context, topic events.Topic, payload events.Payload) error {
	if topic == "" {
		return fmt.Errorf("cannot publish to an empty topic")
	}
	if payload == nil {
		payload = events.Payload{}
	}

	probe := isProbe(payload)
	if !probe {
		if err := b.schemas.Validate(topic, payload); err != nil {
			return fmt.Errorf("failed to publish to %q: %w", topic, err)
		}
	}

	b.mu.RLock()
	snapshot := make([]*Subscription, len(b.registry[topic]))
	copy(snapshot, b.registry[topic])
	b.mu.RUnlock()

	if len(snapshot) == 0 {
		return nil
	}

	var handlerErrs error
	for _, sub := range snapshot {
		if probe && !sub.internal {
			continue
		}

		// Each handler gets a private deep copy so one subscriber
		// mutating the map cannot leak into the next.
		delivered := events.Payload{}
		if err := copier.CopyWithOption(&delivered, payload, copier.Option{DeepCopy: true}); err != nil {
			return fmt.Errorf("failed to snapshot payload for topic %q: %w", topic, err)
		}

		if err := b.invoke(ctx, sub, delivered); err != nil {
			if errors.Is(err, ErrSlowHandler) {
				logger.Warn("skipped slow handler", "topic", string(topic), "timeout", b.handlerTimeout.String())
				continue
			}

			logger.Error("handler failed", "topic", string(topic), "error", err)
			if b.propagateErrors {
				handlerErrs = errors.Join(handlerErrs, err)
			}
		}
	}

	return handlerErrs
}

// PublishMessage publishes a typed event on its own topic.
func (b *Bus) PublishMessage(ctx context.Context, message events.Message) error {
	if message == nil {
		return fmt.Errorf("cannot publish a nil message")
	}
	return b.Publish(ctx, message.Topic(), message.Payload())
}

func (b *Bus) invoke(ctx context.Context, sub *Subscription, payload events.Payload) error {
	done := make(chan error, 1)
	go func() {
		done <- runIsolated(sub.handler, payload)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("handler on topic %q: %w", sub.topic, err)
		}
		return nil
	case <-b.clock.After(b.handlerTimeout):
		return fmt.Errorf("handler on topic %q: %w", sub.topic, ErrSlowHandler)
	case <-ctx.Done():
		return fmt.Errorf("publish on topic %q interrupted: %w", sub.topic, ctx.Err())
	}
}

func runIsolated(handler Handler, payload events.Payload) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("handler panicked: %v", recovered)
		}
	}()

	return handler(payload)
}

func (b *Bus) span(ctx context.Context, name string) (context.Context, func(error)) {
	ctx, span := tracer.Start(ctx, name)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
