// Package eventsync blocks callers until expected events arrive on the
// bus. It keeps a bounded replay buffer per observed topic so a waiter
// asking about an event that already happened returns immediately, and
// applies a trailing settle delay after each match so side effects of
// the matched event can propagate before the caller proceeds.
package eventsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jinzhu/copier"
	"go.opentelemetry.io/otel/codes"

	"github.com/makeorbreakshop/djr3x-voice-sub003/core/eventbus"
	"github.com/makeorbreakshop/djr3x-voice-sub003/core/events"
	"github.com/makeorbreakshop/djr3x-voice-sub003/internal/clock"
)

const (
	defaultWaitTimeout = 5 * time.Second
	defaultSettleDelay = 100 * time.Millisecond
	defaultBufferSize  = 50
)

// ErrWaitPending reports that another waiter is already parked on the
// topic; at most one waiter is supported per topic at a time.
var ErrWaitPending = errors.New("another wait is already pending on this topic")

// Condition filters received payloads. A waiter only completes on a
// payload the condition accepts.
type Condition func(payload events.Payload) bool

type receivedEvent struct {
	payload events.Payload
	at      time.Time
}

type topicContext struct {
	buffer []receivedEvent
	waiter chan events.Payload
	sub    *eventbus.Subscription
}

// Synchronizer waits for one event, or an ordered/unordered set of
// events, with timeouts and history replay.
type Synchronizer struct {
	bus   *eventbus.Bus
	clock clock.Clock

	settleDelay time.Duration
	bufferSize  int

	mu     sync.Mutex
	topics map[events.Topic]*topicContext
}

// New creates a synchronizer observing the given bus.
func New(bus *eventbus.Bus, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		bus:         bus,
		clock:       clock.System(),
		settleDelay: defaultSettleDelay,
		bufferSize:  defaultBufferSize,
		topics:      map[events.Topic]*topicContext{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close unsubscribes every shared topic handler. Pending waiters are
// left to their timeouts.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for topic, tc := range s.topics {
		s.bus.Unsubscribe(tc.sub)
		delete(s.topics, topic)
	}
}

// WaitForEvent blocks until an event arrives on topic that satisfies
// the wait's condition, or until the timeout elapses. Events that
// arrived before the call are replayed from the topic's buffer,
// scanned most-recent-first.
//
// The shared topic handler wakes the waiter on any event; a wakeup
// whose payload fails the condition re-parks the waiter against the
// remaining timeout budget instead of returning a non-matching event.
func (s *Synchronizer) WaitForEvent(ctx context.Context, topic events.Topic, opts ...WaitOption) (events.Payload, error) {
	ctx, span := tracer.Start(ctx, "wait for event")
	defer span.End()

	options := waitOptions{timeout: defaultWaitTimeout, settleDelay: s.settleDelay}
	for _, opt := range opts {
		opt(&options)
	}

	payload, err := s.wait(ctx, topic, options)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return payload, nil
}

func (s *Synchronizer) wait(ctx context.Context, topic events.Topic, options waitOptions) (events.Payload, error) {
	tc, err := s.ensureTopic(topic)
	if err != nil {
		return nil, err
	}

	deadline := s.clock.Now().Add(options.timeout)

	for {
		s.mu.Lock()
		if payload, ok := scanBuffer(tc.buffer, options.condition); ok {
			s.mu.Unlock()
			return s.settle(ctx, payload, options.settleDelay)
		}

		if tc.waiter != nil {
			s.mu.Unlock()
			return nil, fmt.Errorf("failed to wait on topic %q: %w", topic, ErrWaitPending)
		}
		waiter := make(chan events.Payload, 1)
		tc.waiter = waiter
		s.mu.Unlock()

		remaining := deadline.Sub(s.clock.Now())
		if remaining <= 0 {
			s.clearWaiter(tc, waiter)
			return nil, fmt.Errorf("timed out waiting for event on topic %q after %s", topic, options.timeout)
		}

		select {
		case payload := <-waiter:
			if options.condition != nil && !options.condition(payload) {
				// Spurious wakeup: the topic saw an event the caller
				// does not care about. Park again.
				continue
			}
			return s.settle(ctx, payload, options.settleDelay)
		case <-s.clock.After(remaining):
			s.clearWaiter(tc, waiter)
			return nil, fmt.Errorf("timed out waiting for event on topic %q after %s", topic, options.timeout)
		case <-ctx.Done():
			s.clearWaiter(tc, waiter)
			return nil, fmt.Errorf("wait on topic %q interrupted: %w", topic, ctx.Err())
		}
	}
}

// WaitForEvents waits for an event on every listed topic. In ordered
// mode the topics are awaited sequentially, spending one shared
// timeout budget across the whole chain and failing fast with the
// first cause. In unordered mode one wait runs per topic concurrently;
// any single failure cancels the rest and propagates.
func (s *Synchronizer) WaitForEvents(ctx context.Context, topics []events.Topic, opts ...WaitOption) ([]events.Payload, error) {
	options := waitOptions{timeout: defaultWaitTimeout, settleDelay: s.settleDelay}
	for _, opt := range opts {
		opt(&options)
	}

	if options.inOrder {
		return s.waitInOrder(ctx, topics, options)
	}
	return s.waitUnordered(ctx, topics, options)
}

func (s *Synchronizer) waitInOrder(ctx context.Context, topics []events.Topic, options waitOptions) ([]events.Payload, error) {
	deadline := s.clock.Now().Add(options.timeout)
	payloads := make([]events.Payload, 0, len(topics))

	for i, topic := range topics {
		remaining := deadline.Sub(s.clock.Now())
		if remaining <= 0 {
			return nil, fmt.Errorf("timed out before waiting for topic %q (%d of %d)", topic, i+1, len(topics))
		}

		stepOptions := options
		stepOptions.timeout = remaining
		payload, err := s.wait(ctx, topic, stepOptions)
		if err != nil {
			return nil, fmt.Errorf("ordered wait failed at topic %q (%d of %d): %w", topic, i+1, len(topics), err)
		}
		payloads = append(payloads, payload)
	}

	return payloads, nil
}

func (s *Synchronizer) waitUnordered(ctx context.Context, topics []events.Topic, options waitOptions) ([]events.Payload, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	payloads := make([]events.Payload, len(topics))
	errs := make([]error, len(topics))

	wg := &sync.WaitGroup{}
	for i, topic := range topics {
		wg.Add(1)
		go func(i int, topic events.Topic) {
			defer wg.Done()

			payload, err := s.wait(ctx, topic, options)
			if err != nil {
				errs[i] = err
				cancel()
				return
			}
			payloads[i] = payload
		}(i, topic)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("unordered wait failed: %w", err)
	}
	return payloads, nil
}

func (s *Synchronizer) ensureTopic(topic events.Topic) (*topicContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tc, ok := s.topics[topic]; ok {
		return tc, nil
	}

	tc := &topicContext{}
	handler := func(payload events.Payload) error {
		s.mu.Lock()
		defer s.mu.Unlock()

		// The replay buffer keeps its own copy so later handler-side
		// mutation cannot rewrite history.
		stored := events.Payload{}
		if err := copier.CopyWithOption(&stored, payload, copier.Option{DeepCopy: true}); err != nil {
			logger.Warn("failed to copy payload into replay buffer", "topic", string(topic), "error", err)
			stored = payload
		}

		tc.buffer = append(tc.buffer, receivedEvent{payload: stored, at: s.clock.Now()})
		if len(tc.buffer) > s.bufferSize {
			tc.buffer = tc.buffer[len(tc.buffer)-s.bufferSize:]
		}

		if tc.waiter != nil {
			waiter := tc.waiter
			tc.waiter = nil
			waiter <- stored
		}
		return nil
	}

	sub, err := s.bus.Subscribe(topic, handler)
	if err != nil {
		return nil, fmt.Errorf("failed to observe topic %q: %w", topic, err)
	}
	tc.sub = sub
	s.topics[topic] = tc
	return tc, nil
}

func (s *Synchronizer) clearWaiter(tc *topicContext, waiter chan events.Payload) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tc.waiter == waiter {
		tc.waiter = nil
	}
}

func (s *Synchronizer) settle(ctx context.Context, payload events.Payload, delay time.Duration) (events.Payload, error) {
	if delay > 0 {
		if err := s.clock.Sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("settle after event interrupted: %w", err)
		}
	}
	return payload, nil
}

func scanBuffer(buffer []receivedEvent, condition Condition) (events.Payload, bool) {
	for i := len(buffer) - 1; i >= 0; i-- {
		if condition == nil || condition(buffer[i].payload) {
			return buffer[i].payload, true
		}
	}
	return nil, false
}
