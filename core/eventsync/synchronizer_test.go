package eventsync

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/makeorbreakshop/djr3x-voice-sub003/core/eventbus"
	"github.com/makeorbreakshop/djr3x-voice-sub003/core/events"
)

func newTestSynchronizer(t *testing.T) (*eventbus.Bus, *Synchronizer) {
	t.Helper()

	bus := eventbus.New()
	sync := New(bus, WithSettleDelay(0))
	t.Cleanup(sync.Close)
	return bus, sync
}

func TestWaitReturnsBufferedEventImmediately(t *testing.T) {
	bus, sync := newTestSynchronizer(t)

	// Prime the topic so the synchronizer observes it, then publish
	// before anybody waits.
	if _, err := sync.WaitForEvent(context.Background(), "show.cue", WithTimeout(10*time.Millisecond)); err == nil {
		t.Fatal("expected the initial wait on a silent topic to time out")
	}

	if err := bus.Publish(context.Background(), "show.cue", events.Payload{"cue": "drop"}); err != nil {
		t.Fatalf("expected publish to succeed, got error: %v", err)
	}

	start := time.Now()
	payload, err := sync.WaitForEvent(context.Background(), "show.cue", WithTimeout(time.Second))
	if err != nil {
		t.Fatalf("expected buffered event to satisfy the wait, got error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Fatalf("expected an immediate replay hit, took %s", elapsed)
	}
	if payload["cue"] != "drop" {
		t.Fatalf("expected the buffered payload, got %v", payload)
	}
}

func TestWaitParksUntilEventArrives(t *testing.T) {
	bus, sync := newTestSynchronizer(t)

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = bus.Publish(context.Background(), "show.cue", events.Payload{"cue": "lights"})
	}()

	payload, err := sync.WaitForEvent(context.Background(), "show.cue", WithTimeout(time.Second))
	if err != nil {
		t.Fatalf("expected the wait to complete, got error: %v", err)
	}
	if payload["cue"] != "lights" {
		t.Fatalf("expected the published payload, got %v", payload)
	}
}

func TestNonMatchingWakeupReparksTheWaiter(t *testing.T) {
	bus, sync := newTestSynchronizer(t)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = bus.Publish(context.Background(), "show.cue", events.Payload{"cue": "wrong"})
		time.Sleep(20 * time.Millisecond)
		_ = bus.Publish(context.Background(), "show.cue", events.Payload{"cue": "right"})
	}()

	payload, err := sync.WaitForEvent(context.Background(), "show.cue",
		WithTimeout(time.Second),
		WithCondition(func(payload events.Payload) bool { return payload["cue"] == "right" }),
	)
	if err != nil {
		t.Fatalf("expected the matching event to complete the wait, got error: %v", err)
	}
	if payload["cue"] != "right" {
		t.Fatalf("expected only the matching payload to be returned, got %v", payload)
	}
}

func TestWaitTimesOutWithClearError(t *testing.T) {
	_, sync := newTestSynchronizer(t)

	start := time.Now()
	_, err := sync.WaitForEvent(context.Background(), "show.cue", WithTimeout(50*time.Millisecond))
	if err == nil {
		t.Fatal("expected a timeout error")
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("expected the wait to hold for the timeout, returned after %s", elapsed)
	}
}

func TestWaitAppliesSettleDelayAfterMatch(t *testing.T) {
	bus := eventbus.New()
	sync := New(bus)
	t.Cleanup(sync.Close)

	if err := bus.Publish(context.Background(), "show.cue", events.Payload{}); err != nil {
		t.Fatalf("expected priming publish to succeed, got error: %v", err)
	}
	// First wait subscribes the topic handler; the event above was
	// published before that, so prime again.
	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = bus.Publish(context.Background(), "show.cue", events.Payload{})
	}()

	start := time.Now()
	if _, err := sync.WaitForEvent(context.Background(), "show.cue",
		WithTimeout(time.Second), WithWaitSettleDelay(60*time.Millisecond)); err != nil {
		t.Fatalf("expected the wait to complete, got error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 60*time.Millisecond {
		t.Fatalf("expected the settle delay to hold the caller, returned after %s", elapsed)
	}
}

func TestOrderedWaitSpendsOneBudgetAcrossTheChain(t *testing.T) {
	bus, sync := newTestSynchronizer(t)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = bus.Publish(context.Background(), "first.cue", events.Payload{"n": 1})
		time.Sleep(20 * time.Millisecond)
		_ = bus.Publish(context.Background(), "second.cue", events.Payload{"n": 2})
	}()

	payloads, err := sync.WaitForEvents(context.Background(),
		[]events.Topic{"first.cue", "second.cue"},
		InOrder(), WithTimeout(time.Second))
	if err != nil {
		t.Fatalf("expected the ordered wait to complete, got error: %v", err)
	}
	if len(payloads) != 2 {
		t.Fatalf("expected two payloads, got %d", len(payloads))
	}
}

func TestOrderedWaitFailsFastWithTheBlockingTopic(t *testing.T) {
	_, sync := newTestSynchronizer(t)

	_, err := sync.WaitForEvents(context.Background(),
		[]events.Topic{"never.cue", "second.cue"},
		InOrder(), WithTimeout(60*time.Millisecond))
	if err == nil {
		t.Fatal("expected the ordered wait to fail")
	}
	if !strings.Contains(err.Error(), "never.cue") {
		t.Fatalf("expected the blocking topic in the error, got: %v", err)
	}
}

func TestUnorderedWaitCompletesInAnyOrder(t *testing.T) {
	bus, sync := newTestSynchronizer(t)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = bus.Publish(context.Background(), "second.cue", events.Payload{"n": 2})
		time.Sleep(20 * time.Millisecond)
		_ = bus.Publish(context.Background(), "first.cue", events.Payload{"n": 1})
	}()

	payloads, err := sync.WaitForEvents(context.Background(),
		[]events.Topic{"first.cue", "second.cue"},
		WithTimeout(time.Second))
	if err != nil {
		t.Fatalf("expected the unordered wait to complete, got error: %v", err)
	}
	if payloads[0]["n"] != 1 || payloads[1]["n"] != 2 {
		t.Fatalf("expected payloads aligned with the topics order, got %v", payloads)
	}
}

func TestUnorderedWaitPropagatesSingleFailure(t *testing.T) {
	bus, sync := newTestSynchronizer(t)

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = bus.Publish(context.Background(), "first.cue", events.Payload{})
	}()

	start := time.Now()
	_, err := sync.WaitForEvents(context.Background(),
		[]events.Topic{"first.cue", "never.cue"},
		WithTimeout(80*time.Millisecond))
	if err == nil {
		t.Fatal("expected the unordered wait to fail on the silent topic")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("expected the failure to propagate promptly, took %s", elapsed)
	}
}

func TestSecondWaiterOnSameTopicIsRejected(t *testing.T) {
	_, sync := newTestSynchronizer(t)

	go func() {
		_, _ = sync.WaitForEvent(context.Background(), "busy.cue", WithTimeout(300*time.Millisecond))
	}()
	time.Sleep(30 * time.Millisecond)

	_, err := sync.WaitForEvent(context.Background(), "busy.cue", WithTimeout(50*time.Millisecond))
	if !errors.Is(err, ErrWaitPending) {
		t.Fatalf("expected ErrWaitPending for the second waiter, got: %v", err)
	}
}
