package transaction

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/makeorbreakshop/djr3x-voice-sub003/core/eventbus"
	"github.com/makeorbreakshop/djr3x-voice-sub003/core/events"
	"github.com/makeorbreakshop/djr3x-voice-sub003/internal/clock"
)

func TestEmitPublishesAndRecordsInOrder(t *testing.T) {
	bus := eventbus.New()

	var mu sync.Mutex
	var published []events.Topic
	for _, topic := range []events.Topic{"one", "two"} {
		topic := topic
		if _, err := bus.Subscribe(topic, func(events.Payload) error {
			mu.Lock()
			published = append(published, topic)
			mu.Unlock()
			return nil
		}); err != nil {
			t.Fatalf("expected subscribe to succeed, got error: %v", err)
		}
	}

	tx := Begin(bus, WithGracePeriod(0))
	if err := tx.Emit(context.Background(), "one", events.Payload{"n": 1}, nil); err != nil {
		t.Fatalf("expected first emit to succeed, got error: %v", err)
	}
	if err := tx.Emit(context.Background(), "two", events.Payload{"n": 2}, nil); err != nil {
		t.Fatalf("expected second emit to succeed, got error: %v", err)
	}

	mu.Lock()
	if len(published) != 2 || published[0] != "one" || published[1] != "two" {
		t.Fatalf("expected both events published in order, got %v", published)
	}
	mu.Unlock()

	records := tx.Events()
	if len(records) != 2 || records[0].Topic != "one" || records[1].Topic != "two" {
		t.Fatalf("expected two records in emission order, got %v", records)
	}
}

func TestEmitSleepsTheGracePeriod(t *testing.T) {
	bus := eventbus.New()
	fake := clock.NewFake(time.Unix(0, 0))

	tx := Begin(bus, WithClock(fake), WithGracePeriod(25*time.Millisecond))
	if err := tx.Emit(context.Background(), "one", events.Payload{}, nil); err != nil {
		t.Fatalf("expected emit to succeed, got error: %v", err)
	}

	sleeps := fake.Sleeps()
	if len(sleeps) != 1 || sleeps[0] != 25*time.Millisecond {
		t.Fatalf("expected one 25ms grace sleep, got %v", sleeps)
	}
}

func TestEmitOutsidePendingIsRejected(t *testing.T) {
	bus := eventbus.New()

	tx := Begin(bus, WithGracePeriod(0))
	if err := tx.Commit(context.Background()); err != nil {
		t.Fatalf("expected commit to succeed, got error: %v", err)
	}

	if err := tx.Emit(context.Background(), "late", events.Payload{}, nil); err == nil {
		t.Fatal("expected emit after commit to be rejected")
	}
}

func TestCommitTransitionsPendingToCommitted(t *testing.T) {
	bus := eventbus.New()

	tx := Begin(bus, WithGracePeriod(0))
	if got := tx.State(); got != StatePending {
		t.Fatalf("expected initial state %s, got %s", StatePending, got)
	}

	if err := tx.Commit(context.Background()); err != nil {
		t.Fatalf("expected commit to succeed, got error: %v", err)
	}
	if got := tx.State(); got != StateCommitted {
		t.Fatalf("expected state %s, got %s", StateCommitted, got)
	}

	if err := tx.Commit(context.Background()); err == nil {
		t.Fatal("expected a second commit to be rejected")
	}
}

func TestRollbackRunsCompensatorsInStrictReverseOrder(t *testing.T) {
	bus := eventbus.New()

	var mu sync.Mutex
	var ran []string
	record := func(name string) CompensatingAction {
		return func(context.Context) error {
			mu.Lock()
			ran = append(ran, name)
			mu.Unlock()
			return nil
		}
	}

	tx := Begin(bus, WithGracePeriod(0))
	ctx := context.Background()
	if err := tx.Emit(ctx, "e1", events.Payload{}, record("comp1")); err != nil {
		t.Fatalf("expected emit to succeed, got error: %v", err)
	}
	if err := tx.Emit(ctx, "e2", events.Payload{}, func(context.Context) error {
		mu.Lock()
		ran = append(ran, "comp2")
		mu.Unlock()
		return errors.New("comp2 exploded")
	}); err != nil {
		t.Fatalf("expected emit to succeed, got error: %v", err)
	}
	if err := tx.Emit(ctx, "e3", events.Payload{}, nil); err != nil {
		t.Fatalf("expected emit to succeed, got error: %v", err)
	}

	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("expected best-effort rollback to succeed, got error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(ran) != 2 || ran[0] != "comp2" || ran[1] != "comp1" {
		t.Fatalf("expected comp2 then comp1 even though comp2 failed, got %v", ran)
	}
	if got := tx.State(); got != StateRolledBack {
		t.Fatalf("expected state %s, got %s", StateRolledBack, got)
	}
}

func TestRollbackSurvivesPanickingCompensator(t *testing.T) {
	bus := eventbus.New()

	var mu sync.Mutex
	var ran []string
	tx := Begin(bus, WithGracePeriod(0))
	ctx := context.Background()
	if err := tx.Emit(ctx, "e1", events.Payload{}, func(context.Context) error {
		mu.Lock()
		ran = append(ran, "comp1")
		mu.Unlock()
		return nil
	}); err != nil {
		t.Fatalf("expected emit to succeed, got error: %v", err)
	}
	if err := tx.Emit(ctx, "e2", events.Payload{}, func(context.Context) error {
		panic("compensator blew up")
	}); err != nil {
		t.Fatalf("expected emit to succeed, got error: %v", err)
	}

	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("expected rollback to absorb the panic, got error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(ran) != 1 || ran[0] != "comp1" {
		t.Fatalf("expected comp1 to run after the panicking compensator, got %v", ran)
	}
}

func TestRollbackFromCommittedIsRejected(t *testing.T) {
	bus := eventbus.New()

	tx := Begin(bus, WithGracePeriod(0))
	if err := tx.Commit(context.Background()); err != nil {
		t.Fatalf("expected commit to succeed, got error: %v", err)
	}

	if err := tx.Rollback(context.Background()); err == nil {
		t.Fatal("expected rollback after commit to be rejected")
	}
}

func TestRunCommitsOnNormalReturn(t *testing.T) {
	bus := eventbus.New()

	var scoped *Transaction
	err := Run(context.Background(), bus, func(tx *Transaction) error {
		scoped = tx
		return tx.Emit(context.Background(), "e1", events.Payload{}, nil)
	}, WithGracePeriod(0))
	if err != nil {
		t.Fatalf("expected run to succeed, got error: %v", err)
	}
	if got := scoped.State(); got != StateCommitted {
		t.Fatalf("expected state %s after normal return, got %s", StateCommitted, got)
	}
}

func TestRunRollsBackOnError(t *testing.T) {
	bus := eventbus.New()

	var mu sync.Mutex
	compensated := false
	var scoped *Transaction
	err := Run(context.Background(), bus, func(tx *Transaction) error {
		scoped = tx
		if err := tx.Emit(context.Background(), "e1", events.Payload{}, func(context.Context) error {
			mu.Lock()
			compensated = true
			mu.Unlock()
			return nil
		}); err != nil {
			return err
		}
		return errors.New("show went sideways")
	}, WithGracePeriod(0))
	if err == nil {
		t.Fatal("expected the original failure to propagate")
	}

	mu.Lock()
	defer mu.Unlock()
	if !compensated {
		t.Fatal("expected the compensating action to run")
	}
	if got := scoped.State(); got != StateRolledBack {
		t.Fatalf("expected state %s after failure, got %s", StateRolledBack, got)
	}
}

func TestRunRollsBackOnPanic(t *testing.T) {
	bus := eventbus.New()

	var scoped *Transaction
	err := Run(context.Background(), bus, func(tx *Transaction) error {
		scoped = tx
		panic("unexpected failure mid-show")
	}, WithGracePeriod(0))
	if err == nil {
		t.Fatal("expected the panic to surface as an error")
	}
	if got := scoped.State(); got != StateRolledBack {
		t.Fatalf("expected state %s after panic, got %s", StateRolledBack, got)
	}
}
