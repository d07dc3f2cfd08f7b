// Package transaction groups a sequence of bus emissions into one
// atomic unit with ordered compensating-action rollback.
//
// The bus offers no read-your-writes guarantee, so Emit sleeps a fixed
// grace period after each publish: downstream state-driven listeners
// get time to converge before the next event in the same transaction
// is issued. Latency is deliberately traded for consistency.
package transaction

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"

	"github.com/makeorbreakshop/djr3x-voice-sub003/core/eventbus"
	"github.com/makeorbreakshop/djr3x-voice-sub003/core/events"
	"github.com/makeorbreakshop/djr3x-voice-sub003/internal/clock"
)

const defaultGracePeriod = 100 * time.Millisecond

// State is the transaction lifecycle state.
type State string

const (
	StatePending     State = "PENDING"
	StateCommitting  State = "COMMITTING"
	StateCommitted   State = "COMMITTED"
	StateRollingBack State = "ROLLING_BACK"
	StateRolledBack  State = "ROLLED_BACK"
	StateFailed      State = "FAILED"
)

// CompensatingAction is the inverse operation registered with an
// emitted event, run during rollback.
type CompensatingAction func(ctx context.Context) error

// EventRecord is one emission inside the transaction, with its
// optional compensator.
type EventRecord struct {
	Topic      events.Topic
	Payload    events.Payload
	EmittedAt  time.Time
	compensate CompensatingAction
}

// Transaction is an ordered list of emissions with reverse-order
// rollback. It is single-goroutine by design: the caller that began
// it emits, then commits or rolls back.
type Transaction struct {
	ID string

	bus    *eventbus.Bus
	clock  clock.Clock
	grace  time.Duration
	state  State
	record []EventRecord
}

// Option configures a transaction at Begin time.
type Option func(*Transaction)

// WithGracePeriod overrides the settle delay applied after each Emit.
func WithGracePeriod(grace time.Duration) Option {
	return func(t *Transaction) {
		if grace >= 0 {
			t.grace = grace
		}
	}
}

// WithClock injects the time source used for grace periods.
func WithClock(c clock.Clock) Option {
	return func(t *Transaction) {
		if c != nil {
			t.clock = c
		}
	}
}

// Begin opens a transaction in the pending state.
func Begin(bus *eventbus.Bus, opts ...Option) *Transaction {
	t := &Transaction{
		ID:    uuid.NewString(),
		bus:   bus,
		clock: clock.System(),
		grace: defaultGracePeriod,
		state: StatePending,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// State returns the current lifecycle state.
func (t *Transaction) State() State {
	return t.state
}

// Events returns the recorded emissions in order.
func (t *Transaction) Events() []EventRecord {
	records := make([]EventRecord, len(t.record))
	copy(records, t.record)
	return records
}

// Emit publishes one event as part of the transaction and records it
// together with its optional compensating action. Valid only while
// pending.
func (t *Transaction) Emit(ctx context.Context, topic events.Topic, payload events.Payload, compensate CompensatingAction) error {
	if t.state != StatePending {
		return fmt.Errorf("cannot emit in state %s, transaction must be %s", t.state, StatePending)
	}

	record := EventRecord{
		Topic:      topic,
		Payload:    payload,
		EmittedAt:  t.clock.Now(),
		compensate: compensate,
	}

	if err := t.bus.Publish(ctx, topic, payload); err != nil {
		return fmt.Errorf("failed to emit %q in transaction %s: %w", topic, t.ID, err)
	}
	t.record = append(t.record, record)

	// Give state-driven listeners time to converge before the next
	// event in the same transaction is issued.
	if err := t.clock.Sleep(ctx, t.grace); err != nil {
		return fmt.Errorf("grace period after %q interrupted: %w", topic, err)
	}

	return nil
}

// EmitMessage emits a typed event on its own topic.
func (t *Transaction) EmitMessage(ctx context.Context, message events.Message, compensate CompensatingAction) error {
	return t.Emit(ctx, message.Topic(), message.Payload(), compensate)
}

// Commit finalizes the transaction. Only a pending transaction can
// commit; any other starting state is an error.
func (t *Transaction) Commit(ctx context.Context) (err error) {
	_, span := tracer.Start(ctx, "commit transaction")
	defer span.End()

	if t.state != StatePending {
		err = fmt.Errorf("cannot commit in state %s, transaction must be %s", t.state, StatePending)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			t.state = StateFailed
			err = fmt.Errorf("commit of transaction %s panicked: %v", t.ID, recovered)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	t.state = StateCommitting
	span.AddEvent("committing")
	t.state = StateCommitted
	return nil
}

// Rollback executes every recorded compensating action in strict
// reverse chronological order. Rollback is best-effort: an individual
// compensator's failure is logged and the remaining compensators still
// run. Valid from the pending or failed states.
func (t *Transaction) Rollback(ctx context.Context) (err error) {
	_, span := tracer.Start(ctx, "rollback transaction")
	defer span.End()

	if t.state != StatePending && t.state != StateFailed {
		err = fmt.Errorf("cannot roll back in state %s, transaction must be %s or %s", t.state, StatePending, StateFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			t.state = StateFailed
			err = fmt.Errorf("rollback of transaction %s panicked: %v", t.ID, recovered)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	t.state = StateRollingBack
	for i := len(t.record) - 1; i >= 0; i-- {
		record := t.record[i]
		if record.compensate == nil {
			continue
		}

		if compErr := runCompensator(ctx, record.compensate); compErr != nil {
			logger.Error("compensating action failed, continuing rollback",
				"transaction_id", t.ID, "topic", string(record.Topic), "error", compErr)
			span.RecordError(compErr)
		}
	}
	t.state = StateRolledBack
	return nil
}

func runCompensator(ctx context.Context, compensate CompensatingAction) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("compensating action panicked: %v", recovered)
		}
	}()

	return compensate(ctx)
}

// Run executes fn inside a scoped transaction: a nil return commits,
// an error or panic rolls back. The original failure is returned with
// any rollback error joined in.
func Run(ctx context.Context, bus *eventbus.Bus, fn func(*Transaction) error, opts ...Option) error {
	t := Begin(bus, opts...)

	var fnErr error
	func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				fnErr = fmt.Errorf("transaction %s panicked: %v", t.ID, recovered)
			}
		}()
		fnErr = fn(t)
	}()

	if fnErr != nil {
		if rollbackErr := t.Rollback(ctx); rollbackErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", fnErr, rollbackErr)
		}
		return fnErr
	}

	if err := t.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction %s: %w", t.ID, err)
	}
	return nil
}
