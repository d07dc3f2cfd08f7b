package orchestration

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/makeorbreakshop/djr3x-voice-sub003/core/events"
)

// layerState is one priority tier's scheduling slot: at most one
// running task, one gate controlling whether its step loop may
// proceed, and the plan record currently occupying the layer. All
// fields except gate internals are guarded by the executor's lock.
type layerState struct {
	layer  events.Layer
	gate   *gate
	task   *planTask
	plan   *events.Plan
	paused bool
}

func newLayerState(layer events.Layer) *layerState {
	return &layerState{layer: layer, gate: newGate(true)}
}

// planTask is the handle for one plan's running step loop. The stop
// status is set by whoever cancels the task so its termination path
// knows whether the plan was cancelled outright or merely paused.
type planTask struct {
	plan   events.Plan
	cancel context.CancelFunc
	done   chan struct{}

	doneOnce sync.Once

	mu   sync.Mutex
	stop events.PlanStatus
}

// finish releases anyone blocked in stopLayerTask or pauseLayer. It
// must run before the task touches the scheduling lock again, or a
// stopper holding that lock while waiting on done would deadlock
// against it.
func (t *planTask) finish() {
	t.doneOnce.Do(func() { close(t.done) })
}

func (t *planTask) setStopStatus(status events.PlanStatus) {
	t.mu.Lock()
	t.stop = status
	t.mu.Unlock()
}

func (t *planTask) stopStatus() events.PlanStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stop == "" {
		return events.PlanCancelled
	}
	return t.stop
}

// stopLayerTask cooperatively cancels the layer's running task, if
// any, and waits for it to terminate. The task runs its step-local
// cleanup (forcing an unduck, emitting its terminal plan.ended) before
// the wait returns.
func (e *Executor) stopLayerTask(ls *layerState, status events.PlanStatus) {
	e.mu.Lock()
	task := ls.task
	e.mu.Unlock()

	if task == nil {
		return
	}

	task.setStopStatus(status)
	task.cancel()
	<-task.done
}

// cancelPausedRecord discards a retained paused plan, emitting its
// terminal cancellation. Used when a higher layer cancels the tier or
// a newcomer replaces the paused plan.
func (e *Executor) cancelPausedRecord(ctx context.Context, ls *layerState) {
	e.mu.Lock()
	if !ls.paused || ls.plan == nil || ls.task != nil {
		e.mu.Unlock()
		return
	}
	plan := *ls.plan
	ls.plan = nil
	ls.paused = false
	e.mu.Unlock()

	e.publish(ctx, events.PlanEnded{PlanID: plan.ID, Layer: ls.layer, Status: events.PlanCancelled})
}

// pauseLayer shuts the layer's gate and stops its running task with
// paused status, retaining the plan record for restart. The paused
// plan.ended is emitted here, by the pausing side, once the task has
// terminated.
func (e *Executor) pauseLayer(ctx context.Context, ls *layerState) {
	ls.gate.shut()

	e.mu.Lock()
	task := ls.task
	plan := ls.plan
	alreadyPaused := ls.paused
	e.mu.Unlock()

	if task == nil {
		// Nothing running: either the layer is idle or its plan is
		// already paused from an earlier preemption.
		return
	}

	task.setStopStatus(events.PlanPaused)
	task.cancel()
	<-task.done

	e.mu.Lock()
	ls.paused = true
	e.mu.Unlock()

	if plan != nil && !alreadyPaused {
		e.publish(ctx, events.PlanEnded{PlanID: plan.ID, Layer: ls.layer, Status: events.PlanPaused})
	}
}

// startPlanTask records the plan as the layer's occupant, announces
// plan.started, and launches the step loop.
func (e *Executor) startPlanTask(ctx context.Context, ls *layerState, plan events.Plan) {
	taskCtx, cancel := context.WithCancel(e.baseCtx)
	task := &planTask{plan: plan, cancel: cancel, done: make(chan struct{})}

	e.mu.Lock()
	planCopy := plan
	ls.plan = &planCopy
	ls.paused = false
	ls.task = task
	e.mu.Unlock()

	e.publish(ctx, events.PlanStarted{PlanID: plan.ID, Layer: plan.Layer})
	go e.runPlan(taskCtx, ls, task)
}

// runPlan drives one plan's step loop to a terminal state and emits
// the matching plan.ended.
func (e *Executor) runPlan(ctx context.Context, ls *layerState, task *planTask) {
	defer task.finish()

	ctx, span := tracer.Start(ctx, "execute plan")
	defer span.End()
	span.SetAttributes(
		attribute.String("plan.id", task.plan.ID),
		attribute.String("plan.layer", task.plan.Layer.String()),
	)

	err := e.runSteps(ctx, ls, task.plan)

	e.mu.Lock()
	if ls.task == task {
		ls.task = nil
	}
	e.mu.Unlock()

	// Emissions below must survive the task's own cancellation.
	endCtx := context.WithoutCancel(ctx)

	switch {
	case err == nil:
		e.clearRecord(ls, task)
		e.publish(endCtx, events.PlanEnded{PlanID: task.plan.ID, Layer: ls.layer, Status: events.PlanCompleted})
		task.finish()
		e.releaseLower(endCtx, ls.layer)

	case errors.Is(err, context.Canceled):
		if task.stopStatus() == events.PlanPaused {
			// The pausing side retains the record and reports the
			// paused state.
			span.AddEvent("paused")
			return
		}
		span.AddEvent("cancelled")
		e.clearRecord(ls, task)
		e.publish(endCtx, events.PlanEnded{PlanID: task.plan.ID, Layer: ls.layer, Status: events.PlanCancelled})

	case errors.As(err, new(*stepFailure)):
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.clearRecord(ls, task)
		e.publish(endCtx, events.PlanEnded{PlanID: task.plan.ID, Layer: ls.layer, Status: events.PlanFailed})
		task.finish()
		e.releaseLower(endCtx, ls.layer)

	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.lifecycle.ReportError(endCtx, err.Error())
		e.clearRecord(ls, task)
		e.publish(endCtx, events.PlanEnded{PlanID: task.plan.ID, Layer: ls.layer, Status: events.PlanFailed})
		task.finish()
		e.releaseLower(endCtx, ls.layer)
	}
}

// releaseLower hands control back once a plan leaves its layer on its
// own terms. A finished foreground plan resumes the paused ambient
// plan; a finished override plan reopens the ambient gate, since the
// foreground plan that shut it was cancelled by the override and will
// never reopen it. Cancelled plans skip this: their canceller decides
// what runs next. Runs under the scheduling lock, after the task's
// finish, and yields to any replacement that took the layer in the
// meantime.
func (e *Executor) releaseLower(ctx context.Context, layer events.Layer) {
	e.schedMu.Lock()
	defer e.schedMu.Unlock()

	switch layer {
	case events.LayerForeground:
		if e.layerOccupied(events.LayerForeground) {
			return
		}
		e.resumeAmbient(ctx)
	case events.LayerOverride:
		if e.layerOccupied(events.LayerOverride) || e.layerOccupied(events.LayerForeground) {
			return
		}
		e.layerState(events.LayerAmbient).gate.open()
	}
}

func (e *Executor) layerOccupied(layer events.Layer) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.layers[layer].task != nil
}

func (e *Executor) clearRecord(ls *layerState, task *planTask) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ls.plan != nil && ls.plan.ID == task.plan.ID {
		ls.plan = nil
		ls.paused = false
	}
}

// resumeAmbient reopens the ambient gate after a foreground plan
// completed and, if a paused ambient plan record still exists,
// restarts it from its first step with a fresh task. Mid-step resume
// is deliberately not implemented.
func (e *Executor) resumeAmbient(ctx context.Context) {
	ls := e.layerState(events.LayerAmbient)

	ls.gate.open()

	e.mu.Lock()
	var plan *events.Plan
	if ls.paused && ls.task == nil && ls.plan != nil {
		planCopy := *ls.plan
		plan = &planCopy
	}
	e.mu.Unlock()

	if plan != nil {
		e.startPlanTask(ctx, ls, *plan)
	}
}
