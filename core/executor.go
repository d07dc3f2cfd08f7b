// Package orchestration contains the timeline executor: the layered
// scheduler that runs multi-step plans across three priority tiers
// with preemption, pause/resume, and the audio-ducking sequencing
// protocol around speech.
//
// One task runs per active layer. An override plan cancels everything
// below it; a foreground plan pauses the ambient layer by shutting its
// gate and restarts the paused ambient plan from its first step once
// the foreground plan completes. Mid-step resume is deliberately not
// implemented: a paused plan re-runs from step zero.
package orchestration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/makeorbreakshop/djr3x-voice-sub003/core/eventbus"
	"github.com/makeorbreakshop/djr3x-voice-sub003/core/events"
	"github.com/makeorbreakshop/djr3x-voice-sub003/core/service"
	"github.com/makeorbreakshop/djr3x-voice-sub003/internal/clock"
)

// ServiceName is the executor's name on service.status_update.
const ServiceName = "timeline_executor"

// Executor schedules plans across the three priority layers.
type Executor struct {
	bus   *eventbus.Bus
	clock clock.Clock

	speechWaitTimeout time.Duration
	settleDelay       time.Duration
	duckingLevel      float64
	duckFadeMs        int

	lifecycle *service.Service
	speech    *speechWaiters

	baseCtx    context.Context
	baseCancel context.CancelFunc

	// schedMu serializes scheduling decisions end to end: observing a
	// layer, cancelling or pausing its occupant, and starting the
	// replacement happen under one critical section, so two concurrent
	// submissions can never both see an empty slot.
	schedMu sync.Mutex

	// layers is the mutable scheduling state; one lock guards the
	// whole table.
	mu     sync.Mutex
	layers map[events.Layer]*layerState

	closeOnce sync.Once
}

// New creates an executor on the given bus. Nothing is wired until
// Start.
func New(bus *eventbus.Bus, opts ...ExecutorOption) *Executor {
	e := &Executor{
		bus:               bus,
		clock:             clock.System(),
		speechWaitTimeout: defaultSpeechWaitTimeout,
		settleDelay:       defaultSettleDelay,
		duckingLevel:      defaultDuckingLevel,
		duckFadeMs:        defaultDuckFadeMs,
		speech:            newSpeechWaiters(),
		layers: map[events.Layer]*layerState{
			events.LayerAmbient:    newLayerState(events.LayerAmbient),
			events.LayerForeground: newLayerState(events.LayerForeground),
			events.LayerOverride:   newLayerState(events.LayerOverride),
		},
	}
	for _, opt := range opts {
		opt(e)
	}

	e.lifecycle = service.New(ServiceName, bus, service.Hooks{
		OnStart: e.wire,
		OnStop:  e.teardown,
	})
	return e
}

// Start wires the executor's subscriptions and verifies the plan
// intake topic end to end, so broken wiring surfaces at startup
// instead of on the first show.
func (e *Executor) Start(ctx context.Context) error {
	e.baseCtx, e.baseCancel = context.WithCancel(context.WithoutCancel(ctx))
	if err := e.lifecycle.Start(ctx); err != nil {
		e.baseCancel()
		return err
	}
	return nil
}

// Close stops every running layer task, waits for them to terminate,
// and removes the executor's subscriptions. Safe to call more than
// once.
func (e *Executor) Close(ctx context.Context) error {
	var err error
	e.closeOnce.Do(func() {
		e.schedMu.Lock()
		for _, layer := range []events.Layer{events.LayerOverride, events.LayerForeground, events.LayerAmbient} {
			e.stopLayerTask(e.layerState(layer), events.PlanCancelled)
		}
		e.schedMu.Unlock()
		if e.baseCancel != nil {
			e.baseCancel()
		}
		err = e.lifecycle.Stop(ctx)
	})
	return err
}

// Lifecycle exposes the executor's service contract, mainly for status
// observation.
func (e *Executor) Lifecycle() *service.Service {
	return e.lifecycle
}

func (e *Executor) wire(ctx context.Context) error {
	if _, err := e.lifecycle.Subscribe(events.TopicPlanReady, e.handlePlanReady); err != nil {
		return err
	}
	if _, err := e.lifecycle.Subscribe(events.TopicSpeechSynthesisEnded, e.handleSpeechSynthesisEnded); err != nil {
		return err
	}

	if err := e.bus.Verify(ctx, events.TopicPlanReady); err != nil {
		return fmt.Errorf("plan intake wiring is broken: %w", err)
	}
	return nil
}

func (e *Executor) teardown(context.Context) error {
	// Subscriptions are owned by the lifecycle service and removed by
	// its cleanup pass.
	return nil
}

func (e *Executor) handlePlanReady(payload events.Payload) error {
	plan, err := events.ParsePlan(payload)
	if err != nil {
		rejection := fmt.Errorf("rejected plan: %w", err)
		e.lifecycle.ReportError(e.baseCtx, rejection.Error())
		return rejection
	}

	return e.SubmitPlan(e.baseCtx, plan)
}

func (e *Executor) handleSpeechSynthesisEnded(payload events.Payload) error {
	ended, err := events.ParseSpeechSynthesisEnded(payload)
	if err != nil {
		return err
	}

	e.speech.resolve(ended.ClipID, ended.StepID)
	return nil
}

// SubmitPlan is the in-process entry point equivalent to publishing
// plan.ready: it validates the plan, preempts or pauses lower layers
// according to the plan's tier, and starts the plan's step loop.
func (e *Executor) SubmitPlan(ctx context.Context, plan events.Plan) error {
	ctx, span := tracer.Start(ctx, "submit plan")
	defer span.End()
	span.SetAttributes(
		attribute.String("plan.id", plan.ID),
		attribute.String("plan.layer", plan.Layer.String()),
		attribute.Int("plan.steps", len(plan.Steps)),
	)

	if !plan.Layer.Valid() {
		err := fmt.Errorf("rejected plan %q: unknown layer %d", plan.ID, int(plan.Layer))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.lifecycle.ReportError(ctx, err.Error())
		return err
	}

	e.schedMu.Lock()
	defer e.schedMu.Unlock()

	target := e.layerState(plan.Layer)

	// A layer holds at most one running task; the newcomer replaces it.
	e.stopLayerTask(target, events.PlanCancelled)
	e.cancelPausedRecord(ctx, target)

	switch plan.Layer {
	case events.LayerOverride:
		foreground := e.layerState(events.LayerForeground)
		ambient := e.layerState(events.LayerAmbient)
		e.stopLayerTask(foreground, events.PlanCancelled)
		e.cancelPausedRecord(ctx, foreground)
		e.stopLayerTask(ambient, events.PlanCancelled)
		e.cancelPausedRecord(ctx, ambient)
	case events.LayerForeground:
		e.pauseLayer(ctx, e.layerState(events.LayerAmbient))
	}

	e.startPlanTask(ctx, target, plan)
	return nil
}

// Status returns a snapshot of each layer's occupancy, ordered from
// ambient to override.
func (e *Executor) Status() []LayerStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	statuses := make([]LayerStatus, 0, 3)
	for _, layer := range []events.Layer{events.LayerAmbient, events.LayerForeground, events.LayerOverride} {
		ls := e.layers[layer]
		status := LayerStatus{Layer: layer, GateOpen: ls.gate.isOpen(), Paused: ls.paused}
		if ls.plan != nil {
			status.PlanID = ls.plan.ID
		}
		status.Running = ls.task != nil
		statuses = append(statuses, status)
	}
	return statuses
}

// LayerStatus describes one layer's occupancy at snapshot time.
type LayerStatus struct {
	Layer    events.Layer
	PlanID   string
	Running  bool
	Paused   bool
	GateOpen bool
}

func (e *Executor) layerState(layer events.Layer) *layerState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.layers[layer]
}

func (e *Executor) publish(ctx context.Context, message events.Message) {
	if err := e.bus.PublishMessage(ctx, message); err != nil {
		logger.Warn("failed to publish scheduler event",
			"topic", string(message.Topic()), "error", err)
	}
}
