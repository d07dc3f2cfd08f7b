// Package service defines the lifecycle contract every long-lived
// worker in the application implements on top of the bus: documented
// status transitions, status reporting on service.status_update, and
// subscription bookkeeping so a stopping service always cleans up the
// handlers it registered.
package service

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/codes"

	"github.com/makeorbreakshop/djr3x-voice-sub003/core/eventbus"
	"github.com/makeorbreakshop/djr3x-voice-sub003/core/events"
)

// Status is a service lifecycle state. Transitions follow
// INITIALIZING → STARTING → RUNNING → STOPPING → STOPPED, with ERROR
// reachable from any transition failure.
type Status string

const (
	StatusInitializing Status = "INITIALIZING"
	StatusStarting     Status = "STARTING"
	StatusRunning      Status = "RUNNING"
	StatusStopping     Status = "STOPPING"
	StatusStopped      Status = "STOPPED"
	StatusError        Status = "ERROR"
)

// Hooks carries the service-specific start and stop behavior. Either
// hook may be nil.
type Hooks struct {
	// OnStart wires the service: subscriptions, device handles,
	// initial state. A failure leaves the service in ERROR.
	OnStart func(ctx context.Context) error
	// OnStop releases what OnStart acquired. Registered subscriptions
	// are cleaned up by the service itself afterwards regardless.
	OnStop func(ctx context.Context) error
}

// Service is the base lifecycle implementation. Concrete services
// embed or wrap it and provide Hooks.
type Service struct {
	name  string
	bus   *eventbus.Bus
	hooks Hooks

	mu     sync.Mutex
	status Status
	owned  []*eventbus.Subscription
}

// New creates a service in the INITIALIZING state. Nothing is wired
// until Start.
func New(name string, bus *eventbus.Bus, hooks Hooks) *Service {
	return &Service{
		name:   name,
		bus:    bus,
		hooks:  hooks,
		status: StatusInitializing,
	}
}

// Name returns the service's wiring-time name.
func (s *Service) Name() string {
	return s.name
}

// Status returns the current lifecycle state.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Start transitions the service to RUNNING. Starting an already
// started service is a no-op. A start hook failure emits an ERROR
// status and is returned to the caller; the service never ends up
// silently half-started.
func (s *Service) Start(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "start service")
	defer span.End()

	s.mu.Lock()
	if s.status == StatusRunning || s.status == StatusStarting {
		s.mu.Unlock()
		return nil
	}
	s.status = StatusStarting
	s.mu.Unlock()

	s.emitStatus(ctx, StatusStarting, "", events.SeverityInfo)

	if s.hooks.OnStart != nil {
		if err := s.hooks.OnStart(ctx); err != nil {
			s.setStatus(StatusError)
			wrapped := fmt.Errorf("failed to start service %q: %w", s.name, err)
			span.RecordError(wrapped)
			span.SetStatus(codes.Error, wrapped.Error())
			s.emitStatus(ctx, StatusError, wrapped.Error(), events.SeverityError)
			return wrapped
		}
	}

	s.setStatus(StatusRunning)
	s.emitStatus(ctx, StatusRunning, "", events.SeverityInfo)
	return nil
}

// Stop transitions the service to STOPPED and unsubscribes every
// handler the service registered. Individual removal errors are logged
// rather than returned so teardown always completes. A stop hook
// failure emits an ERROR status and is returned, after cleanup.
func (s *Service) Stop(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "stop service")
	defer span.End()

	s.mu.Lock()
	if s.status == StatusStopped || s.status == StatusStopping || s.status == StatusInitializing {
		s.mu.Unlock()
		return nil
	}
	s.status = StatusStopping
	s.mu.Unlock()

	s.emitStatus(ctx, StatusStopping, "", events.SeverityInfo)

	var hookErr error
	if s.hooks.OnStop != nil {
		hookErr = s.hooks.OnStop(ctx)
	}

	s.cleanupSubscriptions()

	if hookErr != nil {
		s.setStatus(StatusError)
		wrapped := fmt.Errorf("failed to stop service %q: %w", s.name, hookErr)
		span.RecordError(wrapped)
		span.SetStatus(codes.Error, wrapped.Error())
		s.emitStatus(ctx, StatusError, wrapped.Error(), events.SeverityError)
		return wrapped
	}

	s.setStatus(StatusStopped)
	s.emitStatus(ctx, StatusStopped, "", events.SeverityInfo)
	return nil
}

// Subscribe registers a bus handler and records its handle as owned by
// this service so Stop can clean it up. The handle is returned for
// callers that want to remove the registration early.
func (s *Service) Subscribe(topic events.Topic, handler eventbus.Handler) (*eventbus.Subscription, error) {
	sub, err := s.bus.Subscribe(topic, handler)
	if err != nil {
		return nil, fmt.Errorf("service %q failed to subscribe to %q: %w", s.name, topic, err)
	}

	s.mu.Lock()
	s.owned = append(s.owned, sub)
	s.mu.Unlock()
	return sub, nil
}

// Unsubscribe removes a registration by its handle and drops it from
// the owned set.
func (s *Service) Unsubscribe(sub *eventbus.Subscription) {
	if sub == nil {
		return
	}
	s.bus.Unsubscribe(sub)

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, owned := range s.owned {
		if owned == sub {
			s.owned = append(s.owned[:i:i], s.owned[i+1:]...)
			return
		}
	}
}

// ReportError publishes an error-severity status update for this
// service. It is the asynchronous error channel for bus-driven
// activity.
func (s *Service) ReportError(ctx context.Context, message string) {
	s.emitStatus(ctx, s.Status(), message, events.SeverityError)
}

func (s *Service) cleanupSubscriptions() {
	s.mu.Lock()
	owned := s.owned
	s.owned = nil
	s.mu.Unlock()

	for _, sub := range owned {
		func() {
			defer func() {
				if recovered := recover(); recovered != nil {
					logger.Warn("failed to remove subscription during teardown",
						"service", s.name, "topic", string(sub.Topic()), "error", fmt.Sprint(recovered))
				}
			}()
			s.bus.Unsubscribe(sub)
		}()
	}
}

func (s *Service) setStatus(status Status) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

func (s *Service) emitStatus(ctx context.Context, status Status, message string, severity events.Severity) {
	update := events.ServiceStatus{
		ServiceName: s.name,
		Status:      string(status),
		Message:     message,
		Severity:    severity,
	}
	if err := s.bus.PublishMessage(ctx, update); err != nil {
		logger.Warn("failed to publish service status", "service", s.name, "status", string(status), "error", err)
	}
}
