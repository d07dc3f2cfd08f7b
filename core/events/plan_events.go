package events

import "fmt"

// PlanStatus is the end state reported on plan.ended. Paused is the
// only non-terminal status; a paused plan's record is retained so it
// can be restarted.
type PlanStatus string

const (
	PlanCompleted PlanStatus = "completed"
	PlanCancelled PlanStatus = "cancelled"
	PlanFailed    PlanStatus = "failed"
	PlanPaused    PlanStatus = "paused"
)

// StepStatus is the outcome reported on plan.step_executed.
type StepStatus string

const (
	StepSucceeded StepStatus = "success"
	StepFailed    StepStatus = "failure"
)

// PlanReady submits a plan for execution on one layer.
type PlanReady struct {
	PlanID string `json:"plan_id"`
	Layer  Layer  `json:"layer"`
	Steps  []Step `json:"steps"`
}

func (PlanReady) Topic() Topic { return TopicPlanReady }

func (e PlanReady) Payload() Payload {
	steps := make([]any, 0, len(e.Steps))
	for _, step := range e.Steps {
		steps = append(steps, map[string]any(step.Payload()))
	}
	return Payload{"plan_id": e.PlanID, "layer": e.Layer.String(), "steps": steps}
}

// PlanStarted reports that the scheduler accepted a plan and its step
// loop is running.
type PlanStarted struct {
	PlanID string `json:"plan_id"`
	Layer  Layer  `json:"layer"`
}

func (PlanStarted) Topic() Topic { return TopicPlanStarted }

func (e PlanStarted) Payload() Payload {
	return Payload{"plan_id": e.PlanID, "layer": e.Layer.String()}
}

// ParsePlanStarted decodes a plan.started payload.
func ParsePlanStarted(payload Payload) (PlanStarted, error) {
	layer, err := ParseLayer(payload["layer"])
	if err != nil {
		return PlanStarted{}, err
	}
	return PlanStarted{PlanID: payload.stringField("plan_id"), Layer: layer}, nil
}

// StepReady reports that a step is about to dispatch.
type StepReady struct {
	PlanID string `json:"plan_id"`
	StepID string `json:"step_id"`
}

func (StepReady) Topic() Topic { return TopicStepReady }

func (e StepReady) Payload() Payload {
	return Payload{"plan_id": e.PlanID, "step_id": e.StepID}
}

// StepExecuted reports one step's outcome. Details carries a
// human-readable failure cause when the step failed.
type StepExecuted struct {
	PlanID  string     `json:"plan_id"`
	StepID  string     `json:"step_id"`
	Status  StepStatus `json:"status"`
	Details string     `json:"details,omitempty"`
}

func (StepExecuted) Topic() Topic { return TopicStepExecuted }

func (e StepExecuted) Payload() Payload {
	payload := Payload{"plan_id": e.PlanID, "step_id": e.StepID, "status": string(e.Status)}
	if e.Details != "" {
		payload["details"] = e.Details
	}
	return payload
}

// ParseStepExecuted decodes a plan.step_executed payload.
func ParseStepExecuted(payload Payload) (StepExecuted, error) {
	executed := StepExecuted{
		PlanID:  payload.stringField("plan_id"),
		StepID:  payload.stringField("step_id"),
		Status:  StepStatus(payload.stringField("status")),
		Details: payload.stringField("details"),
	}
	if executed.Status != StepSucceeded && executed.Status != StepFailed {
		return StepExecuted{}, fmt.Errorf("unknown step status %q", executed.Status)
	}
	return executed, nil
}

// PlanEnded reports a plan leaving its layer, terminally or paused.
type PlanEnded struct {
	PlanID string     `json:"plan_id"`
	Layer  Layer      `json:"layer"`
	Status PlanStatus `json:"status"`
}

func (PlanEnded) Topic() Topic { return TopicPlanEnded }

func (e PlanEnded) Payload() Payload {
	return Payload{"plan_id": e.PlanID, "layer": e.Layer.String(), "status": string(e.Status)}
}

// ParsePlanEnded decodes a plan.ended payload.
func ParsePlanEnded(payload Payload) (PlanEnded, error) {
	layer, err := ParseLayer(payload["layer"])
	if err != nil {
		return PlanEnded{}, err
	}
	ended := PlanEnded{
		PlanID: payload.stringField("plan_id"),
		Layer:  layer,
		Status: PlanStatus(payload.stringField("status")),
	}
	switch ended.Status {
	case PlanCompleted, PlanCancelled, PlanFailed, PlanPaused:
	default:
		return PlanEnded{}, fmt.Errorf("unknown plan status %q", ended.Status)
	}
	return ended, nil
}
