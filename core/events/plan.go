package events

import (
	"fmt"
	"time"
)

// Layer is one of the three priority tiers a plan occupies. Higher
// values preempt lower ones.
type Layer int

const (
	LayerAmbient    Layer = 1
	LayerForeground Layer = 2
	LayerOverride   Layer = 3
)

func (l Layer) String() string {
	switch l {
	case LayerAmbient:
		return "ambient"
	case LayerForeground:
		return "foreground"
	case LayerOverride:
		return "override"
	}
	return fmt.Sprintf("layer(%d)", int(l))
}

// Valid reports whether the layer is one of the three known tiers.
func (l Layer) Valid() bool {
	return l >= LayerAmbient && l <= LayerOverride
}

// ParseLayer accepts the layer either as its name or as its numeric
// tier, mirroring what collaborators put on the wire.
func ParseLayer(value any) (Layer, error) {
	switch v := value.(type) {
	case string:
		switch v {
		case "ambient":
			return LayerAmbient, nil
		case "foreground":
			return LayerForeground, nil
		case "override":
			return LayerOverride, nil
		}
		return 0, fmt.Errorf("unknown layer %q", v)
	case Layer:
		if !v.Valid() {
			return 0, fmt.Errorf("unknown layer %d", int(v))
		}
		return v, nil
	case int:
		return ParseLayer(Layer(v))
	case int64:
		return ParseLayer(Layer(v))
	case float64:
		return ParseLayer(Layer(int(v)))
	}
	return 0, fmt.Errorf("unsupported layer value %v (%T)", value, value)
}

// StepType identifies the kind of work one step performs.
type StepType string

const (
	StepSpeak        StepType = "speak"
	StepPlayMusic    StepType = "play_music"
	StepEyePattern   StepType = "eye_pattern"
	StepMove         StepType = "move"
	StepDelay        StepType = "delay"
	StepWaitForEvent StepType = "wait_for_event"
)

// Valid reports whether the step type is one of the known kinds.
func (t StepType) Valid() bool {
	switch t {
	case StepSpeak, StepPlayMusic, StepEyePattern, StepMove, StepDelay, StepWaitForEvent:
		return true
	}
	return false
}

// Step is one schedulable unit of work inside a plan. Only the fields
// relevant to its type are populated.
type Step struct {
	ID      string
	Type    StepType
	Text    string
	ClipID  string
	Genre   string
	Event   string
	Delay   time.Duration
	Pattern string
	Motion  string
}

// Payload encodes the step as its wire map. The delay travels as
// fractional seconds.
func (s Step) Payload() Payload {
	payload := Payload{"id": s.ID, "type": string(s.Type)}
	if s.Text != "" {
		payload["text"] = s.Text
	}
	if s.ClipID != "" {
		payload["clip_id"] = s.ClipID
	}
	if s.Genre != "" {
		payload["genre"] = s.Genre
	}
	if s.Event != "" {
		payload["event"] = s.Event
	}
	if s.Delay > 0 {
		payload["delay"] = s.Delay.Seconds()
	}
	if s.Pattern != "" {
		payload["pattern"] = s.Pattern
	}
	if s.Motion != "" {
		payload["motion"] = s.Motion
	}
	return payload
}

// ParseStep decodes and validates one step map.
func ParseStep(payload Payload) (Step, error) {
	step := Step{
		ID:      payload.stringField("id"),
		Type:    StepType(payload.stringField("type")),
		Text:    payload.stringField("text"),
		ClipID:  payload.stringField("clip_id"),
		Genre:   payload.stringField("genre"),
		Event:   payload.stringField("event"),
		Pattern: payload.stringField("pattern"),
		Motion:  payload.stringField("motion"),
	}

	if step.ID == "" {
		return Step{}, fmt.Errorf("step is missing an id")
	}
	if !step.Type.Valid() {
		return Step{}, fmt.Errorf("step %q has unknown type %q", step.ID, step.Type)
	}

	if seconds, ok := payload.floatField("delay"); ok {
		if seconds < 0 {
			return Step{}, fmt.Errorf("step %q has negative delay %v", step.ID, seconds)
		}
		step.Delay = time.Duration(seconds * float64(time.Second))
	}

	return step, nil
}

// Plan is an ordered list of steps submitted for execution on one
// layer.
type Plan struct {
	ID    string
	Layer Layer
	Steps []Step
}

// ParsePlan decodes and validates a full plan from a plan.ready
// payload.
func ParsePlan(payload Payload) (Plan, error) {
	plan := Plan{ID: payload.stringField("plan_id")}
	if plan.ID == "" {
		return Plan{}, fmt.Errorf("plan is missing a plan_id")
	}

	layer, err := ParseLayer(payload["layer"])
	if err != nil {
		return Plan{}, fmt.Errorf("plan %q: %w", plan.ID, err)
	}
	plan.Layer = layer

	rawSteps, ok := payload["steps"].([]any)
	if !ok {
		if typed, isTyped := payload["steps"].([]Step); isTyped {
			plan.Steps = append(plan.Steps, typed...)
			return plan, nil
		}
		return Plan{}, fmt.Errorf("plan %q has no steps list", plan.ID)
	}

	for i, rawStep := range rawSteps {
		stepPayload, isMap := rawStep.(map[string]any)
		if !isMap {
			if typed, isPayload := rawStep.(Payload); isPayload {
				stepPayload = typed
			} else {
				return Plan{}, fmt.Errorf("plan %q step %d is not a map", plan.ID, i)
			}
		}
		step, err := ParseStep(Payload(stepPayload))
		if err != nil {
			return Plan{}, fmt.Errorf("plan %q: %w", plan.ID, err)
		}
		plan.Steps = append(plan.Steps, step)
	}

	return plan, nil
}
