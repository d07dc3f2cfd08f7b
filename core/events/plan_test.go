package events

import (
	"testing"
	"time"
)

func TestParsePlanDecodesStepsInOrder(t *testing.T) {
	payload := Payload{
		"plan_id": "p1",
		"layer":   "foreground",
		"steps": []any{
			map[string]any{"id": "s1", "type": "delay", "delay": 0.2},
			map[string]any{"id": "s2", "type": "speak", "text": "hi"},
			map[string]any{"id": "s3", "type": "play_music", "genre": "cantina"},
		},
	}

	plan, err := ParsePlan(payload)
	if err != nil {
		t.Fatalf("expected plan to parse, got error: %v", err)
	}

	if plan.ID != "p1" {
		t.Fatalf("expected plan id %q, got %q", "p1", plan.ID)
	}
	if plan.Layer != LayerForeground {
		t.Fatalf("expected layer %v, got %v", LayerForeground, plan.Layer)
	}
	if len(plan.Steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(plan.Steps))
	}
	if plan.Steps[0].Delay != 200*time.Millisecond {
		t.Fatalf("expected 200ms delay, got %s", plan.Steps[0].Delay)
	}
	if plan.Steps[1].Type != StepSpeak || plan.Steps[1].Text != "hi" {
		t.Fatalf("expected speak step with text %q, got %+v", "hi", plan.Steps[1])
	}
	if plan.Steps[2].Genre != "cantina" {
		t.Fatalf("expected genre %q, got %q", "cantina", plan.Steps[2].Genre)
	}
}

func TestParsePlanRejectsUnknownLayer(t *testing.T) {
	payload := Payload{
		"plan_id": "p1",
		"layer":   "sideways",
		"steps":   []any{map[string]any{"id": "s1", "type": "delay"}},
	}

	if _, err := ParsePlan(payload); err == nil {
		t.Fatal("expected unknown layer to be rejected")
	}
}

func TestParsePlanAcceptsNumericLayer(t *testing.T) {
	payload := Payload{
		"plan_id": "p1",
		"layer":   float64(3),
		"steps":   []any{map[string]any{"id": "s1", "type": "move", "motion": "spin"}},
	}

	plan, err := ParsePlan(payload)
	if err != nil {
		t.Fatalf("expected numeric layer to parse, got error: %v", err)
	}
	if plan.Layer != LayerOverride {
		t.Fatalf("expected override layer, got %v", plan.Layer)
	}
}

func TestParseStepRejectsMissingID(t *testing.T) {
	if _, err := ParseStep(Payload{"type": "delay"}); err == nil {
		t.Fatal("expected step without id to be rejected")
	}
}

func TestParseStepRejectsUnknownType(t *testing.T) {
	if _, err := ParseStep(Payload{"id": "s1", "type": "juggle"}); err == nil {
		t.Fatal("expected unknown step type to be rejected")
	}
}

func TestParseStepRejectsNegativeDelay(t *testing.T) {
	if _, err := ParseStep(Payload{"id": "s1", "type": "delay", "delay": -1.0}); err == nil {
		t.Fatal("expected negative delay to be rejected")
	}
}

func TestStepPayloadRoundTrip(t *testing.T) {
	step := Step{ID: "s1", Type: StepSpeak, Text: "hello there", ClipID: "c1", Delay: 1500 * time.Millisecond}

	parsed, err := ParseStep(step.Payload())
	if err != nil {
		t.Fatalf("expected step payload to parse, got error: %v", err)
	}
	if parsed != step {
		t.Fatalf("expected round trip to preserve %+v, got %+v", step, parsed)
	}
}

func TestLayerNames(t *testing.T) {
	testCases := []struct {
		layer    Layer
		expected string
	}{
		{LayerAmbient, "ambient"},
		{LayerForeground, "foreground"},
		{LayerOverride, "override"},
	}

	for _, testCase := range testCases {
		if got := testCase.layer.String(); got != testCase.expected {
			t.Fatalf("expected layer name %q, got %q", testCase.expected, got)
		}
	}

	if Layer(7).Valid() {
		t.Fatal("expected layer 7 to be invalid")
	}
}
