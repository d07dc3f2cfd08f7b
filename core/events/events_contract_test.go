package events

import "testing"

func TestMessagesCarryExpectedTopics(t *testing.T) {
	testCases := []struct {
		name     string
		message  Message
		expected Topic
	}{
		{name: "plan ready", message: PlanReady{PlanID: "p1", Layer: LayerAmbient}, expected: TopicPlanReady},
		{name: "plan started", message: PlanStarted{PlanID: "p1", Layer: LayerAmbient}, expected: TopicPlanStarted},
		{name: "step ready", message: StepReady{PlanID: "p1", StepID: "s1"}, expected: TopicStepReady},
		{name: "step executed", message: StepExecuted{PlanID: "p1", StepID: "s1", Status: StepSucceeded}, expected: TopicStepExecuted},
		{name: "plan ended", message: PlanEnded{PlanID: "p1", Layer: LayerAmbient, Status: PlanCompleted}, expected: TopicPlanEnded},
		{name: "ducking start", message: DuckingStart{Level: 0.3, FadeMs: 500}, expected: TopicDuckingStart},
		{name: "ducking stop", message: DuckingStop{FadeMs: 500}, expected: TopicDuckingStop},
		{name: "speech generate request", message: SpeechGenerateRequest{Text: "hi", ClipID: "c1"}, expected: TopicSpeechGenerateRequest},
		{name: "speech synthesis ended", message: SpeechSynthesisEnded{ClipID: "c1"}, expected: TopicSpeechSynthesisEnded},
		{name: "music command", message: MusicCommand{Genre: "cantina"}, expected: TopicMusicCommand},
		{name: "eye command", message: EyeCommand{Pattern: "sparkle"}, expected: TopicEyeCommand},
		{name: "move command", message: MoveCommand{Motion: "head_bob"}, expected: TopicMoveCommand},
		{name: "service status", message: ServiceStatus{ServiceName: "executor", Status: "RUNNING"}, expected: TopicServiceStatus},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := testCase.message.Topic(); got != testCase.expected {
				t.Fatalf("expected topic %q, got %q", testCase.expected, got)
			}
		})
	}
}

func TestPlanEndedPayloadRoundTrip(t *testing.T) {
	ended := PlanEnded{PlanID: "p1", Layer: LayerForeground, Status: PlanPaused}

	parsed, err := ParsePlanEnded(ended.Payload())
	if err != nil {
		t.Fatalf("expected plan ended payload to parse, got error: %v", err)
	}
	if parsed != ended {
		t.Fatalf("expected round trip to preserve %+v, got %+v", ended, parsed)
	}
}

func TestParsePlanEndedRejectsUnknownStatus(t *testing.T) {
	payload := Payload{"plan_id": "p1", "layer": "ambient", "status": "imploded"}

	if _, err := ParsePlanEnded(payload); err == nil {
		t.Fatal("expected unknown status to be rejected")
	}
}

func TestMusicCommandStopSentinel(t *testing.T) {
	if !(MusicCommand{Genre: GenreStop}).Stop() {
		t.Fatal("expected the stop sentinel genre to be recognized")
	}
	if (MusicCommand{Genre: "jazz"}).Stop() {
		t.Fatal("expected a literal genre to not read as stop")
	}
}

func TestParseSpeechSynthesisEndedAcceptsEitherIdentifier(t *testing.T) {
	byClip, err := ParseSpeechSynthesisEnded(Payload{"clip_id": "c1"})
	if err != nil {
		t.Fatalf("expected clip id payload to parse, got error: %v", err)
	}
	if byClip.ClipID != "c1" || byClip.StepID != "" {
		t.Fatalf("expected clip id %q only, got %+v", "c1", byClip)
	}

	byStep, err := ParseSpeechSynthesisEnded(Payload{"step_id": "s2"})
	if err != nil {
		t.Fatalf("expected step id payload to parse, got error: %v", err)
	}
	if byStep.StepID != "s2" || byStep.ClipID != "" {
		t.Fatalf("expected step id %q only, got %+v", "s2", byStep)
	}
}
