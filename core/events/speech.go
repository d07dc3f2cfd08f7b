package events

// DuckingStart asks the audio service to lower background audio ahead
// of speech. Level is the duck target in [0, 1]; FadeMs is the fade
// duration in milliseconds.
type DuckingStart struct {
	Level  float64 `json:"level"`
	FadeMs int     `json:"fade_ms"`
}

func (DuckingStart) Topic() Topic { return TopicDuckingStart }

func (e DuckingStart) Payload() Payload {
	return Payload{"level": e.Level, "fade_ms": e.FadeMs}
}

// ParseDuckingStart decodes an audio.ducking_start payload.
func ParseDuckingStart(payload Payload) (DuckingStart, error) {
	start := DuckingStart{}
	if level, ok := payload.floatField("level"); ok {
		start.Level = level
	}
	if fade, ok := payload.floatField("fade_ms"); ok {
		start.FadeMs = int(fade)
	}
	return start, nil
}

// DuckingStop asks the audio service to restore background audio.
type DuckingStop struct {
	FadeMs int `json:"fade_ms"`
}

func (DuckingStop) Topic() Topic { return TopicDuckingStop }

func (e DuckingStop) Payload() Payload {
	return Payload{"fade_ms": e.FadeMs}
}

// SpeechGenerateRequest asks the speech engine to synthesize and play
// one clip.
type SpeechGenerateRequest struct {
	Text   string `json:"text"`
	ClipID string `json:"clip_id"`
	StepID string `json:"step_id"`
	PlanID string `json:"plan_id"`
}

func (SpeechGenerateRequest) Topic() Topic { return TopicSpeechGenerateRequest }

func (e SpeechGenerateRequest) Payload() Payload {
	return Payload{"text": e.Text, "clip_id": e.ClipID, "step_id": e.StepID, "plan_id": e.PlanID}
}

// ParseSpeechGenerateRequest decodes a speech.generate_request payload.
func ParseSpeechGenerateRequest(payload Payload) (SpeechGenerateRequest, error) {
	return SpeechGenerateRequest{
		Text:   payload.stringField("text"),
		ClipID: payload.stringField("clip_id"),
		StepID: payload.stringField("step_id"),
		PlanID: payload.stringField("plan_id"),
	}, nil
}

// SpeechSynthesisEnded reports that a clip finished playing. Either
// ClipID or StepID identifies the clip; collaborators send whichever
// they tracked.
type SpeechSynthesisEnded struct {
	ClipID string `json:"clip_id,omitempty"`
	StepID string `json:"step_id,omitempty"`
}

func (SpeechSynthesisEnded) Topic() Topic { return TopicSpeechSynthesisEnded }

func (e SpeechSynthesisEnded) Payload() Payload {
	payload := Payload{}
	if e.ClipID != "" {
		payload["clip_id"] = e.ClipID
	}
	if e.StepID != "" {
		payload["step_id"] = e.StepID
	}
	return payload
}

// ParseSpeechSynthesisEnded decodes a speech.synthesis_ended payload.
func ParseSpeechSynthesisEnded(payload Payload) (SpeechSynthesisEnded, error) {
	return SpeechSynthesisEnded{
		ClipID: payload.stringField("clip_id"),
		StepID: payload.stringField("step_id"),
	}, nil
}
