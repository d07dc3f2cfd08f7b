package events

// Topic is a string channel name events are published and subscribed
// on. Topics are hierarchical by convention only; nothing enforces the
// dotted structure.
type Topic string

const (
	TopicPlanReady    Topic = "plan.ready"
	TopicPlanStarted  Topic = "plan.started"
	TopicStepReady    Topic = "plan.step_ready"
	TopicStepExecuted Topic = "plan.step_executed"
	TopicPlanEnded    Topic = "plan.ended"

	TopicDuckingStart          Topic = "audio.ducking_start"
	TopicDuckingStop           Topic = "audio.ducking_stop"
	TopicSpeechGenerateRequest Topic = "speech.generate_request"
	TopicSpeechSynthesisEnded  Topic = "speech.synthesis_ended"

	TopicMusicCommand Topic = "music.command"
	TopicEyeCommand   Topic = "eyes.command"
	TopicMoveCommand  Topic = "motion.command"

	TopicServiceStatus Topic = "service.status_update"
)

// Payload is the loosely-typed map every event travels as on the bus.
// Known topics additionally have typed structs below; unknown topics
// are carried as-is.
type Payload map[string]any

// Message is implemented by every typed event payload in this package.
type Message interface {
	Topic() Topic
	Payload() Payload
}

func (p Payload) stringField(key string) string {
	if value, ok := p[key].(string); ok {
		return value
	}
	return ""
}

func (p Payload) floatField(key string) (float64, bool) {
	switch value := p[key].(type) {
	case float64:
		return value, true
	case float32:
		return float64(value), true
	case int:
		return float64(value), true
	case int64:
		return float64(value), true
	}
	return 0, false
}
