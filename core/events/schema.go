package events

import (
	"fmt"

	"github.com/invopop/jsonschema"
)

// SchemaRegistry maps known topics to JSON schemas reflected from the
// typed payload structs in this package. The bus consults it at the
// publish boundary so malformed payloads on known topics are rejected
// before any handler runs; unknown topics pass through unchecked as
// the forward-compatible fallback.
type SchemaRegistry struct {
	schemas map[Topic]*jsonschema.Schema
}

// NewSchemaRegistry builds the registry for every known topic.
func NewSchemaRegistry() *SchemaRegistry {
	reflector := &jsonschema.Reflector{DoNotReference: true}

	registry := &SchemaRegistry{schemas: map[Topic]*jsonschema.Schema{}}
	register := func(message Message, sample any) {
		registry.schemas[message.Topic()] = reflector.Reflect(sample)
	}

	register(PlanReady{}, &PlanReady{})
	register(PlanStarted{}, &PlanStarted{})
	register(StepReady{}, &StepReady{})
	register(StepExecuted{}, &StepExecuted{})
	register(PlanEnded{}, &PlanEnded{})
	register(DuckingStart{}, &DuckingStart{})
	register(DuckingStop{}, &DuckingStop{})
	register(SpeechGenerateRequest{}, &SpeechGenerateRequest{})
	register(SpeechSynthesisEnded{}, &SpeechSynthesisEnded{})
	register(MusicCommand{}, &MusicCommand{})
	register(EyeCommand{}, &EyeCommand{})
	register(MoveCommand{}, &MoveCommand{})
	register(ServiceStatus{}, &ServiceStatus{})

	return registry
}

// Known reports whether the topic has a registered schema.
func (r *SchemaRegistry) Known(topic Topic) bool {
	if r == nil {
		return false
	}

	_, ok := r.schemas[topic]
	return ok
}

// Schema returns the reflected schema for a known topic, or nil.
func (r *SchemaRegistry) Schema(topic Topic) *jsonschema.Schema {
	if r == nil {
		return nil
	}

	return r.schemas[topic]
}

// Validate checks a payload against the topic's schema. Validation is
// shape-level: every required property must be present. Unknown topics
// always validate.
func (r *SchemaRegistry) Validate(topic Topic, payload Payload) error {
	if r == nil {
		return nil
	}

	schema, ok := r.schemas[topic]
	if !ok {
		return nil
	}

	for _, required := range schema.Required {
		if _, present := payload[required]; !present {
			return fmt.Errorf("payload for topic %q is missing required field %q", topic, required)
		}
	}

	return nil
}
