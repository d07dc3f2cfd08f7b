// Package events defines the typed bus contract shared by the DJ core
// and its collaborating services.
//
// Topics are grouped by receiver-facing namespaces:
//
//   - plan.*    scheduler lifecycle for submitted plans and their steps
//   - audio.*   ducking control around speech playback
//   - speech.*  speech synthesis requests and completions
//   - music.*   music player commands
//   - eyes.*    LED eye pattern commands
//   - motion.*  animatronic motion commands
//   - service.* service lifecycle status reports
//
// Every known topic has a typed payload struct with a Payload encoder
// and a Parse decoder; unknown topics travel as plain Payload maps so
// collaborators can extend the contract without touching this package.
//
// plan events
//
//   - PlanReady (plan.ready): a plan submitted for execution on one of
//     the three priority layers.
//   - PlanStarted (plan.started): the scheduler accepted the plan and
//     its step loop is running.
//   - StepReady (plan.step_ready): a step is about to dispatch.
//   - StepExecuted (plan.step_executed): a step finished, successfully
//     or not.
//   - PlanEnded (plan.ended): terminal (completed, cancelled, failed)
//     or paused plan state.
//
// audio and speech events
//
//   - DuckingStart (audio.ducking_start): lower background audio ahead
//     of speech.
//   - DuckingStop (audio.ducking_stop): restore background audio.
//   - SpeechGenerateRequest (speech.generate_request): ask the speech
//     engine to synthesize and play a clip.
//   - SpeechSynthesisEnded (speech.synthesis_ended): a clip finished
//     playing, identified by clip id or step id.
//
// command events
//
//   - MusicCommand (music.command): play a genre, or stop playback via
//     the "stop" sentinel genre.
//   - EyeCommand (eyes.command): set an LED eye pattern.
//   - MoveCommand (motion.command): trigger a motion sequence.
//
// service events
//
//   - ServiceStatus (service.status_update): lifecycle state and
//     severity-tagged message for a named service.
package events
