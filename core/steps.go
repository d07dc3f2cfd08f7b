package orchestration

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/makeorbreakshop/djr3x-voice-sub003/core/events"
)

// stepFailure marks a recoverable step-level failure: the plan aborts
// its remaining steps and ends failed, but the scheduler itself is
// untouched.
type stepFailure struct {
	stepID string
	cause  error
}

func (f *stepFailure) Error() string {
	return fmt.Sprintf("step %q failed: %v", f.stepID, f.cause)
}

func (f *stepFailure) Unwrap() error {
	return f.cause
}

// runSteps executes the plan's steps in order, honoring the layer's
// gate between steps. A failing step aborts the remainder.
func (e *Executor) runSteps(ctx context.Context, ls *layerState, plan events.Plan) error {
	for _, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}

		if step.Delay > 0 {
			if err := e.clock.Sleep(ctx, step.Delay); err != nil {
				return err
			}
		}

		// A named step event is currently a pass-through placeholder;
		// blocking on arbitrary events stays with the synchronizer.
		_ = step.Event

		if err := ls.gate.wait(ctx); err != nil {
			return err
		}

		e.publish(ctx, events.StepReady{PlanID: plan.ID, StepID: step.ID})

		details, stepErr := e.dispatchStep(ctx, plan, step)
		if stepErr != nil {
			if errors.Is(stepErr, context.Canceled) || errors.Is(stepErr, context.DeadlineExceeded) {
				return stepErr
			}

			e.publish(ctx, events.StepExecuted{
				PlanID:  plan.ID,
				StepID:  step.ID,
				Status:  events.StepFailed,
				Details: stepErr.Error(),
			})
			return &stepFailure{stepID: step.ID, cause: stepErr}
		}

		e.publish(ctx, events.StepExecuted{
			PlanID:  plan.ID,
			StepID:  step.ID,
			Status:  events.StepSucceeded,
			Details: details,
		})
	}

	return nil
}

func (e *Executor) dispatchStep(ctx context.Context, plan events.Plan, step events.Step) (string, error) {
	switch step.Type {
	case events.StepSpeak:
		return e.runSpeakStep(ctx, plan, step)

	case events.StepPlayMusic:
		e.publish(ctx, events.MusicCommand{Genre: step.Genre, PlanID: plan.ID, StepID: step.ID})
		return "", nil

	case events.StepEyePattern:
		e.publish(ctx, events.EyeCommand{Pattern: step.Pattern, PlanID: plan.ID, StepID: step.ID})
		return "", nil

	case events.StepMove:
		e.publish(ctx, events.MoveCommand{Motion: step.Motion, PlanID: plan.ID, StepID: step.ID})
		return "", nil

	case events.StepDelay, events.StepWaitForEvent:
		// Fully handled by the pre-dispatch blocking above.
		return "", nil
	}

	return "", fmt.Errorf("unknown step type %q", step.Type)
}

// runSpeakStep drives the duck → speak → unduck protocol. Whatever
// happens after the duck engages (completion, timeout, cancellation),
// the deferred unduck runs before this function returns, so ducking is
// never left engaged.
func (e *Executor) runSpeakStep(ctx context.Context, plan events.Plan, step events.Step) (string, error) {
	clipID := step.ClipID
	if clipID == "" {
		clipID = uuid.NewString()
	}

	done := e.speech.register(clipID, step.ID)
	defer e.speech.release(clipID, step.ID)

	e.publish(ctx, events.DuckingStart{Level: e.duckingLevel, FadeMs: e.duckFadeMs})
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)
		if err := e.clock.Sleep(cleanupCtx, e.settleDelay); err != nil {
			logger.Warn("settle before unduck interrupted", "error", err)
		}
		e.publish(cleanupCtx, events.DuckingStop{FadeMs: e.duckFadeMs})
	}()

	if err := e.clock.Sleep(ctx, e.settleDelay); err != nil {
		return "", err
	}

	e.publish(ctx, events.SpeechGenerateRequest{
		Text:   step.Text,
		ClipID: clipID,
		StepID: step.ID,
		PlanID: plan.ID,
	})

	select {
	case <-done:
		return fmt.Sprintf("clip %s completed", clipID), nil
	case <-e.clock.After(e.speechWaitTimeout):
		return "", fmt.Errorf("timed out after %s waiting for clip %q to finish", e.speechWaitTimeout, clipID)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
