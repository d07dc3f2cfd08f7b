package orchestration

import (
	"sync"
)

// speechWaiters tracks per-clip completion futures for in-flight speak
// steps. Each future has a single writer (the speech.synthesis_ended
// handler) and a single reader (the step loop awaiting the clip).
type speechWaiters struct {
	mu     sync.Mutex
	byClip map[string]chan struct{}
	byStep map[string]chan struct{}
}

func newSpeechWaiters() *speechWaiters {
	return &speechWaiters{
		byClip: map[string]chan struct{}{},
		byStep: map[string]chan struct{}{},
	}
}

// register creates the completion future for a clip before the
// synthesis request is published, so a fast completion can never slip
// past the waiter.
func (w *speechWaiters) register(clipID, stepID string) chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()

	done := make(chan struct{})
	if clipID != "" {
		w.byClip[clipID] = done
	}
	if stepID != "" {
		w.byStep[stepID] = done
	}
	return done
}

// resolve completes the future identified by clip id or step id.
// Unknown ids are ignored; completions for clips nobody awaits are
// normal when a plan was cancelled mid-speech.
func (w *speechWaiters) resolve(clipID, stepID string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	done, ok := w.byClip[clipID]
	if !ok {
		done, ok = w.byStep[stepID]
	}
	if !ok {
		return
	}

	select {
	case <-done:
	default:
		close(done)
	}
}

// release drops the future's registrations once the await finished,
// whether by completion, timeout, or cancellation.
func (w *speechWaiters) release(clipID, stepID string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if clipID != "" {
		delete(w.byClip, clipID)
	}
	if stepID != "" {
		delete(w.byStep, stepID)
	}
}
