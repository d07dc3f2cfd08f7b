package eventbus

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/makeorbreakshop/djr3x-voice-sub003/core/events"
)

// probeField flags bus-internal verification payloads. Probes are only
// delivered to internal subscriptions, so ordinary subscribers never
// see them.
const probeField = "_bus_probe"

const defaultVerifyTimeout = time.Second

func isProbe(payload events.Payload) bool {
	flagged, ok := payload[probeField].(bool)
	return ok && flagged
}

// Verify sends an internally-flagged probe payload through the bus and
// confirms it is delivered within a bound. It exists to catch silently
// broken wiring at startup, before real traffic depends on the topic.
func (b *Bus) Verify(ctx context.Context, topic events.Topic) error {
	ctx, finish := b.span(ctx, "verify topic")
	var verifyErr error
	defer func() { finish(verifyErr) }()

	probeID := uuid.NewString()
	received := make(chan struct{}, 1)
	var seen atomic.Bool

	probeHandler := func(payload events.Payload) error {
		if id, ok := payload["probe_id"].(string); !ok || id != probeID {
			return nil
		}
		if seen.CompareAndSwap(false, true) {
			received <- struct{}{}
		}
		return nil
	}

	sub, err := b.SubscribeInternal(topic, probeHandler)
	if err != nil {
		verifyErr = fmt.Errorf("failed to register probe on topic %q: %w", topic, err)
		return verifyErr
	}
	defer b.Unsubscribe(sub)

	probe := events.Payload{probeField: true, "probe_id": probeID}
	if err := b.Publish(ctx, topic, probe); err != nil {
		verifyErr = fmt.Errorf("failed to publish probe on topic %q: %w", topic, err)
		return verifyErr
	}

	select {
	case <-received:
		return nil
	case <-b.clock.After(defaultVerifyTimeout):
		verifyErr = fmt.Errorf("probe on topic %q was not delivered in time", topic)
		return verifyErr
	case <-ctx.Done():
		verifyErr = fmt.Errorf("verification of topic %q interrupted: %w", topic, ctx.Err())
		return verifyErr
	}
}
