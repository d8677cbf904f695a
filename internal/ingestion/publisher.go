package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"LendLedger/internal/observability"
)

// OutboundStreamName carries applied-event notifications for downstream
// consumers (alerting, caches, other indexers). Published after the event
// was applied; delivery is best-effort since the chain-event log in Postgres
// is the durable record.
const (
	OutboundStreamName    = "LEND_APPLIED"
	OutboundSubjectPrefix = "lend.applied"
)

// AppliedEvent is the outbound notification for one applied chain event.
type AppliedEvent struct {
	Sequence  int64  `json:"sequence"`
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Emitter   string `json:"emitter"`
	Block     uint64 `json:"block"`
	LogIndex  uint64 `json:"log_index"`
	Timestamp int64  `json:"timestamp"`
	StateHash string `json:"state_hash"`
}

// OutboundPublisher drains applied-event notifications onto JetStream.
type OutboundPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan AppliedEvent
}

func NewOutboundPublisher(js jetstream.JetStream, inputChan <-chan AppliedEvent) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
	}
}

// Run starts the outbound publisher loop. Publish failures are logged and
// dropped; consumers needing completeness read the chain-event log.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	log := observability.NewLogger("publisher")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case evt, ok := <-op.inputChan:
			if !ok {
				return nil
			}
			if err := op.publish(ctx, evt); err != nil {
				log.Warn().
					Int64("sequence", evt.Sequence).
					Err(err).
					Msg("outbound publish failed")
			}
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, evt AppliedEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal applied event: %w", err)
	}

	subject := fmt.Sprintf("%s.%s.%s", OutboundSubjectPrefix, evt.EventType, evt.Emitter)
	_, err = op.js.Publish(ctx, subject, data)
	return err
}

// EnsureOutboundStream creates the applied-events stream.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      OutboundStreamName,
		Subjects:  []string{OutboundSubjectPrefix + ".>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	return nil
}
