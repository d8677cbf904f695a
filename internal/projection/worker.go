package projection

import (
	"context"
	"encoding/hex"

	"LendLedger/internal/core"
	"LendLedger/internal/ingestion"
	"LendLedger/internal/observability"
)

// Worker drains the engine's projection channel into the recent-activity
// view and fans applied-event notifications out to the outbound publisher.
// Everything here is lossy on purpose: the engine never blocks on this path.
type Worker struct {
	activity  *ActivityProjection
	inputChan <-chan core.Output
	outbound  chan<- ingestion.AppliedEvent // nil disables publishing
	lastSeq   int64
}

func NewWorker(
	activity *ActivityProjection,
	inputChan <-chan core.Output,
	outbound chan<- ingestion.AppliedEvent,
) *Worker {
	return &Worker{
		activity:  activity,
		inputChan: inputChan,
		outbound:  outbound,
		lastSeq:   -1,
	}
}

// Run starts the projection loop. Blocks until ctx is cancelled or the
// channel closes.
func (w *Worker) Run(ctx context.Context) error {
	log := observability.NewLogger("projection")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case out, ok := <-w.inputChan:
			if !ok {
				return nil
			}

			env := out.Envelope
			if w.lastSeq >= 0 && env.Sequence != w.lastSeq+1 {
				// Engine-side drops show up as sequence gaps. Harmless for
				// the activity feed; logged so lag is visible.
				log.Debug().
					Int64("expected", w.lastSeq+1).
					Int64("got", env.Sequence).
					Msg("projection sequence gap")
			}
			w.lastSeq = env.Sequence

			w.activity.Add(out)

			if w.outbound != nil {
				applied := ingestion.AppliedEvent{
					Sequence:  env.Sequence,
					EventID:   env.EventID,
					EventType: env.EventType.String(),
					Emitter:   env.Emitter,
					Block:     env.Block,
					LogIndex:  env.LogIndex,
					Timestamp: env.Timestamp,
					StateHash: hex.EncodeToString(env.StateHash[:]),
				}
				select {
				case w.outbound <- applied:
				default:
					// Publisher lagging; the chain-event log stays complete.
				}
			}
		}
	}
}
