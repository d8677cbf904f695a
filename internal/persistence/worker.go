package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"LendLedger/internal/core"
	"LendLedger/internal/observability"
)

// Worker drains the persist channel and batch-writes to Postgres. It runs
// apart from the engine; the persist channel uses blocking sends, so if this
// worker falls behind the engine stalls instead of losing applied events.
//
// Each flush is one transaction: chain-event envelopes, entity upserts, and
// the checkpoint advance commit together, so the checkpoint can never claim
// events that were not written.
type Worker struct {
	writer       *ChainLogWriter
	checkpoints  *CheckpointStore
	inputChan    <-chan core.Output
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
}

func NewWorker(
	db *sql.DB,
	inputChan <-chan core.Output,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
) *Worker {
	return &Worker{
		writer:       NewChainLogWriter(db),
		checkpoints:  NewCheckpointStore(db),
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
	}
}

// Checkpoints exposes the checkpoint store for startup restore.
func (w *Worker) Checkpoints() *CheckpointStore {
	return w.checkpoints
}

type batch struct {
	events []EventRow
	// entities keeps the last version per (kind, id); within one batch an
	// entity touched by several events only needs its final state written.
	entities map[string]EntityRow
	order    []string
	last     *core.Envelope
}

func newBatch(size int) *batch {
	return &batch{
		events:   make([]EventRow, 0, size),
		entities: make(map[string]EntityRow, size*4),
	}
}

func (b *batch) add(out core.Output) error {
	env := out.Envelope
	b.events = append(b.events, EventRow{
		Sequence:    env.Sequence,
		EventID:     env.EventID,
		EventType:   env.EventType.String(),
		Emitter:     env.Emitter,
		BlockNumber: env.Block,
		LogIndex:    env.LogIndex,
		BlockTime:   env.Timestamp,
		StateHash:   env.StateHash[:],
		PrevHash:    env.PrevHash[:],
	})
	b.last = env

	for _, ent := range out.Entities {
		data, err := json.Marshal(ent)
		if err != nil {
			return fmt.Errorf("marshal entity %s/%s: %w", ent.Kind(), ent.EntityID(), err)
		}
		key := ent.Kind() + "|" + ent.EntityID()
		if _, seen := b.entities[key]; !seen {
			b.order = append(b.order, key)
		}
		b.entities[key] = EntityRow{Kind: ent.Kind(), ID: ent.EntityID(), Data: data}
	}
	return nil
}

func (b *batch) reset() {
	b.events = b.events[:0]
	b.entities = make(map[string]EntityRow, cap(b.events)*4)
	b.order = b.order[:0]
	b.last = nil
}

func (b *batch) entityRows() []EntityRow {
	rows := make([]EntityRow, 0, len(b.order))
	for _, key := range b.order {
		rows = append(rows, b.entities[key])
	}
	return rows
}

// Run starts the worker loop. Batches flush when full or when the flush
// timeout expires. Blocks until ctx is cancelled or the channel closes.
func (w *Worker) Run(ctx context.Context) error {
	log := observability.NewLogger("persistence")
	b := newBatch(w.batchSize)

	timer := time.NewTimer(w.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(b.events) > 0 {
				if err := w.flush(context.Background(), b); err != nil {
					log.Error().Err(err).Msg("final flush failed")
				}
			}
			return ctx.Err()

		case out, ok := <-w.inputChan:
			if !ok {
				if len(b.events) > 0 {
					if err := w.flush(context.Background(), b); err != nil {
						log.Error().Err(err).Msg("final flush failed")
					}
				}
				return nil
			}

			if err := b.add(out); err != nil {
				// Unserializable entity: cannot happen for plain structs.
				log.Error().Err(err).Msg("dropping unserializable entity batch item")
				continue
			}

			if len(b.events) >= w.batchSize {
				w.flushWithRetry(ctx, b)
				b.reset()
				timer.Reset(w.flushTimeout)
			}

		case <-timer.C:
			if len(b.events) > 0 {
				w.flushWithRetry(ctx, b)
				b.reset()
			}
			timer.Reset(w.flushTimeout)
		}
	}
}

// flushWithRetry retries with exponential backoff until the write succeeds
// or the context is cancelled. The worker never drops a batch: on shutdown
// mid-retry it makes one final attempt with a background context.
func (w *Worker) flushWithRetry(ctx context.Context, b *batch) {
	log := observability.NewLogger("persistence")
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			log.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Int("events", len(b.events)).
				Msg("persistence retry")
			if w.metrics != nil {
				w.metrics.PersistRetry.Inc()
			}
			select {
			case <-ctx.Done():
				if err := w.flush(context.Background(), b); err != nil {
					log.Error().Err(err).Msg("final flush on shutdown failed")
				}
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		if err := w.flush(ctx, b); err == nil {
			if attempt > 0 {
				log.Info().Int("attempts", attempt).Msg("persistence flush recovered")
			}
			return
		}
	}
}

func (w *Worker) flush(ctx context.Context, b *batch) error {
	start := time.Now()

	tx, err := w.writer.DB().BeginTx(ctx, nil)
	if err != nil {
		w.countError("tx_begin")
		return err
	}
	defer tx.Rollback()

	if err := w.writer.WriteEventBatch(ctx, tx, b.events); err != nil {
		w.countError("write_events")
		return err
	}

	entities := b.entityRows()
	if err := w.writer.WriteEntityBatch(ctx, tx, entities); err != nil {
		w.countError("write_entities")
		return err
	}

	if b.last != nil {
		if err := w.checkpoints.Save(ctx, tx, Checkpoint{
			Sequence:  b.last.Sequence,
			Block:     b.last.Block,
			LogIndex:  b.last.LogIndex,
			StateHash: b.last.StateHash[:],
		}); err != nil {
			w.countError("write_checkpoint")
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		w.countError("tx_commit")
		return err
	}

	if w.metrics != nil {
		w.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		w.metrics.PersistBatchSize.Observe(float64(len(b.events)))
		w.metrics.PersistEventsWritten.Add(float64(len(b.events)))
		w.metrics.PersistEntitiesWritten.Add(float64(len(entities)))
		if b.last != nil {
			w.metrics.PersistLastBlock.Set(float64(b.last.Block))
		}
	}
	return nil
}

func (w *Worker) countError(stage string) {
	if w.metrics != nil {
		w.metrics.PersistErrors.WithLabelValues(stage).Inc()
	}
}
