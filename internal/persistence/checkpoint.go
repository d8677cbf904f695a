package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// Checkpoint is the single-row resume point: the chain coordinates, engine
// sequence, and hash-chain tip of the last persisted flush. On startup the
// shell restores the engine from it and resumes the stream past the
// watermark.
type Checkpoint struct {
	Sequence  int64
	Block     uint64
	LogIndex  uint64
	StateHash []byte
	WriterID  uuid.UUID
}

// CheckpointStore reads and advances the resume point. The checkpoint is
// written in the same transaction as the batch it describes, so it can never
// point past data that was not persisted.
type CheckpointStore struct {
	db       *sql.DB
	writerID uuid.UUID
}

func NewCheckpointStore(db *sql.DB) *CheckpointStore {
	return &CheckpointStore{
		db:       db,
		writerID: uuid.New(),
	}
}

// WriterID identifies this process in the checkpoint row; a changed id after
// restart shows which run last advanced the watermark.
func (cs *CheckpointStore) WriterID() uuid.UUID {
	return cs.writerID
}

// Load returns the checkpoint, or ok=false on a fresh database.
func (cs *CheckpointStore) Load(ctx context.Context) (Checkpoint, bool, error) {
	var (
		cp       Checkpoint
		block    int64
		logIndex int64
		writerID string
	)
	err := cs.db.QueryRowContext(ctx, `
		SELECT sequence, block_number, log_index, state_hash, writer_id
		FROM lend.checkpoint WHERE id = 1
	`).Scan(&cp.Sequence, &block, &logIndex, &cp.StateHash, &writerID)
	if err == sql.ErrNoRows {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("load checkpoint: %w", err)
	}

	cp.Block = uint64(block)
	cp.LogIndex = uint64(logIndex)
	if id, perr := uuid.Parse(writerID); perr == nil {
		cp.WriterID = id
	}
	return cp, true, nil
}

// Save upserts the checkpoint inside tx.
func (cs *CheckpointStore) Save(ctx context.Context, tx *sql.Tx, cp Checkpoint) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO lend.checkpoint (id, sequence, block_number, log_index, state_hash, writer_id, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id) DO UPDATE SET
			sequence = EXCLUDED.sequence,
			block_number = EXCLUDED.block_number,
			log_index = EXCLUDED.log_index,
			state_hash = EXCLUDED.state_hash,
			writer_id = EXCLUDED.writer_id,
			updated_at = NOW()
	`, cp.Sequence, int64(cp.Block), int64(cp.LogIndex), cp.StateHash, cs.writerID.String())
	return err
}

// RecentEventIDs returns the newest ids from the chain-event log, used to
// warm the dedup LRU on restart.
func (cs *CheckpointStore) RecentEventIDs(ctx context.Context, limit int) ([]string, error) {
	rows, err := cs.db.QueryContext(ctx, `
		SELECT event_id FROM lend.chain_events
		ORDER BY sequence DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
