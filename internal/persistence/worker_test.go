package persistence

import (
	"encoding/json"
	"testing"

	"LendLedger/internal/core"
	"LendLedger/internal/entity"
	"LendLedger/internal/event"
)

func outputWith(seq int64, entities ...entity.Entity) core.Output {
	return core.Output{
		Envelope: &core.Envelope{
			Sequence:  seq,
			EventID:   "0xdeadbeef-" + string(rune('0'+seq%10)),
			EventType: event.EventTypeMint,
			Emitter:   "0xmarket",
			Block:     uint64(500 + seq),
			LogIndex:  uint64(seq),
			Timestamp: 1_700_000_000 + seq,
		},
		Entities: entities,
	}
}

func TestBatchKeepsLastEntityVersion(t *testing.T) {
	b := newBatch(10)

	if err := b.add(outputWith(1, &entity.Market{ID: "0xabc", Symbol: "jDAI-v1"})); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := b.add(outputWith(2, &entity.Market{ID: "0xabc", Symbol: "jDAI-v2"})); err != nil {
		t.Fatalf("add: %v", err)
	}

	if len(b.events) != 2 {
		t.Errorf("expected 2 event rows, got %d", len(b.events))
	}

	rows := b.entityRows()
	if len(rows) != 1 {
		t.Fatalf("expected 1 entity row after dedup, got %d", len(rows))
	}

	var m entity.Market
	if err := json.Unmarshal(rows[0].Data, &m); err != nil {
		t.Fatalf("decode row: %v", err)
	}
	if m.Symbol != "jDAI-v2" {
		t.Errorf("expected last version, got symbol %q", m.Symbol)
	}
}

func TestBatchDistinctKindsDoNotCollide(t *testing.T) {
	b := newBatch(10)

	err := b.add(outputWith(1,
		&entity.Market{ID: "shared"},
		&entity.Account{ID: "shared"},
	))
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	rows := b.entityRows()
	if len(rows) != 2 {
		t.Fatalf("expected 2 entity rows, got %d", len(rows))
	}
	if rows[0].Kind == rows[1].Kind {
		t.Errorf("expected distinct kinds, both %q", rows[0].Kind)
	}
}

func TestBatchTracksLastEnvelope(t *testing.T) {
	b := newBatch(10)

	b.add(outputWith(7, &entity.Market{ID: "0xabc"}))
	b.add(outputWith(8, &entity.Market{ID: "0xabc"}))

	if b.last == nil || b.last.Sequence != 8 {
		t.Fatalf("expected last envelope at sequence 8, got %+v", b.last)
	}
}

func TestBatchReset(t *testing.T) {
	b := newBatch(10)
	b.add(outputWith(1, &entity.Market{ID: "0xabc"}))
	b.reset()

	if len(b.events) != 0 || len(b.entityRows()) != 0 || b.last != nil {
		t.Error("expected empty batch after reset")
	}
}

func TestBatchEventRowFields(t *testing.T) {
	b := newBatch(10)
	b.add(outputWith(3, &entity.Market{ID: "0xabc"}))

	row := b.events[0]
	if row.Sequence != 3 {
		t.Errorf("sequence = %d, want 3", row.Sequence)
	}
	if row.EventType != event.EventTypeMint.String() {
		t.Errorf("event type = %q", row.EventType)
	}
	if row.BlockNumber != 503 || row.LogIndex != 3 {
		t.Errorf("coordinates = (%d, %d), want (503, 3)", row.BlockNumber, row.LogIndex)
	}
	if len(row.StateHash) != 32 || len(row.PrevHash) != 32 {
		t.Errorf("hash lengths = (%d, %d), want 32", len(row.StateHash), len(row.PrevHash))
	}
}
