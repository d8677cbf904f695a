package projection

import (
	"testing"

	"LendLedger/internal/core"
	"LendLedger/internal/event"
)

func appliedOutput(seq int64, emitter string) core.Output {
	return core.Output{
		Envelope: &core.Envelope{
			Sequence:  seq,
			EventID:   "0xabc-" + string(rune('0'+seq%10)),
			EventType: event.EventTypeMint,
			Emitter:   emitter,
			Block:     uint64(100 + seq),
			Timestamp: 1_700_000_000 + seq,
		},
	}
}

func TestActivityEmpty(t *testing.T) {
	p := NewActivityProjection(4)

	if got := p.Recent("", 10); len(got) != 0 {
		t.Errorf("expected no entries, got %d", len(got))
	}
	if got := p.LastSequence(); got != -1 {
		t.Errorf("LastSequence = %d, want -1", got)
	}
}

func TestActivityNewestFirst(t *testing.T) {
	p := NewActivityProjection(8)
	for seq := int64(1); seq <= 3; seq++ {
		p.Add(appliedOutput(seq, "0xmarket"))
	}

	got := p.Recent("", 10)
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	for i, want := range []int64{3, 2, 1} {
		if got[i].Sequence != want {
			t.Errorf("entry %d: sequence %d, want %d", i, got[i].Sequence, want)
		}
	}
	if p.LastSequence() != 3 {
		t.Errorf("LastSequence = %d, want 3", p.LastSequence())
	}
}

func TestActivityRingOverwritesOldest(t *testing.T) {
	p := NewActivityProjection(3)
	for seq := int64(1); seq <= 5; seq++ {
		p.Add(appliedOutput(seq, "0xmarket"))
	}

	got := p.Recent("", 10)
	if len(got) != 3 {
		t.Fatalf("expected 3 entries after wraparound, got %d", len(got))
	}
	for i, want := range []int64{5, 4, 3} {
		if got[i].Sequence != want {
			t.Errorf("entry %d: sequence %d, want %d", i, got[i].Sequence, want)
		}
	}
}

func TestActivityEmitterFilter(t *testing.T) {
	p := NewActivityProjection(8)
	p.Add(appliedOutput(1, "0xaaa"))
	p.Add(appliedOutput(2, "0xbbb"))
	p.Add(appliedOutput(3, "0xaaa"))

	got := p.Recent("0xaaa", 10)
	if len(got) != 2 {
		t.Fatalf("expected 2 entries for emitter, got %d", len(got))
	}
	if got[0].Sequence != 3 || got[1].Sequence != 1 {
		t.Errorf("got sequences %d, %d; want 3, 1", got[0].Sequence, got[1].Sequence)
	}
}

func TestActivityLimit(t *testing.T) {
	p := NewActivityProjection(8)
	for seq := int64(1); seq <= 6; seq++ {
		p.Add(appliedOutput(seq, "0xmarket"))
	}

	got := p.Recent("", 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].Sequence != 6 || got[1].Sequence != 5 {
		t.Errorf("got sequences %d, %d; want 6, 5", got[0].Sequence, got[1].Sequence)
	}
}
