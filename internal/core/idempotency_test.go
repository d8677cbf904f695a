package core

import (
	"errors"
	"fmt"
	"testing"
)

type fakeDBChecker struct {
	known map[string]bool
	err   error
	calls int
}

func (f *fakeDBChecker) IsDuplicate(eventID string) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.known[eventID], nil
}

func TestIdempotencyLRUHotPath(t *testing.T) {
	db := &fakeDBChecker{known: map[string]bool{}}
	ic := NewIdempotencyChecker(16, db)

	if ic.IsDuplicate("Mint", "0xaa-1") {
		t.Error("unseen id reported duplicate")
	}
	ic.MarkProcessed("0xaa-1")

	db.calls = 0
	if !ic.IsDuplicate("Mint", "0xaa-1") {
		t.Error("processed id not reported duplicate")
	}
	if db.calls != 0 {
		t.Errorf("hot path hit the DB %d times", db.calls)
	}

	lru, pg := ic.GetMetrics().GetDuplicates("Mint")
	if lru != 1 || pg != 0 {
		t.Errorf("duplicates = (lru %d, pg %d), want (1, 0)", lru, pg)
	}
}

func TestIdempotencyColdPathCachesResult(t *testing.T) {
	db := &fakeDBChecker{known: map[string]bool{"0xbb-2": true}}
	ic := NewIdempotencyChecker(16, db)

	if !ic.IsDuplicate("Borrow", "0xbb-2") {
		t.Fatal("persisted id not reported duplicate")
	}
	if db.calls != 1 {
		t.Fatalf("db calls = %d, want 1", db.calls)
	}

	// Second lookup is served from the LRU.
	if !ic.IsDuplicate("Borrow", "0xbb-2") {
		t.Fatal("cached id not reported duplicate")
	}
	if db.calls != 1 {
		t.Errorf("db calls = %d after cached lookup, want 1", db.calls)
	}
}

func TestIdempotencyDBErrorAssumesNotDuplicate(t *testing.T) {
	db := &fakeDBChecker{err: errors.New("connection refused")}
	ic := NewIdempotencyChecker(16, db)

	if ic.IsDuplicate("Mint", "0xcc-3") {
		t.Error("DB error must not block processing")
	}
	if got := ic.GetMetrics().GetTier2Errors(); got != 1 {
		t.Errorf("tier2 errors = %d, want 1", got)
	}
}

func TestIdempotencyNilDBChecker(t *testing.T) {
	ic := NewIdempotencyChecker(16, nil)
	if ic.IsDuplicate("Mint", "0xdd-4") {
		t.Error("unseen id reported duplicate without a DB tier")
	}
	ic.MarkProcessed("0xdd-4")
	if !ic.IsDuplicate("Mint", "0xdd-4") {
		t.Error("processed id not reported duplicate")
	}
}

func TestLRUEviction(t *testing.T) {
	lru := NewIdempotencyLRU(3)
	for i := 0; i < 3; i++ {
		lru.Add(fmt.Sprintf("id-%d", i))
	}
	if lru.Size() != 3 {
		t.Fatalf("size = %d, want 3", lru.Size())
	}

	// Touch id-0 so id-1 becomes the eviction candidate.
	if !lru.Contains("id-0") {
		t.Fatal("id-0 missing")
	}
	lru.Add("id-3")

	if lru.Size() != 3 {
		t.Errorf("size = %d after eviction, want 3", lru.Size())
	}
	if lru.Contains("id-1") {
		t.Error("least-recently-used entry survived eviction")
	}
	if !lru.Contains("id-0") || !lru.Contains("id-3") {
		t.Error("recently used entries evicted")
	}
	if lru.Evictions() != 1 {
		t.Errorf("evictions = %d, want 1", lru.Evictions())
	}
}

func TestLRUWarmFromKeys(t *testing.T) {
	lru := NewIdempotencyLRU(4)
	lru.Add("id-a")
	lru.WarmFromKeys([]string{"id-a", "id-b", "id-c"})

	if lru.Size() != 3 {
		t.Errorf("size = %d, want 3 (duplicate key re-added)", lru.Size())
	}
	for _, k := range []string{"id-a", "id-b", "id-c"} {
		if !lru.Contains(k) {
			t.Errorf("%s missing after warm", k)
		}
	}
}
