package store_test

import (
	"testing"

	"LendLedger/internal/entity"
	"LendLedger/internal/store"
)

func TestMemoryStore_GetAbsent(t *testing.T) {
	s := store.NewMemoryStore()
	if _, ok := s.Get(entity.KindMarket, "0xabc"); ok {
		t.Error("expected absent entity")
	}
}

func TestMemoryStore_PutGet(t *testing.T) {
	s := store.NewMemoryStore()
	m := &entity.Market{ID: "0xabc", Symbol: "jDAI"}
	s.Put(m)

	got, ok := s.Get(entity.KindMarket, "0xabc")
	if !ok {
		t.Fatal("expected market to be stored")
	}
	if got.(*entity.Market).Symbol != "jDAI" {
		t.Errorf("got symbol %q", got.(*entity.Market).Symbol)
	}
}

func TestMemoryStore_KindsDoNotCollide(t *testing.T) {
	s := store.NewMemoryStore()
	s.Put(&entity.Market{ID: "x"})
	s.Put(&entity.Account{ID: "x"})

	if s.Len() != 2 {
		t.Errorf("expected 2 entities, got %d", s.Len())
	}
}

func TestMemoryStore_DrainDirty(t *testing.T) {
	s := store.NewMemoryStore()
	s.Put(&entity.Market{ID: "0xb"})
	s.Put(&entity.Account{ID: "0xa"})
	s.Put(&entity.Market{ID: "0xb", Symbol: "updated"}) // same key, one row

	dirty := s.DrainDirty()
	if len(dirty) != 2 {
		t.Fatalf("expected 2 dirty entities, got %d", len(dirty))
	}
	// Deterministic order: account kind sorts before market kind.
	if dirty[0].Kind() != entity.KindAccount || dirty[1].Kind() != entity.KindMarket {
		t.Errorf("unexpected order: %s, %s", dirty[0].Kind(), dirty[1].Kind())
	}
	if dirty[1].(*entity.Market).Symbol != "updated" {
		t.Error("dirty set should hold the latest write")
	}

	if got := s.DrainDirty(); got != nil {
		t.Errorf("second drain should be empty, got %d", len(got))
	}
}
