package store

import (
	"sort"

	"LendLedger/internal/entity"
)

// Store is the entity store the host provides: atomic load/save keyed by
// (kind, id). Saves performed while handling one event are visible before
// the next event is handled; no cross-entity transactions exist beyond that.
type Store interface {
	Get(kind, id string) (entity.Entity, bool)
	Put(e entity.Entity)
}

// MemoryStore is the in-process implementation backing the single-threaded
// engine. It additionally tracks which entities each event touched so the
// persistence pipeline can upsert exactly those rows.
// Not thread-safe — only accessed from the single-threaded core.
type MemoryStore struct {
	entities map[string]entity.Entity
	dirty    map[string]entity.Entity
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entities: make(map[string]entity.Entity),
		dirty:    make(map[string]entity.Entity),
	}
}

func storeKey(kind, id string) string {
	return kind + "|" + id
}

func (s *MemoryStore) Get(kind, id string) (entity.Entity, bool) {
	e, ok := s.entities[storeKey(kind, id)]
	return e, ok
}

func (s *MemoryStore) Put(e entity.Entity) {
	key := storeKey(e.Kind(), e.EntityID())
	s.entities[key] = e
	s.dirty[key] = e
}

// DrainDirty returns the entities written since the last drain, ordered
// deterministically by (kind, id), and resets the dirty set.
func (s *MemoryStore) DrainDirty() []entity.Entity {
	if len(s.dirty) == 0 {
		return nil
	}
	keys := make([]string, 0, len(s.dirty))
	for k := range s.dirty {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]entity.Entity, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.dirty[k])
	}
	s.dirty = make(map[string]entity.Entity)
	return out
}

// Len reports the number of stored entities.
func (s *MemoryStore) Len() int {
	return len(s.entities)
}
