package state

import (
	"context"
	"sync"

	"github.com/goliatone/go-stored/tree"
)

// MemoryStore is a minimal in-memory Store implementation intended for tests
// and examples. It uses Ref.Identifier() as its key and clones trees on the
// way in and out.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]memoryRecord
}

type memoryRecord struct {
	data map[string]any
	meta Meta
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]memoryRecord{}}
}

func (s *MemoryStore) Load(_ context.Context, ref Ref) (map[string]any, Meta, bool, error) {
	key, err := ref.Identifier()
	if err != nil {
		return nil, Meta{}, false, err
	}

	s.mu.RLock()
	record, ok := s.records[key]
	s.mu.RUnlock()
	if !ok {
		return nil, Meta{}, false, nil
	}
	return tree.Clone(record.data), cloneMeta(record.meta), true, nil
}

func (s *MemoryStore) Save(_ context.Context, ref Ref, data map[string]any, meta Meta) (Meta, error) {
	key, err := ref.Identifier()
	if err != nil {
		return Meta{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.records[key]; ok {
		if err := CheckETag(meta.ETag, current.meta.ETag); err != nil {
			return Meta{}, err
		}
	}
	saved, err := stamp(meta, data)
	if err != nil {
		return Meta{}, err
	}
	s.records[key] = memoryRecord{data: tree.Clone(data), meta: saved}
	return cloneMeta(saved), nil
}
