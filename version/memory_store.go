package version

import (
	"context"
	"sync"
	"sync/atomic"
)

// MemoryStore 单进程版本存储
type MemoryStore struct {
	m sync.Map
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) counter(typeID int64) *atomic.Int64 {
	v, _ := s.m.LoadOrStore(typeID, &atomic.Int64{})
	return v.(*atomic.Int64)
}

func (s *MemoryStore) Get(ctx context.Context, typeID int64) (int64, error) {
	return s.counter(typeID).Load(), nil
}

func (s *MemoryStore) Bump(ctx context.Context, typeID int64) (int64, error) {
	return s.counter(typeID).Add(1), nil
}

func (s *MemoryStore) Close() error {
	return nil
}
