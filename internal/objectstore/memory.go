package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-memory ObjectStore for tests. It pages listings the
// way a real backend would so pagination bugs surface in unit tests.
type MemoryStore struct {
	mu       sync.RWMutex
	objects  map[string][]byte
	pageSize int

	// FailDeletes forces DeleteBatch to error, for exercising retry paths.
	FailDeletes bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte), pageSize: 2}
}

func (s *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[key]
	return ok, nil
}

func (s *MemoryStore) List(_ context.Context, prefix, token string) (ListPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) && k > token {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var page ListPage
	if len(keys) > s.pageSize {
		page.Keys = keys[:s.pageSize]
		page.ContinuationToken = keys[s.pageSize-1]
	} else {
		page.Keys = keys
	}
	return page, nil
}

func (s *MemoryStore) DeleteBatch(_ context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailDeletes {
		return fmt.Errorf("simulated delete failure")
	}
	for _, k := range keys {
		delete(s.objects, k)
	}
	return nil
}

func (s *MemoryStore) Put(_ context.Context, key string, body io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Len reports how many objects the store holds.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// Keys returns all stored keys, sorted.
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
