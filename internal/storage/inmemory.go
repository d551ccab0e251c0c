package storage

import (
	"context"
	"sync"
)

// InMemoryStore is an in-process object store for local/dev runs.
type InMemoryStore struct {
	mu      sync.RWMutex
	prefix  string
	objects map[string][]byte
}

func NewInMemoryStore(prefix string) *InMemoryStore {
	return &InMemoryStore{prefix: prefix, objects: make(map[string][]byte)}
}

func (s *InMemoryStore) Upload(_ context.Context, data []byte, name string, kind Kind) (Object, error) {
	if len(data) == 0 {
		return Object{}, ErrEmptyData
	}
	key := ObjectKey(s.prefix, kind, name)
	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = buf
	return Object{Key: key, URL: "memory://" + key}, nil
}

func (s *InMemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *InMemoryStore) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[key]
	return data, ok
}

func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
