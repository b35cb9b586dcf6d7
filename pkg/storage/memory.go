package storage

import "sync"

// Memory is an in-memory KV for tests and development runs.
type Memory struct {
	mu sync.RWMutex
	m  map[string]string

	// FailGet/FailSet/FailDelete inject backend failures in tests.
	FailGet    error
	FailSet    error
	FailDelete error
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{m: make(map[string]string)}
}

func (s *Memory) Get(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.FailGet != nil {
		return "", &StorageError{Op: "get", Key: key, Err: s.FailGet}
	}
	v, ok := s.m[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *Memory) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailSet != nil {
		return &StorageError{Op: "set", Key: key, Err: s.FailSet}
	}
	s.m[key] = value
	return nil
}

func (s *Memory) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailDelete != nil {
		return &StorageError{Op: "delete", Key: key, Err: s.FailDelete}
	}
	delete(s.m, key)
	return nil
}

// Len reports the number of stored keys.
func (s *Memory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
