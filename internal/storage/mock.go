package storage

import (
	"context"
	"os"
	"sync"
	"time"
)

// MockStore is an in-memory ObjectStore for tests.
type MockStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string

	FetchErr  error
	StoreErr  error
	DeleteErr error

	// FetchDelay makes FetchToFile wait before serving, honoring ctx
	// cancellation, so tests can observe in-flight downloads.
	FetchDelay time.Duration

	// FailStoreKeys lists keys whose upload should fail.
	FailStoreKeys map[string]bool
}

var _ ObjectStore = (*MockStore)(nil)

func NewMockStore() *MockStore {
	return &MockStore{
		objects:       make(map[string][]byte),
		types:         make(map[string]string),
		FailStoreKeys: make(map[string]bool),
	}
}

func (s *MockStore) Put(key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
}

func (s *MockStore) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	return data, ok
}

func (s *MockStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	return keys
}

func (s *MockStore) FetchToFile(ctx context.Context, key, destPath string) (int64, error) {
	if s.FetchErr != nil {
		return 0, s.FetchErr
	}
	if s.FetchDelay > 0 {
		select {
		case <-time.After(s.FetchDelay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	s.mu.Lock()
	data, ok := s.objects[key]
	s.mu.Unlock()
	if !ok {
		return 0, ErrNotFound
	}
	if err := os.WriteFile(destPath, data, 0o644); err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

func (s *MockStore) StoreFromFile(ctx context.Context, localPath, key, contentType string) (int64, error) {
	if s.StoreErr != nil {
		return 0, s.StoreErr
	}
	s.mu.Lock()
	fail := s.FailStoreKeys[key]
	s.mu.Unlock()
	if fail {
		return 0, ErrAccessDenied
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.objects[key] = data
	s.types[key] = contentType
	s.mu.Unlock()
	return int64(len(data)), nil
}

func (s *MockStore) Delete(ctx context.Context, key string) error {
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	s.mu.Lock()
	delete(s.objects, key)
	delete(s.types, key)
	s.mu.Unlock()
	return nil
}

func (s *MockStore) HealthCheck(ctx context.Context) error {
	return nil
}
