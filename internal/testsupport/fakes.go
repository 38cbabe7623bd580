package testsupport

import (
	"context"
	"fmt"
	"io"
	"sync"

	"canditrack/internal/domain/model"
	"canditrack/internal/platform/storage"
)

// MemoryStore is an in-memory storage.ObjectStore.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	gets    int

	// GetErr, when set, is returned by every Get.
	GetErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: map[string][]byte{}}
}

func (m *MemoryStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("get object %s: %w", key, storage.ErrObjectNotFound)
	}
	return data, nil
}

func (m *MemoryStore) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// Object returns the stored bytes for key.
func (m *MemoryStore) Object(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	return data, ok
}

func (m *MemoryStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}

func (m *MemoryStore) Gets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gets
}

// RecordingNotifier remembers every published event.
type RecordingNotifier struct {
	mu     sync.Mutex
	events []model.QueueEvent
}

func (n *RecordingNotifier) Publish(_ context.Context, event model.QueueEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *RecordingNotifier) Events() []model.QueueEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]model.QueueEvent(nil), n.events...)
}
