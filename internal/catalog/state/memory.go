package state

import (
	"context"
	"sync"

	"catalogsync-backend/internal/catalog"
)

// Memory is a Store that lives as long as the process, used for dry runs
// and tests.
type Memory struct {
	mutex  sync.RWMutex
	states map[catalog.ProductKey]catalog.StateRecord
	images map[string]catalog.ImageCacheEntry
}

func NewMemory() *Memory {
	return &Memory{
		states: map[catalog.ProductKey]catalog.StateRecord{},
		images: map[string]catalog.ImageCacheEntry{},
	}
}

func (m *Memory) GetState(_ context.Context, key catalog.ProductKey) (*catalog.StateRecord, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	record, ok := m.states[key]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

func (m *Memory) PutState(_ context.Context, record catalog.StateRecord) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.states[record.Key] = record
	return nil
}

func (m *Memory) GetImageCache(_ context.Context, sha256 string) (*catalog.ImageCacheEntry, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	entry, ok := m.images[sha256]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (m *Memory) PutImageCache(_ context.Context, entry catalog.ImageCacheEntry) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.images[entry.SHA256] = entry
	return nil
}

func (m *Memory) Close() error {
	return nil
}

// Len returns the number of product and image records held.
func (m *Memory) Len() (states int, images int) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.states), len(m.images)
}
