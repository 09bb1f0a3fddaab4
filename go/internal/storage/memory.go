package storage

import (
	"context"
	"sync"
)

// MemoryStore keeps values in process memory. Every MemoryStore handle created
// with Share observes the same data, which makes it a stand-in for several
// tabs in tests.
type MemoryStore struct {
	data *memoryData
}

type memoryData struct {
	mu       sync.Mutex
	values   map[string]string
	watchers map[string]map[chan struct{}]struct{}
	closed   bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: &memoryData{
		values:   make(map[string]string),
		watchers: make(map[string]map[chan struct{}]struct{}),
	}}
}

// Share returns another handle onto the same data.
func (m *MemoryStore) Share() *MemoryStore {
	return &MemoryStore{data: m.data}
}

func (m *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	d := m.data
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return "", false, ErrClosed
	}
	v, ok := d.values[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(ctx context.Context, key, value string) error {
	d := m.data
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.values[key] = value
	d.notifyLocked(key)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	d := m.data
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if _, ok := d.values[key]; ok {
		delete(d.values, key)
		d.notifyLocked(key)
	}
	return nil
}

func (m *MemoryStore) Watch(ctx context.Context, key string, onChange func()) error {
	d := m.data
	ch := make(chan struct{}, 1)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	if d.watchers[key] == nil {
		d.watchers[key] = make(map[chan struct{}]struct{})
	}
	d.watchers[key][ch] = struct{}{}
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		delete(d.watchers[key], ch)
		d.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ch:
			onChange()
		}
	}
}

func (m *MemoryStore) Close() error {
	d := m.data
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *memoryData) notifyLocked(key string) {
	for ch := range d.watchers[key] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
