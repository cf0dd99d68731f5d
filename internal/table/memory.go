package table

import (
	"context"
	"sort"
	"sync"
)

// MemoryBackend keeps the table in process memory. Index queries are
// answered by filtering, so index entries can never drift from the records.
type MemoryBackend struct {
	mu      sync.RWMutex
	items   map[Key]Item
	indexes map[string]Index
}

func NewMemoryBackend(indexes ...Index) *MemoryBackend {
	return &MemoryBackend{
		items:   make(map[Key]Item),
		indexes: indexByName(indexes),
	}
}

func (m *MemoryBackend) Get(ctx context.Context, key Key) (Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	it, ok := m.items[key]
	if !ok {
		return nil, ErrItemNotFound
	}
	return it.Clone(), nil
}

func (m *MemoryBackend) Put(ctx context.Context, item Item, cond Condition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !item.valid() {
		return ErrInvalidItem
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := item.Key()
	_, exists := m.items[key]
	if err := cond.check(exists); err != nil {
		return err
	}
	m.items[key] = item.Clone()
	return nil
}

func (m *MemoryBackend) Update(ctx context.Context, key Key, set Item, remove []string) (Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.items[key]
	if !ok {
		return nil, ErrItemNotFound
	}
	next := mergeItem(old, set, remove)
	m.items[key] = next
	return next.Clone(), nil
}

func (m *MemoryBackend) Delete(ctx context.Context, key Key) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.items[key]
	delete(m.items, key)
	return ok, nil
}

func (m *MemoryBackend) Query(ctx context.Context, index string, hashValue string, opts QueryOptions) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ix, ok := m.indexes[index]
	if !ok {
		return nil, ErrUnknownIndex
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Item
	for _, it := range m.items {
		if hash, _, ok := ix.entry(it); ok && hash == hashValue {
			out = append(out, it.Clone())
		}
	}
	return sortForIndex(out, ix, opts), nil
}

func (m *MemoryBackend) Scan(ctx context.Context) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Item, 0, len(m.items))
	for _, it := range m.items {
		out = append(out, it.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return lessKey("", out[i].Key(), "", out[j].Key())
	})
	return out, nil
}

func (m *MemoryBackend) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *MemoryBackend) Close() error {
	return nil
}
