package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"organizer/domain"
)

// Memory is an in-process entity store. It backs local development and tests
// and satisfies the same contract as the durable backends.
type Memory struct {
	mu      sync.RWMutex
	items   map[string]domain.Item
	folders map[string]domain.Folder
}

func NewMemory() *Memory {
	return &Memory{
		items:   make(map[string]domain.Item),
		folders: make(map[string]domain.Folder),
	}
}

func (m *Memory) FindAll(ctx context.Context) (domain.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := domain.Snapshot{
		Items:   make([]domain.Item, 0, len(m.items)),
		Folders: make([]domain.Folder, 0, len(m.folders)),
	}
	for _, it := range m.items {
		snap.Items = append(snap.Items, it)
	}
	for _, f := range m.folders {
		snap.Folders = append(snap.Folders, f)
	}
	return snap, nil
}

func (m *Memory) FindByContainer(ctx context.Context, c domain.Container) ([]domain.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Item, 0)
	for _, it := range m.items {
		if it.Container == c {
			out = append(out, it)
		}
	}
	return domain.ItemsIn(out, c), nil
}

func (m *Memory) GetFolder(ctx context.Context, id string) (domain.Folder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.folders[id]
	if !ok {
		return domain.Folder{}, domain.ErrNotFound
	}
	return f, nil
}

func (m *Memory) CreateItem(ctx context.Context, it domain.Item) (domain.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[it.ID] = it
	return it, nil
}

func (m *Memory) CreateFolder(ctx context.Context, f domain.Folder) (domain.Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.folders[f.ID] = f
	return f, nil
}

func (m *Memory) UpdateItemFields(ctx context.Context, id string, patch domain.ItemPatch) (domain.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return domain.Item{}, domain.ErrNotFound
	}
	it = patch.Apply(it)
	m.items[id] = it
	return it, nil
}

func (m *Memory) UpdateFolderFields(ctx context.Context, id string, patch domain.FolderPatch) (domain.Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.folders[id]
	if !ok {
		return domain.Folder{}, domain.ErrNotFound
	}
	f = patch.Apply(f)
	m.folders[id] = f
	return f, nil
}

func (m *Memory) DeleteItem(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	return nil
}

func (m *Memory) DeleteFolder(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.folders, id)
	return nil
}

func (m *Memory) DeleteByContainer(ctx context.Context, c domain.Container) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, it := range m.items {
		if it.Container == c {
			delete(m.items, id)
		}
	}
	return nil
}

func (m *Memory) CountByContainer(ctx context.Context, c domain.Container) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, it := range m.items {
		if it.Container == c {
			n++
		}
	}
	return n, nil
}

func (m *Memory) CountFolders(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.folders), nil
}

func (m *Memory) PlaceItem(ctx context.Context, p domain.ItemPlacement, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[p.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if !p.Container.IsRoot() {
		if _, ok := m.folders[p.Container.FolderID()]; !ok {
			return fmt.Errorf("folder %s: %w", p.Container.FolderID(), domain.ErrNotFound)
		}
	}
	it.Order = p.Order
	it.Container = p.Container
	it.UpdatedAt = at
	m.items[p.ID] = it
	return nil
}

func (m *Memory) PlaceFolder(ctx context.Context, p domain.FolderPlacement, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.folders[p.ID]
	if !ok {
		return domain.ErrNotFound
	}
	f.Order = p.Order
	f.UpdatedAt = at
	m.folders[p.ID] = f
	return nil
}

func (m *Memory) Ping(ctx context.Context) error { return ctx.Err() }

var _ domain.Store = (*Memory)(nil)
