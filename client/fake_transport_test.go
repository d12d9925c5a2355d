package client

import (
	"context"
	"fmt"
	"sync"

	"organizer/domain"
)

// fakeTransport records requests and answers them from an in-memory snapshot.
type fakeTransport struct {
	mu        sync.Mutex
	snap      domain.Snapshot
	snapshots int
	snapErr   error
	err       error
	notFound  bool
	reorders  []domain.ReorderBatch
	deleted   []string
	updates   []string
	nextID    int

	// entered receives a value when a mutating call starts; release, when
	// set, holds the call until it is closed.
	entered    chan struct{}
	release    chan struct{}
	onSnapshot func()
}

func newFakeTransport(snap domain.Snapshot) *fakeTransport {
	return &fakeTransport{snap: snap}
}

func (f *fakeTransport) enter() error {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.notFound {
		return fmt.Errorf("stale: %w", domain.ErrNotFound)
	}
	return f.err
}

func (f *fakeTransport) Snapshot(context.Context) (domain.Snapshot, error) {
	if f.onSnapshot != nil {
		f.onSnapshot()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots++
	if f.snapErr != nil {
		return domain.Snapshot{}, f.snapErr
	}
	return domain.Snapshot{
		Items:   append([]domain.Item(nil), f.snap.Items...),
		Folders: append([]domain.Folder(nil), f.snap.Folders...),
	}, nil
}

func (f *fakeTransport) setSnapshot(snap domain.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = snap
}

func (f *fakeTransport) snapshotCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshots
}

func (f *fakeTransport) CreateItem(_ context.Context, in domain.NewItem) (domain.Item, error) {
	if err := f.enter(); err != nil {
		return domain.Item{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	it := domain.Item{
		ID:        fmt.Sprintf("srv-%d", f.nextID),
		Title:     in.Title,
		Icon:      in.Icon,
		Container: in.Container,
		Order:     len(domain.ItemsIn(f.snap.Items, in.Container)),
	}
	f.snap.Items = append(f.snap.Items, it)
	return it, nil
}

func (f *fakeTransport) CreateFolder(_ context.Context, in domain.NewFolder) (domain.Folder, error) {
	if err := f.enter(); err != nil {
		return domain.Folder{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	fo := domain.Folder{ID: fmt.Sprintf("srv-%d", f.nextID), Name: in.Name, IsOpen: true, Order: len(f.snap.Folders)}
	f.snap.Folders = append(f.snap.Folders, fo)
	return fo, nil
}

func (f *fakeTransport) UpdateItem(_ context.Context, id string, patch domain.ItemPatch) (domain.Item, error) {
	if err := f.enter(); err != nil {
		return domain.Item{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, id)
	return patch.Apply(domain.Item{ID: id}), nil
}

func (f *fakeTransport) UpdateFolder(_ context.Context, id string, patch domain.FolderPatch) (domain.Folder, error) {
	if err := f.enter(); err != nil {
		return domain.Folder{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, id)
	return patch.Apply(domain.Folder{ID: id}), nil
}

func (f *fakeTransport) DeleteItem(_ context.Context, id string) error {
	if err := f.enter(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeTransport) DeleteFolder(_ context.Context, id string) error {
	if err := f.enter(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeTransport) Reorder(_ context.Context, b domain.ReorderBatch) error {
	f.mu.Lock()
	f.reorders = append(f.reorders, b)
	f.mu.Unlock()
	return f.enter()
}
