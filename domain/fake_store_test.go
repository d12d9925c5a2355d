package domain

import (
	"context"
	"errors"
	"sync"
	"time"
)

type fakeStore struct {
	mu       sync.Mutex
	items    map[string]Item
	folders  map[string]Folder
	failIDs  map[string]error
	pingErr  error
	created  []Item
	placeOps int
}

func newFakeStore() *fakeStore {
	return &fakeStore{items: map[string]Item{}, folders: map[string]Folder{}, failIDs: map[string]error{}}
}

func (f *fakeStore) FindAll(ctx context.Context) (Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var snap Snapshot
	for _, it := range f.items {
		snap.Items = append(snap.Items, it)
	}
	for _, fo := range f.folders {
		snap.Folders = append(snap.Folders, fo)
	}
	return snap, nil
}

func (f *fakeStore) FindByContainer(ctx context.Context, c Container) ([]Item, error) {
	snap, _ := f.FindAll(ctx)
	return ItemsIn(snap.Items, c), nil
}

func (f *fakeStore) GetFolder(ctx context.Context, id string) (Folder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fo, ok := f.folders[id]
	if !ok {
		return Folder{}, ErrNotFound
	}
	return fo, nil
}

func (f *fakeStore) CreateItem(ctx context.Context, it Item) (Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[it.ID] = it
	f.created = append(f.created, it)
	return it, nil
}

func (f *fakeStore) CreateFolder(ctx context.Context, fo Folder) (Folder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.folders[fo.ID] = fo
	return fo, nil
}

func (f *fakeStore) UpdateItemFields(ctx context.Context, id string, patch ItemPatch) (Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.items[id]
	if !ok {
		return Item{}, ErrNotFound
	}
	it = patch.Apply(it)
	f.items[id] = it
	return it, nil
}

func (f *fakeStore) UpdateFolderFields(ctx context.Context, id string, patch FolderPatch) (Folder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fo, ok := f.folders[id]
	if !ok {
		return Folder{}, ErrNotFound
	}
	fo = patch.Apply(fo)
	f.folders[id] = fo
	return fo, nil
}

func (f *fakeStore) DeleteItem(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, id)
	return nil
}

func (f *fakeStore) DeleteFolder(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.folders, id)
	return nil
}

func (f *fakeStore) DeleteByContainer(ctx context.Context, c Container) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, it := range f.items {
		if it.Container == c {
			delete(f.items, id)
		}
	}
	return nil
}

func (f *fakeStore) CountByContainer(ctx context.Context, c Container) (int, error) {
	items, _ := f.FindByContainer(ctx, c)
	return len(items), nil
}

func (f *fakeStore) CountFolders(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.folders), nil
}

func (f *fakeStore) PlaceItem(ctx context.Context, p ItemPlacement, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placeOps++
	if err := f.failIDs[p.ID]; err != nil {
		return err
	}
	it, ok := f.items[p.ID]
	if !ok {
		return ErrNotFound
	}
	it.Order = p.Order
	it.Container = p.Container
	it.UpdatedAt = at
	f.items[p.ID] = it
	return nil
}

func (f *fakeStore) PlaceFolder(ctx context.Context, p FolderPlacement, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placeOps++
	if err := f.failIDs[p.ID]; err != nil {
		return err
	}
	fo, ok := f.folders[p.ID]
	if !ok {
		return ErrNotFound
	}
	fo.Order = p.Order
	fo.UpdatedAt = at
	f.folders[p.ID] = fo
	return nil
}

func (f *fakeStore) Ping(ctx context.Context) error { return f.pingErr }

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingPublisher) Publish(ctx context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingPublisher) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

var errUnreachable = errors.New("store unreachable")

func (f *fakeStore) put(items []Item, folders []Folder) {
	for _, it := range items {
		f.items[it.ID] = it
	}
	for _, fo := range folders {
		f.folders[fo.ID] = fo
	}
}
