package domain

import (
	"context"
	"time"
)

// Store is the durable entity store holding items and folders. It owns the
// uniqueness of identifiers. Implementations must return ErrNotFound from
// field updates and placements on unknown ids, and treat deletes of unknown
// ids as successful no-ops.
type Store interface {
	FindAll(ctx context.Context) (Snapshot, error)
	FindByContainer(ctx context.Context, c Container) ([]Item, error)
	GetFolder(ctx context.Context, id string) (Folder, error)

	CreateItem(ctx context.Context, it Item) (Item, error)
	CreateFolder(ctx context.Context, f Folder) (Folder, error)

	UpdateItemFields(ctx context.Context, id string, patch ItemPatch) (Item, error)
	UpdateFolderFields(ctx context.Context, id string, patch FolderPatch) (Folder, error)

	DeleteItem(ctx context.Context, id string) error
	DeleteFolder(ctx context.Context, id string) error
	DeleteByContainer(ctx context.Context, c Container) error

	CountByContainer(ctx context.Context, c Container) (int, error)
	CountFolders(ctx context.Context) (int, error)

	PlacementStore

	Ping(ctx context.Context) error
}

// PlacementStore is the narrow write surface used by the reorder engine.
type PlacementStore interface {
	PlaceItem(ctx context.Context, p ItemPlacement, at time.Time) error
	PlaceFolder(ctx context.Context, p FolderPlacement, at time.Time) error
}

// Publisher fans authoritative change events out to every listener.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}
