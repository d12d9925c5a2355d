package api

import (
	"context"
	"time"

	"organizer/domain"
	"organizer/subscription"
)

// Organizer is the service surface the HTTP layer drives.
type Organizer interface {
	Snapshot(ctx context.Context) (domain.Snapshot, error)
	CreateItem(ctx context.Context, in domain.NewItem) (domain.Item, error)
	CreateFolder(ctx context.Context, in domain.NewFolder) (domain.Folder, error)
	UpdateItem(ctx context.Context, id string, patch domain.ItemPatch) (domain.Item, error)
	UpdateFolder(ctx context.Context, id string, patch domain.FolderPatch) (domain.Folder, error)
	DeleteItem(ctx context.Context, id string) error
	DeleteFolder(ctx context.Context, id string) error
	Reorder(ctx context.Context, b domain.ReorderBatch) error
	Ping(ctx context.Context) error
}

// Subscriptions hands out live event feeds for the stream endpoint.
type Subscriptions interface {
	Subscribe() *subscription.Subscriber
	Unsubscribe(s *subscription.Subscriber)
}

// Options tunes request handling. Zero values fall back to defaults.
type Options struct {
	BodyLimit    int64
	StoreTimeout time.Duration
	KeepAlive    time.Duration
}

const (
	defaultBodyLimit    = 64 * 1024 // 64 KiB
	defaultStoreTimeout = 10 * time.Second
	defaultKeepAlive    = 25 * time.Second
)

func (o Options) withDefaults() Options {
	if o.BodyLimit <= 0 {
		o.BodyLimit = defaultBodyLimit
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = defaultStoreTimeout
	}
	if o.KeepAlive <= 0 {
		o.KeepAlive = defaultKeepAlive
	}
	return o
}

// errorResponse is the body of every non-2xx JSON response.
type errorResponse struct {
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}
