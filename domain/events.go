package domain

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// EventKind names a broadcast event. The values double as SSE event names.
type EventKind string

const (
	ItemCreated   EventKind = "item:create"
	ItemUpdated   EventKind = "item:update"
	ItemDeleted   EventKind = "item:delete"
	FolderCreated EventKind = "folder:create"
	FolderUpdated EventKind = "folder:update"
	FolderDeleted EventKind = "folder:delete"
	Reordered     EventKind = "reorder"
)

// EventKinds lists every kind carried by the broadcast channel.
var EventKinds = []EventKind{ItemCreated, ItemUpdated, ItemDeleted, FolderCreated, FolderUpdated, FolderDeleted, Reordered}

func (k EventKind) Valid() bool {
	for _, known := range EventKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Event is an authoritative change already committed to the store. Data holds
// the post-write record, the deleted id, or the accepted reorder batch.
type Event struct {
	Kind EventKind              `json:"kind"`
	Data sonic.NoCopyRawMessage `json:"data"`
}

// NewEvent encodes payload into an event of the given kind.
func NewEvent(kind EventKind, payload any) (Event, error) {
	data, err := sonic.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return Event{Kind: kind, Data: data}, nil
}

func (e Event) Item() (Item, error) {
	var it Item
	err := e.decode(&it, ItemCreated, ItemUpdated)
	return it, err
}

func (e Event) Folder() (Folder, error) {
	var f Folder
	err := e.decode(&f, FolderCreated, FolderUpdated)
	return f, err
}

// DeletedID returns the id carried by a delete event.
func (e Event) DeletedID() (string, error) {
	var id string
	err := e.decode(&id, ItemDeleted, FolderDeleted)
	return id, err
}

func (e Event) Batch() (ReorderBatch, error) {
	var b ReorderBatch
	err := e.decode(&b, Reordered)
	return b, err
}

func (e Event) decode(v any, kinds ...EventKind) error {
	ok := false
	for _, k := range kinds {
		if e.Kind == k {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("event %s does not carry %T", e.Kind, v)
	}
	if err := sonic.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Kind, err)
	}
	return nil
}
