package client

import (
	"strings"

	"organizer/domain"
)

// Droppable ids used by the views. Item lists inside a folder are addressed as
// "folder-<id>".
const (
	RootDroppable    = "root"
	FoldersDroppable = "folders"
	folderPrefix     = "folder-"
)

// FolderDroppable returns the droppable id of a folder's item list.
func FolderDroppable(folderID string) string { return folderPrefix + folderID }

// ContainerFor resolves a droppable id to a container. Anything that is not a
// folder list resolves to the root list.
func ContainerFor(droppableID string) domain.Container {
	if id, ok := strings.CutPrefix(droppableID, folderPrefix); ok && id != "" {
		return domain.InFolder(id)
	}
	return domain.Root
}

// DragKind says what was dragged.
type DragKind int

const (
	DragItem DragKind = iota
	DragFolder
)

func (k DragKind) String() string {
	if k == DragFolder {
		return "folder"
	}
	return "item"
}

// Location is a position inside a droppable list.
type Location struct {
	DroppableID string
	Index       int
}

// DragEnd is a finished drag gesture. Destination is nil when the entity was
// dropped outside any list.
type DragEnd struct {
	Source      Location
	Destination *Location
	DraggableID string
	Kind        DragKind
}

// Move is a normalized move instruction. It is either an ItemMove or a
// FolderMove.
type Move interface {
	// Batch is the full reassignment to apply locally and send to the server.
	Batch() domain.ReorderBatch
	isMove()
}

// ItemMove relocates an item. Placements renumber every affected container.
type ItemMove struct {
	ID         string
	From, To   domain.Container
	Placements []domain.ItemPlacement
}

func (m ItemMove) Batch() domain.ReorderBatch { return domain.ReorderBatch{Items: m.Placements} }
func (ItemMove) isMove()                      {}

// FolderMove reorders the top-level folder list.
type FolderMove struct {
	ID         string
	Placements []domain.FolderPlacement
}

func (m FolderMove) Batch() domain.ReorderBatch { return domain.ReorderBatch{Folders: m.Placements} }
func (FolderMove) isMove()                      {}

// Translate converts a drag gesture against the current working copy into a
// move. It reports false for a no-op: no destination, a drop at the starting
// position, or a dragged entity that no longer exists.
func Translate(ev DragEnd, items []domain.Item, folders []domain.Folder) (Move, bool) {
	if ev.Destination == nil || *ev.Destination == ev.Source {
		return nil, false
	}
	to := ev.Destination.Index

	if ev.Kind == DragFolder {
		id := strings.TrimPrefix(ev.DraggableID, folderPrefix)
		placements, ok := domain.MoveFolder(folders, id, to)
		if !ok {
			return nil, false
		}
		return FolderMove{ID: id, Placements: placements}, true
	}

	var from domain.Container
	found := false
	for _, it := range items {
		if it.ID == ev.DraggableID {
			from, found = it.Container, true
			break
		}
	}
	if !found {
		return nil, false
	}
	dst := ContainerFor(ev.Destination.DroppableID)
	if !dst.IsRoot() && !hasFolder(folders, dst.FolderID()) {
		return nil, false
	}
	placements, _ := domain.MoveItem(items, ev.DraggableID, dst, to)
	return ItemMove{ID: ev.DraggableID, From: from, To: dst, Placements: placements}, true
}

func hasFolder(folders []domain.Folder, id string) bool {
	for _, f := range folders {
		if f.ID == id {
			return true
		}
	}
	return false
}
