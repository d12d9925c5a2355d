package client

import (
	"fmt"

	"organizer/domain"
)

// State is a working copy of items and folders. It is not safe for concurrent
// use; Engine serializes access.
type State struct {
	items   []domain.Item
	folders []domain.Folder
}

// NewState builds a working copy from an authoritative snapshot.
func NewState(snap domain.Snapshot) *State {
	s := &State{
		items:   append([]domain.Item(nil), snap.Items...),
		folders: append([]domain.Folder(nil), snap.Folders...),
	}
	s.sort()
	return s
}

// Snapshot returns a copy of the working copy.
func (s *State) Snapshot() domain.Snapshot {
	return domain.Snapshot{
		Items:   append([]domain.Item{}, s.items...),
		Folders: append([]domain.Folder{}, s.folders...),
	}
}

// RootItems returns the top-level items sorted by order.
func (s *State) RootItems() []domain.Item { return domain.ItemsIn(s.items, domain.Root) }

// FolderItems returns the items of a folder sorted by order.
func (s *State) FolderItems(folderID string) []domain.Item {
	return domain.ItemsIn(s.items, domain.InFolder(folderID))
}

// Folders returns the folders sorted by order.
func (s *State) Folders() []domain.Folder { return domain.SortedFolders(s.folders) }

func (s *State) Item(id string) (domain.Item, bool) {
	if i := s.itemIndex(id); i >= 0 {
		return s.items[i], true
	}
	return domain.Item{}, false
}

func (s *State) Folder(id string) (domain.Folder, bool) {
	if i := s.folderIndex(id); i >= 0 {
		return s.folders[i], true
	}
	return domain.Folder{}, false
}

// Apply merges a broadcast into the working copy. It is idempotent for every
// event kind, and references to unknown ids are ignored.
func (s *State) Apply(ev domain.Event) error {
	switch ev.Kind {
	case domain.ItemCreated, domain.ItemUpdated:
		it, err := ev.Item()
		if err != nil {
			return err
		}
		if ev.Kind == domain.ItemCreated {
			s.addItem(it)
		} else {
			s.replaceItem(it)
		}
	case domain.FolderCreated, domain.FolderUpdated:
		f, err := ev.Folder()
		if err != nil {
			return err
		}
		if ev.Kind == domain.FolderCreated {
			s.addFolder(f)
		} else {
			s.replaceFolder(f)
		}
	case domain.ItemDeleted:
		id, err := ev.DeletedID()
		if err != nil {
			return err
		}
		s.removeItem(id)
	case domain.FolderDeleted:
		id, err := ev.DeletedID()
		if err != nil {
			return err
		}
		s.removeFolder(id)
	case domain.Reordered:
		b, err := ev.Batch()
		if err != nil {
			return err
		}
		s.applyBatch(b)
	default:
		return fmt.Errorf("unknown event kind %q", ev.Kind)
	}
	return nil
}

func (s *State) addItem(it domain.Item) {
	if s.itemIndex(it.ID) >= 0 {
		return
	}
	s.items = append(s.items, it)
	s.sort()
}

func (s *State) replaceItem(it domain.Item) {
	if i := s.itemIndex(it.ID); i >= 0 {
		s.items[i] = it
		s.sort()
	}
}

// settleItem swaps a locally created placeholder for the server record. If the
// record already arrived through a broadcast the placeholder is dropped.
func (s *State) settleItem(tempID string, it domain.Item) {
	if s.itemIndex(it.ID) >= 0 {
		s.removeItem(tempID)
		return
	}
	if i := s.itemIndex(tempID); i >= 0 {
		s.items[i] = it
		s.sort()
		return
	}
	s.addItem(it)
}

func (s *State) removeItem(id string) {
	if i := s.itemIndex(id); i >= 0 {
		s.items = domain.Remove(s.items, i)
	}
}

func (s *State) addFolder(f domain.Folder) {
	if s.folderIndex(f.ID) >= 0 {
		return
	}
	s.folders = append(s.folders, f)
	s.sort()
}

func (s *State) replaceFolder(f domain.Folder) {
	if i := s.folderIndex(f.ID); i >= 0 {
		s.folders[i] = f
		s.sort()
	}
}

func (s *State) settleFolder(tempID string, f domain.Folder) {
	if s.folderIndex(f.ID) >= 0 {
		s.dropFolder(tempID)
		return
	}
	if i := s.folderIndex(tempID); i >= 0 {
		s.folders[i] = f
		s.sort()
		return
	}
	s.addFolder(f)
}

// removeFolder deletes a folder together with every item it contains.
func (s *State) removeFolder(id string) {
	s.dropFolder(id)
	c := domain.InFolder(id)
	kept := s.items[:0]
	for _, it := range s.items {
		if it.Container != c {
			kept = append(kept, it)
		}
	}
	s.items = kept
}

func (s *State) dropFolder(id string) {
	if i := s.folderIndex(id); i >= 0 {
		s.folders = domain.Remove(s.folders, i)
	}
}

func (s *State) applyBatch(b domain.ReorderBatch) {
	domain.ApplyItemPlacements(s.items, b.Items)
	domain.ApplyFolderPlacements(s.folders, b.Folders)
	s.sort()
}

func (s *State) sort() {
	domain.SortItems(s.items)
	s.folders = domain.SortedFolders(s.folders)
}

func (s *State) itemIndex(id string) int {
	for i, it := range s.items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func (s *State) folderIndex(id string) int {
	for i, f := range s.folders {
		if f.ID == id {
			return i
		}
	}
	return -1
}
