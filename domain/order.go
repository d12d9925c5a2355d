package domain

import "sort"

// ItemPlacement assigns an item a position inside a container.
type ItemPlacement struct {
	ID        string    `json:"id"`
	Order     int       `json:"order"`
	Container Container `json:"container"`
}

// FolderPlacement assigns a folder a position in the top-level folder list.
type FolderPlacement struct {
	ID    string `json:"id"`
	Order int    `json:"order"`
}

// ReorderBatch is the unit accepted by the reorder engine and broadcast
// verbatim to every listener.
type ReorderBatch struct {
	Items   []ItemPlacement   `json:"items,omitempty"`
	Folders []FolderPlacement `json:"folders,omitempty"`
}

func (b ReorderBatch) Empty() bool { return len(b.Items) == 0 && len(b.Folders) == 0 }

func (b ReorderBatch) Validate() error {
	for _, p := range b.Items {
		if p.ID == "" {
			return &ValidationError{Field: "items.id", Reason: "is required"}
		}
	}
	for _, p := range b.Folders {
		if p.ID == "" {
			return &ValidationError{Field: "folders.id", Reason: "is required"}
		}
	}
	return nil
}

// ItemsIn returns the members of c sorted by order. Ties keep their relative
// input order.
func ItemsIn(items []Item, c Container) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if it.Container == c {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// SortedFolders returns a copy of folders sorted by order.
func SortedFolders(folders []Folder) []Folder {
	out := append([]Folder(nil), folders...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// SortItems sorts items in place by container, then order.
func SortItems(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Container != items[j].Container {
			return items[i].Container < items[j].Container
		}
		return items[i].Order < items[j].Order
	})
}

// Reinsert removes the element at from and inserts v at index to of the
// shortened list. Out of range destinations are clamped. The input is not
// modified.
func Reinsert[T any](list []T, from int, v T, to int) []T {
	out := Remove(list, from)
	if to < 0 {
		to = 0
	}
	if to > len(out) {
		to = len(out)
	}
	out = append(out, v)
	copy(out[to+1:], out[to:len(out)-1])
	out[to] = v
	return out
}

// Remove returns a copy of list without the element at index i.
func Remove[T any](list []T, i int) []T {
	out := make([]T, 0, len(list))
	for j, e := range list {
		if j != i {
			out = append(out, e)
		}
	}
	return out
}

// NumberItems assigns orders 0..n-1 to list, in list order, all in container c.
func NumberItems(list []Item, c Container) []ItemPlacement {
	out := make([]ItemPlacement, len(list))
	for i, it := range list {
		out[i] = ItemPlacement{ID: it.ID, Order: i, Container: c}
	}
	return out
}

// NumberFolders assigns orders 0..n-1 to list, in list order.
func NumberFolders(list []Folder) []FolderPlacement {
	out := make([]FolderPlacement, len(list))
	for i, f := range list {
		out[i] = FolderPlacement{ID: f.ID, Order: i}
	}
	return out
}

// MoveFolder computes the folder reassignment for dragging folderID to index
// to. It reports false when the folder is unknown.
func MoveFolder(folders []Folder, folderID string, to int) ([]FolderPlacement, bool) {
	sorted := SortedFolders(folders)
	from := indexOf(len(sorted), func(i int) bool { return sorted[i].ID == folderID })
	if from < 0 {
		return nil, false
	}
	return NumberFolders(Reinsert(sorted, from, sorted[from], to)), true
}

// MoveItem computes the item reassignment for moving itemID into dst at index
// to. When the item already lives in dst only that container is renumbered;
// otherwise both the source and destination containers are renumbered. It
// reports false when the item is unknown.
func MoveItem(items []Item, itemID string, dst Container, to int) ([]ItemPlacement, bool) {
	var moved *Item
	for i := range items {
		if items[i].ID == itemID {
			moved = &items[i]
			break
		}
	}
	if moved == nil {
		return nil, false
	}
	src := moved.Container
	srcList := ItemsIn(items, src)
	from := indexOf(len(srcList), func(i int) bool { return srcList[i].ID == itemID })

	if src == dst {
		return NumberItems(Reinsert(srcList, from, *moved, to), src), true
	}

	remaining := Remove(srcList, from)
	dstList := ItemsIn(items, dst)
	item := *moved
	item.Container = dst
	dstList = Reinsert(dstList, -1, item, to)

	out := NumberItems(remaining, src)
	return append(out, NumberItems(dstList, dst)...), true
}

// ApplyItemPlacements overwrites order and container of matching items.
// Unknown ids are ignored. It returns the number of items changed.
func ApplyItemPlacements(items []Item, placements []ItemPlacement) int {
	idx := make(map[string]int, len(items))
	for i, it := range items {
		idx[it.ID] = i
	}
	n := 0
	for _, p := range placements {
		i, ok := idx[p.ID]
		if !ok {
			continue
		}
		items[i].Order = p.Order
		items[i].Container = p.Container
		n++
	}
	return n
}

// ApplyFolderPlacements overwrites order of matching folders. Unknown ids are
// ignored.
func ApplyFolderPlacements(folders []Folder, placements []FolderPlacement) int {
	idx := make(map[string]int, len(folders))
	for i, f := range folders {
		idx[f.ID] = i
	}
	n := 0
	for _, p := range placements {
		i, ok := idx[p.ID]
		if !ok {
			continue
		}
		folders[i].Order = p.Order
		n++
	}
	return n
}

func indexOf(n int, match func(int) bool) int {
	for i := 0; i < n; i++ {
		if match(i) {
			return i
		}
	}
	return -1
}
