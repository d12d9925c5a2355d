package domain

import (
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

// Container identifies the sibling list an item belongs to. The zero value is
// the root list; any other value is a folder identifier.
type Container string

// Root is the top-level item list.
const Root Container = ""

// InFolder returns the container for the folder with the given id.
func InFolder(folderID string) Container { return Container(folderID) }

func (c Container) IsRoot() bool { return c == Root }

// FolderID returns the referenced folder id, or "" for the root list.
func (c Container) FolderID() string { return string(c) }

func (c Container) String() string {
	if c.IsRoot() {
		return "root"
	}
	return "folder:" + string(c)
}

// MarshalJSON encodes the root list as null, matching the nullable folder
// back-reference on the wire.
func (c Container) MarshalJSON() ([]byte, error) {
	if c.IsRoot() {
		return []byte("null"), nil
	}
	return sonic.Marshal(string(c))
}

func (c *Container) UnmarshalJSON(data []byte) error {
	var id *string
	if err := sonic.Unmarshal(data, &id); err != nil {
		return &ValidationError{Field: "container", Reason: "must be a folder id or null"}
	}
	if id == nil {
		*c = Root
		return nil
	}
	*c = Container(*id)
	return nil
}

// Item is a leaf entry living either at the root or inside exactly one folder.
type Item struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Icon      string    `json:"icon"`
	Container Container `json:"container"`
	Order     int       `json:"order"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Folder groups items. Folders only ever live at the top level.
type Folder struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IsOpen    bool      `json:"isOpen"`
	Order     int       `json:"order"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Snapshot is the complete authoritative state returned by a full fetch.
type Snapshot struct {
	Items   []Item   `json:"items"`
	Folders []Folder `json:"folders"`
}

// NewItem carries the fields accepted when creating an item.
type NewItem struct {
	Title     string    `json:"title"`
	Icon      string    `json:"icon"`
	Container Container `json:"container"`
}

// NewFolder carries the fields accepted when creating a folder.
type NewFolder struct {
	Name string `json:"name"`
}

// ItemPatch is a partial field edit. Order and container are never part of a
// patch; only the reorder path writes them.
type ItemPatch struct {
	Title     *string   `json:"title,omitempty"`
	Icon      *string   `json:"icon,omitempty"`
	UpdatedAt time.Time `json:"-"`
}

// FolderPatch is a partial field edit of a folder.
type FolderPatch struct {
	Name      *string   `json:"name,omitempty"`
	IsOpen    *bool     `json:"isOpen,omitempty"`
	UpdatedAt time.Time `json:"-"`
}

// Apply copies the set fields of p onto it.
func (p ItemPatch) Apply(it Item) Item {
	if p.Title != nil {
		it.Title = *p.Title
	}
	if p.Icon != nil {
		it.Icon = *p.Icon
	}
	if !p.UpdatedAt.IsZero() {
		it.UpdatedAt = p.UpdatedAt
	}
	return it
}

// Apply copies the set fields of p onto f.
func (p FolderPatch) Apply(f Folder) Folder {
	if p.Name != nil {
		f.Name = *p.Name
	}
	if p.IsOpen != nil {
		f.IsOpen = *p.IsOpen
	}
	if !p.UpdatedAt.IsZero() {
		f.UpdatedAt = p.UpdatedAt
	}
	return f
}

func (n NewItem) Validate() error {
	if strings.TrimSpace(n.Title) == "" {
		return &ValidationError{Field: "title", Reason: "is required"}
	}
	if strings.TrimSpace(n.Icon) == "" {
		return &ValidationError{Field: "icon", Reason: "is required"}
	}
	return nil
}

func (n NewFolder) Validate() error {
	if strings.TrimSpace(n.Name) == "" {
		return &ValidationError{Field: "name", Reason: "is required"}
	}
	return nil
}

func (p ItemPatch) Validate() error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if p.Icon != nil && strings.TrimSpace(*p.Icon) == "" {
		return &ValidationError{Field: "icon", Reason: "must not be empty"}
	}
	return nil
}

func (p FolderPatch) Validate() error {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	return nil
}
