package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// OrganizerService handles every write apart from reordering and emits one
// broadcast per successful write. Validation failures mutate nothing and
// publish nothing.
type OrganizerService struct {
	st      Store
	pub     Publisher
	reorder ReorderService
	now     func() time.Time
	newID   func() string
}

func NewOrganizerService(st Store, pub Publisher) OrganizerService {
	return OrganizerService{
		st:      st,
		pub:     pub,
		reorder: NewReorderService(st, pub),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Snapshot returns every item and folder, each list sorted by order.
func (s OrganizerService) Snapshot(ctx context.Context) (Snapshot, error) {
	snap, err := s.st.FindAll(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	SortItems(snap.Items)
	snap.Folders = SortedFolders(snap.Folders)
	if snap.Items == nil {
		snap.Items = []Item{}
	}
	if snap.Folders == nil {
		snap.Folders = []Folder{}
	}
	return snap, nil
}

// CreateItem appends a new item at the end of its container.
func (s OrganizerService) CreateItem(ctx context.Context, in NewItem) (Item, error) {
	if err := in.Validate(); err != nil {
		return Item{}, err
	}
	if !in.Container.IsRoot() {
		if _, err := s.st.GetFolder(ctx, in.Container.FolderID()); err != nil {
			if errors.Is(err, ErrNotFound) {
				return Item{}, &ValidationError{Field: "container", Reason: "references an unknown folder"}
			}
			return Item{}, err
		}
	}
	count, err := s.st.CountByContainer(ctx, in.Container)
	if err != nil {
		return Item{}, fmt.Errorf("count %s: %w", in.Container, err)
	}
	now := s.now().UTC()
	it, err := s.st.CreateItem(ctx, Item{
		ID:        s.newID(),
		Title:     in.Title,
		Icon:      in.Icon,
		Container: in.Container,
		Order:     count,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return Item{}, err
	}
	s.publish(ctx, ItemCreated, it)
	return it, nil
}

// CreateFolder appends a new, open folder after the existing ones.
func (s OrganizerService) CreateFolder(ctx context.Context, in NewFolder) (Folder, error) {
	if err := in.Validate(); err != nil {
		return Folder{}, err
	}
	count, err := s.st.CountFolders(ctx)
	if err != nil {
		return Folder{}, fmt.Errorf("count folders: %w", err)
	}
	now := s.now().UTC()
	f, err := s.st.CreateFolder(ctx, Folder{
		ID:        s.newID(),
		Name:      in.Name,
		IsOpen:    true,
		Order:     count,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return Folder{}, err
	}
	s.publish(ctx, FolderCreated, f)
	return f, nil
}

func (s OrganizerService) UpdateItem(ctx context.Context, id string, patch ItemPatch) (Item, error) {
	if err := patch.Validate(); err != nil {
		return Item{}, err
	}
	patch.UpdatedAt = s.now().UTC()
	it, err := s.st.UpdateItemFields(ctx, id, patch)
	if err != nil {
		return Item{}, err
	}
	s.publish(ctx, ItemUpdated, it)
	return it, nil
}

func (s OrganizerService) UpdateFolder(ctx context.Context, id string, patch FolderPatch) (Folder, error) {
	if err := patch.Validate(); err != nil {
		return Folder{}, err
	}
	patch.UpdatedAt = s.now().UTC()
	f, err := s.st.UpdateFolderFields(ctx, id, patch)
	if err != nil {
		return Folder{}, err
	}
	s.publish(ctx, FolderUpdated, f)
	return f, nil
}

// DeleteItem removes an item. Deleting an unknown id succeeds and still
// broadcasts so lagging peers converge.
func (s OrganizerService) DeleteItem(ctx context.Context, id string) error {
	if err := s.st.DeleteItem(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, ItemDeleted, id)
	return nil
}

// DeleteFolder removes every item referencing the folder, then the folder.
func (s OrganizerService) DeleteFolder(ctx context.Context, id string) error {
	if err := s.st.DeleteByContainer(ctx, InFolder(id)); err != nil {
		return fmt.Errorf("delete items of folder %s: %w", id, err)
	}
	if err := s.st.DeleteFolder(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, FolderDeleted, id)
	return nil
}

func (s OrganizerService) Reorder(ctx context.Context, b ReorderBatch) error {
	return s.reorder.Apply(ctx, b)
}

func (s OrganizerService) Ping(ctx context.Context) error {
	if err := s.st.Ping(ctx); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

func (s OrganizerService) publish(ctx context.Context, kind EventKind, payload any) {
	ev, err := NewEvent(kind, payload)
	if err != nil {
		log.WithError(err).WithField("kind", kind).Error("unable to encode broadcast")
		return
	}
	s.pub.Publish(ctx, ev)
}
