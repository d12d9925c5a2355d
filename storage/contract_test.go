package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"organizer/domain"
)

var epoch = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

// runStoreContract exercises the behaviour every domain.Store must share.
func runStoreContract(t *testing.T, st domain.Store) {
	t.Helper()
	ctx := context.Background()

	folder := domain.Folder{ID: "f1", Name: "Work", IsOpen: true, Order: 0, CreatedAt: epoch, UpdatedAt: epoch}
	if _, err := st.CreateFolder(ctx, folder); err != nil {
		t.Fatalf("create folder: %v", err)
	}
	seed := []domain.Item{
		{ID: "a", Title: "A", Icon: "🅰", Order: 0, CreatedAt: epoch, UpdatedAt: epoch},
		{ID: "b", Title: "B", Icon: "🅱", Order: 1, CreatedAt: epoch, UpdatedAt: epoch},
		{ID: "x", Title: "X", Icon: "❌", Container: domain.InFolder("f1"), Order: 0, CreatedAt: epoch, UpdatedAt: epoch},
	}
	for _, it := range seed {
		if _, err := st.CreateItem(ctx, it); err != nil {
			t.Fatalf("create item %s: %v", it.ID, err)
		}
	}

	if n, err := st.CountByContainer(ctx, domain.Root); err != nil || n != 2 {
		t.Fatalf("expected 2 root items, got %d err=%v", n, err)
	}
	if n, err := st.CountFolders(ctx); err != nil || n != 1 {
		t.Fatalf("expected 1 folder, got %d err=%v", n, err)
	}
	inFolder, err := st.FindByContainer(ctx, domain.InFolder("f1"))
	if err != nil || len(inFolder) != 1 || inFolder[0].ID != "x" {
		t.Fatalf("unexpected folder items %+v err=%v", inFolder, err)
	}
	if _, err := st.GetFolder(ctx, "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	title := "A2"
	later := epoch.Add(time.Minute)
	updated, err := st.UpdateItemFields(ctx, "a", domain.ItemPatch{Title: &title, UpdatedAt: later})
	if err != nil {
		t.Fatalf("update item: %v", err)
	}
	if updated.Title != "A2" || updated.Icon != "🅰" || updated.Order != 0 || !updated.UpdatedAt.Equal(later) {
		t.Fatalf("unexpected updated item %+v", updated)
	}
	if _, err := st.UpdateItemFields(ctx, "missing", domain.ItemPatch{Title: &title, UpdatedAt: later}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on update, got %v", err)
	}
	closed := false
	f, err := st.UpdateFolderFields(ctx, "f1", domain.FolderPatch{IsOpen: &closed, UpdatedAt: later})
	if err != nil || f.IsOpen || f.Name != "Work" {
		t.Fatalf("unexpected folder %+v err=%v", f, err)
	}

	if err := st.PlaceItem(ctx, domain.ItemPlacement{ID: "a", Order: 0, Container: domain.InFolder("f1")}, later); err != nil {
		t.Fatalf("place item: %v", err)
	}
	if err := st.PlaceItem(ctx, domain.ItemPlacement{ID: "x", Order: 1, Container: domain.InFolder("f1")}, later); err != nil {
		t.Fatalf("place item: %v", err)
	}
	if err := st.PlaceItem(ctx, domain.ItemPlacement{ID: "b", Order: 0}, later); err != nil {
		t.Fatalf("place item: %v", err)
	}
	if err := st.PlaceItem(ctx, domain.ItemPlacement{ID: "ghost"}, later); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found placing ghost, got %v", err)
	}
	if err := st.PlaceItem(ctx, domain.ItemPlacement{ID: "b", Order: 5, Container: domain.InFolder("gone")}, later); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found placing into a missing folder, got %v", err)
	}
	if err := st.PlaceFolder(ctx, domain.FolderPlacement{ID: "ghost"}, later); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found placing ghost folder, got %v", err)
	}

	snap, err := st.FindAll(ctx)
	if err != nil {
		t.Fatalf("find all: %v", err)
	}
	folderItems := domain.ItemsIn(snap.Items, domain.InFolder("f1"))
	if len(folderItems) != 2 || folderItems[0].ID != "a" || folderItems[1].ID != "x" {
		t.Fatalf("unexpected folder contents %+v", folderItems)
	}
	rootItems := domain.ItemsIn(snap.Items, domain.Root)
	if len(rootItems) != 1 || rootItems[0].ID != "b" {
		t.Fatalf("unexpected root contents %+v", rootItems)
	}

	if err := st.DeleteByContainer(ctx, domain.InFolder("f1")); err != nil {
		t.Fatalf("delete by container: %v", err)
	}
	if err := st.DeleteFolder(ctx, "f1"); err != nil {
		t.Fatalf("delete folder: %v", err)
	}
	if err := st.DeleteItem(ctx, "ghost"); err != nil {
		t.Fatalf("deleting unknown item should succeed: %v", err)
	}
	snap, _ = st.FindAll(ctx)
	if len(snap.Items) != 1 || len(snap.Folders) != 0 {
		t.Fatalf("unexpected snapshot after deletes %+v", snap)
	}
	if err := st.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
