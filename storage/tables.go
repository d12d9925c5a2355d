package storage

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"

	"organizer/domain"
)

// partition holds every organizer record; the data set is a single shared
// workspace.
const partition = "organizer"

const (
	edmInt32 = "Edm.Int32"
	edmInt64 = "Edm.Int64"
)

// Tables stores items and folders in Azure Table Storage.
type Tables struct {
	itemTable   *aztables.Client
	folderTable *aztables.Client
}

// NewTables creates a Tables store from the given connection string.
func NewTables(connStr, itemsTable, foldersTable string) (*Tables, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Second * 30,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &Tables{
		itemTable:   svc.NewClient(itemsTable),
		folderTable: svc.NewClient(foldersTable),
	}, nil
}

// EnsureTables creates the item and folder tables when they are missing.
func (s *Tables) EnsureTables(ctx context.Context) error {
	for _, c := range []*aztables.Client{s.itemTable, s.folderTable} {
		if _, err := c.CreateTable(ctx, nil); err != nil {
			var respErr *azcore.ResponseError
			if !(errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists)) {
				return err
			}
		}
	}
	return nil
}

type entityKeys struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
}

type itemEntity struct {
	entityKeys
	Title         string `json:"Title"`
	Icon          string `json:"Icon"`
	Folder        string `json:"Folder"`
	Order         int    `json:"Order"`
	OrderType     string `json:"Order@odata.type,omitempty"`
	CreatedAt     int64  `json:"CreatedAt,string"`
	CreatedAtType string `json:"CreatedAt@odata.type,omitempty"`
	UpdatedAt     int64  `json:"UpdatedAt,string"`
	UpdatedAtType string `json:"UpdatedAt@odata.type,omitempty"`
}

type itemUpdate struct {
	entityKeys
	Title         *string `json:"Title,omitempty"`
	Icon          *string `json:"Icon,omitempty"`
	Folder        *string `json:"Folder,omitempty"`
	Order         *int    `json:"Order,omitempty"`
	OrderType     *string `json:"Order@odata.type,omitempty"`
	UpdatedAt     int64   `json:"UpdatedAt,string"`
	UpdatedAtType string  `json:"UpdatedAt@odata.type"`
}

type folderEntity struct {
	entityKeys
	Name          string `json:"Name"`
	IsOpen        bool   `json:"IsOpen"`
	Order         int    `json:"Order"`
	OrderType     string `json:"Order@odata.type,omitempty"`
	CreatedAt     int64  `json:"CreatedAt,string"`
	CreatedAtType string `json:"CreatedAt@odata.type,omitempty"`
	UpdatedAt     int64  `json:"UpdatedAt,string"`
	UpdatedAtType string `json:"UpdatedAt@odata.type,omitempty"`
}

type folderUpdate struct {
	entityKeys
	Name          *string `json:"Name,omitempty"`
	IsOpen        *bool   `json:"IsOpen,omitempty"`
	Order         *int    `json:"Order,omitempty"`
	OrderType     *string `json:"Order@odata.type,omitempty"`
	UpdatedAt     int64   `json:"UpdatedAt,string"`
	UpdatedAtType string  `json:"UpdatedAt@odata.type"`
}

func toItemEntity(it domain.Item) itemEntity {
	return itemEntity{
		entityKeys:    entityKeys{PartitionKey: partition, RowKey: it.ID},
		Title:         it.Title,
		Icon:          it.Icon,
		Folder:        it.Container.FolderID(),
		Order:         it.Order,
		OrderType:     edmInt32,
		CreatedAt:     it.CreatedAt.UnixMilli(),
		CreatedAtType: edmInt64,
		UpdatedAt:     it.UpdatedAt.UnixMilli(),
		UpdatedAtType: edmInt64,
	}
}

func (e itemEntity) item() domain.Item {
	return domain.Item{
		ID:        e.RowKey,
		Title:     e.Title,
		Icon:      e.Icon,
		Container: domain.InFolder(e.Folder),
		Order:     e.Order,
		CreatedAt: time.UnixMilli(e.CreatedAt).UTC(),
		UpdatedAt: time.UnixMilli(e.UpdatedAt).UTC(),
	}
}

func toFolderEntity(f domain.Folder) folderEntity {
	return folderEntity{
		entityKeys:    entityKeys{PartitionKey: partition, RowKey: f.ID},
		Name:          f.Name,
		IsOpen:        f.IsOpen,
		Order:         f.Order,
		OrderType:     edmInt32,
		CreatedAt:     f.CreatedAt.UnixMilli(),
		CreatedAtType: edmInt64,
		UpdatedAt:     f.UpdatedAt.UnixMilli(),
		UpdatedAtType: edmInt64,
	}
}

func (e folderEntity) folder() domain.Folder {
	return domain.Folder{
		ID:        e.RowKey,
		Name:      e.Name,
		IsOpen:    e.IsOpen,
		Order:     e.Order,
		CreatedAt: time.UnixMilli(e.CreatedAt).UTC(),
		UpdatedAt: time.UnixMilli(e.UpdatedAt).UTC(),
	}
}

func decodeItemEntity(data []byte) (domain.Item, error) {
	var ent itemEntity
	if err := sonic.Unmarshal(data, &ent); err != nil {
		return domain.Item{}, err
	}
	return ent.item(), nil
}

func decodeFolderEntity(data []byte) (domain.Folder, error) {
	var ent folderEntity
	if err := sonic.Unmarshal(data, &ent); err != nil {
		return domain.Folder{}, err
	}
	return ent.folder(), nil
}

// quote renders s as an OData string literal.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func partitionFilter() string {
	return "PartitionKey eq " + quote(partition)
}

func containerFilter(c domain.Container) string {
	return partitionFilter() + " and Folder eq " + quote(c.FolderID())
}

func isStatus(err error, code int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == code
}

func (s *Tables) listItems(ctx context.Context, filter string) ([]domain.Item, error) {
	pager := s.itemTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	items := []domain.Item{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			it, err := decodeItemEntity(e)
			if err != nil {
				return nil, err
			}
			items = append(items, it)
		}
	}
	return items, nil
}

func (s *Tables) listFolders(ctx context.Context) ([]domain.Folder, error) {
	filter := partitionFilter()
	pager := s.folderTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	folders := []domain.Folder{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			f, err := decodeFolderEntity(e)
			if err != nil {
				return nil, err
			}
			folders = append(folders, f)
		}
	}
	return folders, nil
}

func (s *Tables) count(ctx context.Context, c *aztables.Client, filter string) (int, error) {
	sel := "RowKey"
	pager := c.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter, Select: &sel})
	n := 0
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return 0, err
		}
		n += len(resp.Entities)
	}
	return n, nil
}

func (s *Tables) FindAll(ctx context.Context) (domain.Snapshot, error) {
	items, err := s.listItems(ctx, partitionFilter())
	if err != nil {
		return domain.Snapshot{}, err
	}
	folders, err := s.listFolders(ctx)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return domain.Snapshot{Items: items, Folders: folders}, nil
}

func (s *Tables) FindByContainer(ctx context.Context, c domain.Container) ([]domain.Item, error) {
	items, err := s.listItems(ctx, containerFilter(c))
	if err != nil {
		return nil, err
	}
	return domain.ItemsIn(items, c), nil
}

func (s *Tables) GetFolder(ctx context.Context, id string) (domain.Folder, error) {
	ent, err := s.folderTable.GetEntity(ctx, partition, id, nil)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return domain.Folder{}, domain.ErrNotFound
		}
		return domain.Folder{}, err
	}
	return decodeFolderEntity(ent.Value)
}

func (s *Tables) getItem(ctx context.Context, id string) (domain.Item, error) {
	ent, err := s.itemTable.GetEntity(ctx, partition, id, nil)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return domain.Item{}, domain.ErrNotFound
		}
		return domain.Item{}, err
	}
	return decodeItemEntity(ent.Value)
}

func (s *Tables) CreateItem(ctx context.Context, it domain.Item) (domain.Item, error) {
	payload, err := sonic.Marshal(toItemEntity(it))
	if err == nil {
		_, err = s.itemTable.AddEntity(ctx, payload, nil)
	}
	if err != nil {
		return domain.Item{}, err
	}
	return it, nil
}

func (s *Tables) CreateFolder(ctx context.Context, f domain.Folder) (domain.Folder, error) {
	payload, err := sonic.Marshal(toFolderEntity(f))
	if err == nil {
		_, err = s.folderTable.AddEntity(ctx, payload, nil)
	}
	if err != nil {
		return domain.Folder{}, err
	}
	return f, nil
}

func (s *Tables) merge(ctx context.Context, c *aztables.Client, v any) error {
	payload, err := sonic.Marshal(v)
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = c.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	if isStatus(err, http.StatusNotFound) {
		return domain.ErrNotFound
	}
	return err
}

func (s *Tables) UpdateItemFields(ctx context.Context, id string, patch domain.ItemPatch) (domain.Item, error) {
	upd := itemUpdate{
		entityKeys:    entityKeys{PartitionKey: partition, RowKey: id},
		Title:         patch.Title,
		Icon:          patch.Icon,
		UpdatedAt:     patch.UpdatedAt.UnixMilli(),
		UpdatedAtType: edmInt64,
	}
	if err := s.merge(ctx, s.itemTable, upd); err != nil {
		return domain.Item{}, err
	}
	return s.getItem(ctx, id)
}

func (s *Tables) UpdateFolderFields(ctx context.Context, id string, patch domain.FolderPatch) (domain.Folder, error) {
	upd := folderUpdate{
		entityKeys:    entityKeys{PartitionKey: partition, RowKey: id},
		Name:          patch.Name,
		IsOpen:        patch.IsOpen,
		UpdatedAt:     patch.UpdatedAt.UnixMilli(),
		UpdatedAtType: edmInt64,
	}
	if err := s.merge(ctx, s.folderTable, upd); err != nil {
		return domain.Folder{}, err
	}
	return s.GetFolder(ctx, id)
}

// PlaceItem reports ErrNotFound for a missing item or destination folder.
func (s *Tables) PlaceItem(ctx context.Context, p domain.ItemPlacement, at time.Time) error {
	if !p.Container.IsRoot() {
		if _, err := s.GetFolder(ctx, p.Container.FolderID()); err != nil {
			return err
		}
	}
	folder := p.Container.FolderID()
	order := p.Order
	t := edmInt32
	return s.merge(ctx, s.itemTable, itemUpdate{
		entityKeys:    entityKeys{PartitionKey: partition, RowKey: p.ID},
		Folder:        &folder,
		Order:         &order,
		OrderType:     &t,
		UpdatedAt:     at.UnixMilli(),
		UpdatedAtType: edmInt64,
	})
}

func (s *Tables) PlaceFolder(ctx context.Context, p domain.FolderPlacement, at time.Time) error {
	order := p.Order
	t := edmInt32
	return s.merge(ctx, s.folderTable, folderUpdate{
		entityKeys:    entityKeys{PartitionKey: partition, RowKey: p.ID},
		Order:         &order,
		OrderType:     &t,
		UpdatedAt:     at.UnixMilli(),
		UpdatedAtType: edmInt64,
	})
}

func (s *Tables) delete(ctx context.Context, c *aztables.Client, id string) error {
	_, err := c.DeleteEntity(ctx, partition, id, nil)
	if err != nil && !isStatus(err, http.StatusNotFound) {
		return err
	}
	return nil
}

func (s *Tables) DeleteItem(ctx context.Context, id string) error {
	return s.delete(ctx, s.itemTable, id)
}

func (s *Tables) DeleteFolder(ctx context.Context, id string) error {
	return s.delete(ctx, s.folderTable, id)
}

func (s *Tables) DeleteByContainer(ctx context.Context, c domain.Container) error {
	items, err := s.listItems(ctx, containerFilter(c))
	if err != nil {
		return err
	}
	for _, it := range items {
		if err := s.delete(ctx, s.itemTable, it.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Tables) CountByContainer(ctx context.Context, c domain.Container) (int, error) {
	return s.count(ctx, s.itemTable, containerFilter(c))
}

func (s *Tables) CountFolders(ctx context.Context) (int, error) {
	return s.count(ctx, s.folderTable, partitionFilter())
}

// Ping reads a single folder row to prove the account is reachable.
func (s *Tables) Ping(ctx context.Context) error {
	var top int32 = 1
	filter := partitionFilter()
	pager := s.folderTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter, Top: &top})
	_, err := pager.NextPage(ctx)
	return err
}

var _ domain.Store = (*Tables)(nil)
