package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"organizer/domain"
)

// OpenPostgres opens a pooled connection through the pgx driver and verifies
// it with a ping.
func OpenPostgres(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(20)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

// Postgres stores items and folders in PostgreSQL. A root item has a NULL
// folder_id.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func folderArg(c domain.Container) sql.NullString {
	if c.IsRoot() {
		return sql.NullString{}
	}
	return sql.NullString{String: c.FolderID(), Valid: true}
}

type rowScanner interface {
	Scan(dest ...any) error
}

const itemColumns = `id, title, icon, folder_id, sort_order, created_at, updated_at`
const folderColumns = `id, name, is_open, sort_order, created_at, updated_at`

func scanItem(row rowScanner) (domain.Item, error) {
	var (
		it     domain.Item
		folder sql.NullString
	)
	if err := row.Scan(&it.ID, &it.Title, &it.Icon, &folder, &it.Order, &it.CreatedAt, &it.UpdatedAt); err != nil {
		return domain.Item{}, err
	}
	if folder.Valid {
		it.Container = domain.InFolder(folder.String)
	}
	it.CreatedAt = it.CreatedAt.UTC()
	it.UpdatedAt = it.UpdatedAt.UTC()
	return it, nil
}

func scanFolder(row rowScanner) (domain.Folder, error) {
	var f domain.Folder
	if err := row.Scan(&f.ID, &f.Name, &f.IsOpen, &f.Order, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return domain.Folder{}, err
	}
	f.CreatedAt = f.CreatedAt.UTC()
	f.UpdatedAt = f.UpdatedAt.UTC()
	return f, nil
}

func (s *Postgres) queryItems(ctx context.Context, query string, args ...any) ([]domain.Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Item, 0)
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

func (s *Postgres) FindAll(ctx context.Context) (domain.Snapshot, error) {
	items, err := s.queryItems(ctx, `SELECT `+itemColumns+` FROM items ORDER BY folder_id NULLS FIRST, sort_order`)
	if err != nil {
		return domain.Snapshot{}, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+folderColumns+` FROM folders ORDER BY sort_order`)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("list folders: %w", err)
	}
	defer rows.Close()
	folders := make([]domain.Folder, 0)
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return domain.Snapshot{}, fmt.Errorf("scan folder: %w", err)
		}
		folders = append(folders, f)
	}
	if err := rows.Err(); err != nil {
		return domain.Snapshot{}, fmt.Errorf("iterate folders: %w", err)
	}
	return domain.Snapshot{Items: items, Folders: folders}, nil
}

func (s *Postgres) FindByContainer(ctx context.Context, c domain.Container) ([]domain.Item, error) {
	return s.queryItems(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE folder_id IS NOT DISTINCT FROM $1
		ORDER BY sort_order
	`, folderArg(c))
}

func (s *Postgres) GetFolder(ctx context.Context, id string) (domain.Folder, error) {
	f, err := scanFolder(s.db.QueryRowContext(ctx, `SELECT `+folderColumns+` FROM folders WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Folder{}, domain.ErrNotFound
	}
	return f, err
}

func (s *Postgres) CreateItem(ctx context.Context, it domain.Item) (domain.Item, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (id, title, icon, folder_id, sort_order, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, it.ID, it.Title, it.Icon, folderArg(it.Container), it.Order, it.CreatedAt, it.UpdatedAt)
	if err != nil {
		return domain.Item{}, fmt.Errorf("insert item: %w", err)
	}
	return it, nil
}

func (s *Postgres) CreateFolder(ctx context.Context, f domain.Folder) (domain.Folder, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO folders (id, name, is_open, sort_order, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, f.ID, f.Name, f.IsOpen, f.Order, f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return domain.Folder{}, fmt.Errorf("insert folder: %w", err)
	}
	return f, nil
}

func (s *Postgres) UpdateItemFields(ctx context.Context, id string, patch domain.ItemPatch) (domain.Item, error) {
	it, err := scanItem(s.db.QueryRowContext(ctx, `
		UPDATE items
		SET title=COALESCE($2, title), icon=COALESCE($3, icon), updated_at=$4
		WHERE id=$1
		RETURNING `+itemColumns, id, patch.Title, patch.Icon, patch.UpdatedAt))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Item{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Item{}, fmt.Errorf("update item: %w", err)
	}
	return it, nil
}

func (s *Postgres) UpdateFolderFields(ctx context.Context, id string, patch domain.FolderPatch) (domain.Folder, error) {
	f, err := scanFolder(s.db.QueryRowContext(ctx, `
		UPDATE folders
		SET name=COALESCE($2, name), is_open=COALESCE($3, is_open), updated_at=$4
		WHERE id=$1
		RETURNING `+folderColumns, id, patch.Name, patch.IsOpen, patch.UpdatedAt))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Folder{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Folder{}, fmt.Errorf("update folder: %w", err)
	}
	return f, nil
}

func affectedOrNotFound(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// PlaceItem reports ErrNotFound for a missing item or destination folder.
func (s *Postgres) PlaceItem(ctx context.Context, p domain.ItemPlacement, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE items SET sort_order=$2, folder_id=$3, updated_at=$4 WHERE id=$1
	`, p.ID, p.Order, folderArg(p.Container), at)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("folder %s: %w", p.Container.FolderID(), domain.ErrNotFound)
	}
	return affectedOrNotFound(res, err)
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

func (s *Postgres) PlaceFolder(ctx context.Context, p domain.FolderPlacement, at time.Time) error {
	return affectedOrNotFound(s.db.ExecContext(ctx, `
		UPDATE folders SET sort_order=$2, updated_at=$3 WHERE id=$1
	`, p.ID, p.Order, at))
}

func (s *Postgres) DeleteItem(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE id=$1`, id); err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}

func (s *Postgres) DeleteFolder(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM folders WHERE id=$1`, id); err != nil {
		return fmt.Errorf("delete folder: %w", err)
	}
	return nil
}

func (s *Postgres) DeleteByContainer(ctx context.Context, c domain.Container) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE folder_id IS NOT DISTINCT FROM $1`, folderArg(c)); err != nil {
		return fmt.Errorf("delete items: %w", err)
	}
	return nil
}

func (s *Postgres) CountByContainer(ctx context.Context, c domain.Container) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items WHERE folder_id IS NOT DISTINCT FROM $1`, folderArg(c)).Scan(&n)
	return n, err
}

func (s *Postgres) CountFolders(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM folders`).Scan(&n)
	return n, err
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

var _ domain.Store = (*Postgres)(nil)
