package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Lookup when no product matches.
var ErrNotFound = errors.New("product not found")

const tableProducts = "products"

// Product is a file the service has produced for a video.
type Product struct {
	ID           int64
	VideoID      string
	Quality      string
	Format       string
	Filename     string
	Title        string
	Author       string
	MediaType    string
	FileSize     int64
	TagsEmbedded bool
	TagError     string
	CreatedAt    time.Time
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS products (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    video_id        TEXT NOT NULL,
    quality         TEXT NOT NULL DEFAULT '',
    format          TEXT NOT NULL DEFAULT '',
    filename        TEXT NOT NULL,
    title           TEXT NOT NULL DEFAULT '',
    author          TEXT NOT NULL DEFAULT '',
    media_type      TEXT NOT NULL DEFAULT 'video',
    file_size       INTEGER NOT NULL DEFAULT 0,
    tags_embedded   INTEGER NOT NULL DEFAULT 0,
    tag_error       TEXT NOT NULL DEFAULT '',
    created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
    UNIQUE(video_id, quality, format)
);

CREATE INDEX IF NOT EXISTS idx_products_filename ON products(filename);
CREATE INDEX IF NOT EXISTS idx_products_created_at ON products(created_at);
`

var productColumns = []string{
	"id", "video_id", "quality", "format", "filename", "title", "author",
	"media_type", "file_size", "tags_embedded", "tag_error", "created_at",
}

// DB wraps an SQLite connection for the product catalog.
type DB struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens or creates the SQLite database at the given path.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database at %s: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", pragma, err)
		}
	}

	if _, err := sqlDB.Exec(createTableSQL); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &DB{db: sqlDB}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Upsert records p, replacing any earlier product for the same video,
// quality and format. Rows for other keys that named the same file are
// dropped, since the file on disk now holds p. It returns the row id.
func (d *DB) Upsert(ctx context.Context, p Product) (int64, error) {
	if d == nil || d.db == nil {
		return 0, errors.New("database not initialized")
	}
	if p.MediaType == "" {
		p.MediaType = ClassifyMediaType(p.Format, p.Author)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	query, args, err := squirrel.
		Insert(tableProducts).
		Columns("video_id", "quality", "format", "filename", "title", "author",
			"media_type", "file_size", "tags_embedded", "tag_error").
		Values(p.VideoID, p.Quality, p.Format, p.Filename, p.Title, p.Author,
			p.MediaType, p.FileSize, p.TagsEmbedded, p.TagError).
		Suffix(`ON CONFLICT(video_id, quality, format) DO UPDATE SET
			filename=excluded.filename, title=excluded.title, author=excluded.author,
			media_type=excluded.media_type, file_size=excluded.file_size,
			tags_embedded=excluded.tags_embedded, tag_error=excluded.tag_error,
			created_at=datetime('now')`).
		PlaceholderFormat(squirrel.Question).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building upsert: %w", err)
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("starting upsert: %w", err)
	}
	defer tx.Rollback()

	_, err = squirrel.
		Delete(tableProducts).
		Where(squirrel.And{
			squirrel.Eq{"filename": p.Filename},
			squirrel.Or{
				squirrel.NotEq{"video_id": p.VideoID},
				squirrel.NotEq{"quality": p.Quality},
				squirrel.NotEq{"format": p.Format},
			},
		}).
		RunWith(tx).
		ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("dropping stale products for %s: %w", p.Filename, err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return 0, fmt.Errorf("upserting product: %w", err)
	}

	// LastInsertId is unreliable for ON CONFLICT DO UPDATE; query the actual row ID.
	var id int64
	err = squirrel.
		Select("id").
		From(tableProducts).
		Where(squirrel.Eq{"video_id": p.VideoID, "quality": p.Quality, "format": p.Format}).
		RunWith(tx).
		QueryRowContext(ctx).
		Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("querying upserted product id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing upsert: %w", err)
	}
	return id, nil
}

// Lookup finds the product for a video at the given quality and format.
func (d *DB) Lookup(ctx context.Context, videoID, quality, format string) (Product, error) {
	if d == nil || d.db == nil {
		return Product{}, errors.New("database not initialized")
	}
	query, args, err := squirrel.
		Select(productColumns...).
		From(tableProducts).
		Where(squirrel.Eq{"video_id": videoID, "quality": quality, "format": format}).
		PlaceholderFormat(squirrel.Question).
		ToSql()
	if err != nil {
		return Product{}, fmt.Errorf("building lookup: %w", err)
	}
	p, err := scanProduct(d.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	if err != nil {
		return Product{}, fmt.Errorf("looking up product: %w", err)
	}
	return p, nil
}

// List returns products, newest first.
func (d *DB) List(ctx context.Context, limit, offset int) ([]Product, error) {
	if d == nil || d.db == nil {
		return nil, errors.New("database not initialized")
	}
	if limit <= 0 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	query, args, err := squirrel.
		Select(productColumns...).
		From(tableProducts).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		PlaceholderFormat(squirrel.Question).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building list: %w", err)
	}
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning product row: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// Delete removes the product for a video at the given quality and format.
func (d *DB) Delete(ctx context.Context, videoID, quality, format string) error {
	if d == nil || d.db == nil {
		return errors.New("database not initialized")
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := squirrel.
		Delete(tableProducts).
		Where(squirrel.Eq{"video_id": videoID, "quality": quality, "format": format}).
		RunWith(d.db).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("deleting product: %w", err)
	}
	return nil
}

// Count returns the number of catalogued products.
func (d *DB) Count(ctx context.Context) (int, error) {
	if d == nil || d.db == nil {
		return 0, errors.New("database not initialized")
	}
	var count int
	err := squirrel.Select("COUNT(*)").From(tableProducts).RunWith(d.db).QueryRowContext(ctx).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting products: %w", err)
	}
	return count, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(row scanner) (Product, error) {
	var p Product
	var tagsEmbedded int
	err := row.Scan(
		&p.ID, &p.VideoID, &p.Quality, &p.Format, &p.Filename, &p.Title, &p.Author,
		&p.MediaType, &p.FileSize, &tagsEmbedded, &p.TagError, &p.CreatedAt,
	)
	p.TagsEmbedded = tagsEmbedded != 0
	return p, err
}
