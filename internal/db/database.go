package db

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/sstent/stravasync/internal/strava"
)

// SQLiteDatabase implements strava.ImageCacheRepository using SQLite
type SQLiteDatabase struct {
	db *sql.DB
}

var _ strava.ImageCacheRepository = (*SQLiteDatabase)(nil)

// NewDatabase creates a new SQLite database connection
func NewDatabase(path string) (*SQLiteDatabase, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	// A single connection serializes writers.
	db.SetMaxOpenConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteDatabase{db: db}, nil
}

// Close closes the database connection
func (d *SQLiteDatabase) Close() error {
	return d.db.Close()
}

// createSchema creates the database schema
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS image_cache_entries (
		activity_id INTEGER PRIMARY KEY,
		last_refreshed TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS image_cache_images (
		activity_id INTEGER NOT NULL REFERENCES image_cache_entries(activity_id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		url TEXT NOT NULL,
		captured_at TEXT NOT NULL,
		PRIMARY KEY (activity_id, position)
	);

	CREATE INDEX IF NOT EXISTS idx_image_captured_at ON image_cache_images(captured_at);
	`

	if _, err := db.Exec(schema); err != nil {
		return errors.Wrap(err, "failed to create schema")
	}

	return nil
}

// LoadImageCache returns the stored image cache, empty on first run
func (d *SQLiteDatabase) LoadImageCache(ctx context.Context) (strava.ImageCache, error) {
	cache := make(strava.ImageCache)

	rows, err := d.db.QueryContext(ctx, "SELECT activity_id, last_refreshed FROM image_cache_entries")
	if err != nil {
		return nil, errors.Wrap(err, "failed to load image cache entries")
	}
	if err := scanEntries(rows, cache); err != nil {
		return nil, err
	}

	rows, err = d.db.QueryContext(ctx,
		"SELECT activity_id, url, captured_at FROM image_cache_images ORDER BY activity_id, position")
	if err != nil {
		return nil, errors.Wrap(err, "failed to load image cache images")
	}
	if err := scanImages(rows, cache); err != nil {
		return nil, err
	}

	return cache, nil
}

// SaveImageCache replaces the stored cache in one transaction
func (d *SQLiteDatabase) SaveImageCache(ctx context.Context, cache strava.ImageCache) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM image_cache_images"); err != nil {
		return errors.Wrap(err, "failed to clear image cache images")
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM image_cache_entries"); err != nil {
		return errors.Wrap(err, "failed to clear image cache entries")
	}

	entryStmt, err := tx.PrepareContext(ctx,
		"INSERT INTO image_cache_entries (activity_id, last_refreshed) VALUES (?, ?)")
	if err != nil {
		return errors.Wrap(err, "failed to prepare entry insert")
	}
	defer entryStmt.Close()

	imageStmt, err := tx.PrepareContext(ctx,
		"INSERT INTO image_cache_images (activity_id, position, url, captured_at) VALUES (?, ?, ?, ?)")
	if err != nil {
		return errors.Wrap(err, "failed to prepare image insert")
	}
	defer imageStmt.Close()

	for id, entry := range cache {
		if _, err := entryStmt.ExecContext(ctx, id, formatTime(entry.LastRefreshed)); err != nil {
			return errors.Wrapf(err, "failed to insert image cache entry %d", id)
		}
		for pos, img := range entry.Images {
			if _, err := imageStmt.ExecContext(ctx, id, pos, img.URL, formatTime(img.CapturedAt)); err != nil {
				return errors.Wrapf(err, "failed to insert image %d/%d", id, pos)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit image cache")
	}
	return nil
}

func scanEntries(rows *sql.Rows, cache strava.ImageCache) error {
	defer rows.Close()

	for rows.Next() {
		var id int64
		var refreshed string
		if err := rows.Scan(&id, &refreshed); err != nil {
			return errors.Wrap(err, "failed to scan image cache entry")
		}
		cache[id] = strava.ImageEntry{LastRefreshed: parseTime(refreshed), Images: []strava.Image{}}
	}
	return errors.Wrap(rows.Err(), "failed to iterate image cache entries")
}

func scanImages(rows *sql.Rows, cache strava.ImageCache) error {
	defer rows.Close()

	for rows.Next() {
		var id int64
		var img strava.Image
		var captured string
		if err := rows.Scan(&id, &img.URL, &captured); err != nil {
			return errors.Wrap(err, "failed to scan image")
		}
		img.CapturedAt = parseTime(captured)

		entry, ok := cache[id]
		if !ok {
			continue
		}
		entry.Images = append(entry.Images, img)
		cache[id] = entry
	}
	return errors.Wrap(rows.Err(), "failed to iterate images")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime tolerates malformed rows; a zero time only makes an entry due.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
