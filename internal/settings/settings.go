// internal/settings/settings.go
//
// Named string settings, stored as key-value rows in the `setting` table.
// The admin surface writes them; this daemon reads a handful at boot
// (panel endpoint overrides) and exposes Put for completeness.
package settings

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

// ErrNoRow is returned when the named setting does not exist.
var ErrNoRow = errors.New("settings: no such key")

// Store reads and writes named string settings.
type Store interface {
	Get(ctx context.Context, name string) (string, error)
	Put(ctx context.Context, name, value string) error
}

// DB is the sqlx-backed Store.
type DB struct {
	db *sqlx.DB
}

var _ Store = (*DB)(nil)

// New binds a DB store.
func New(db *sqlx.DB) *DB {
	return &DB{db: db}
}

// Get returns the value for name, or ErrNoRow.
func (s *DB) Get(ctx context.Context, name string) (string, error) {
	const q = "SELECT value FROM setting WHERE `name` = ? LIMIT 1"
	var v string
	if err := s.db.GetContext(ctx, &v, q, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNoRow
		}
		return "", err
	}
	return v, nil
}

// Put upserts one setting.
func (s *DB) Put(ctx context.Context, name, value string) error {
	const q = `
	    INSERT INTO setting (` + "`name`" + `, value)
	    VALUES (?, ?)
	    ON DUPLICATE KEY UPDATE value = VALUES(value)`
	_, err := s.db.ExecContext(ctx, q, name, value)
	return err
}

// GetDefault returns the value for name, or def when the key is absent.
func GetDefault(ctx context.Context, s Store, name, def string) (string, error) {
	v, err := s.Get(ctx, name)
	if errors.Is(err, ErrNoRow) {
		return def, nil
	}
	if err != nil {
		return "", err
	}
	return v, nil
}
