// internal/gameserver/repository.go
//
// Query helpers for the `server` table.
//
// Context
// -------
// The reconciliation service is the only writer of `suspended`,
// `panel_id`, `panel_identifier`, and `deleted_at`.  It serializes
// conflicting lifecycle transitions through `WithLock`, which wraps a
// transaction around a `SELECT … FOR UPDATE` on the target row so two
// concurrent suspends cannot both pass the precondition check.
//
// Soft-deleted rows are invisible to every read helper except the locked
// fetch, which returns the row so the caller can convert the marker into a
// typed not-found outcome.
package gameserver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// ErrNoRow is returned when the requested server does not exist.  Callers
// translate it into their own not-found taxonomy.
var ErrNoRow = errors.New("gameserver: no such row")

// ErrIdentitySet guards the set-exactly-once rule for the panel identity
// pair.
var ErrIdentitySet = errors.New("gameserver: panel identity already assigned")

const columns = `id, owner_id, product_id, name, panel_id, panel_identifier,
                 suspended, installed, deleted_at, expires_at, created_at, updated_at`

// Repository wraps the control-plane pool.
type Repository struct {
	db *sqlx.DB
}

// NewRepository binds a Repository to db.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// ByID fetches one non-deleted server row.
func (r *Repository) ByID(ctx context.Context, id uint64) (*Server, error) {
	const q = `
	    SELECT ` + columns + `
	    FROM   server
	    WHERE  id = ?
	      AND  deleted_at IS NULL
	    LIMIT  1`
	var srv Server
	if err := r.db.GetContext(ctx, &srv, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoRow
		}
		return nil, err
	}
	return &srv, nil
}

// ByOwner lists every non-deleted server owned by ownerID, newest first.
func (r *Repository) ByOwner(ctx context.Context, ownerID uint64) ([]Server, error) {
	const q = `
	    SELECT ` + columns + `
	    FROM   server
	    WHERE  owner_id = ?
	      AND  deleted_at IS NULL
	    ORDER BY created_at DESC`
	var rows []Server
	if err := r.db.SelectContext(ctx, &rows, q, ownerID); err != nil {
		return nil, err
	}
	return rows, nil
}

// ExpiredActive returns non-deleted, non-suspended servers whose expiry is
// in the past.  The expiry sweep feeds these to the reconciliation service.
func (r *Repository) ExpiredActive(ctx context.Context, limit int) ([]Server, error) {
	const q = `
	    SELECT ` + columns + `
	    FROM   server
	    WHERE  deleted_at IS NULL
	      AND  suspended  = FALSE
	      AND  expires_at IS NOT NULL
	      AND  expires_at < NOW()
	    ORDER BY expires_at
	    LIMIT  ?`
	var rows []Server
	if err := r.db.SelectContext(ctx, &rows, q, limit); err != nil {
		return nil, err
	}
	return rows, nil
}

// CountActiveTrials counts non-deleted servers the owner holds for the
// given product.  Used to enforce the one-trial-per-user rule before
// creation.
func (r *Repository) CountActiveTrials(ctx context.Context, ownerID, productID uint64) (int, error) {
	const q = `
	    SELECT COUNT(*)
	    FROM   server
	    WHERE  owner_id   = ?
	      AND  product_id = ?
	      AND  deleted_at IS NULL`
	var n int
	if err := r.db.GetContext(ctx, &n, q, ownerID, productID); err != nil {
		return 0, err
	}
	return n, nil
}

// Insert creates a new unprovisioned row and returns its id.
func (r *Repository) Insert(ctx context.Context, s *Server) (uint64, error) {
	const q = `
	    INSERT INTO server
	        (owner_id, product_id, name, suspended, installed, expires_at,
	         created_at, updated_at)
	    VALUES (?, ?, ?, ?, ?, ?, NOW(), NOW())`
	res, err := r.db.ExecContext(ctx, q,
		s.OwnerID, s.ProductID, s.Name, s.Suspended, s.Installed, s.ExpiresAt)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// SetPanelIdentity assigns the remote identity pair exactly once.  The
// WHERE clause refuses rows that already carry an identity; a zero row
// count maps to ErrIdentitySet (or ErrNoRow when the row is gone).
func (r *Repository) SetPanelIdentity(ctx context.Context, id, panelID uint64, ident string) error {
	const q = `
	    UPDATE server
	    SET    panel_id = ?, panel_identifier = ?, updated_at = NOW()
	    WHERE  id = ?
	      AND  panel_id         IS NULL
	      AND  panel_identifier IS NULL
	      AND  deleted_at       IS NULL`
	res, err := r.db.ExecContext(ctx, q, panelID, ident, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := r.ByID(ctx, id); err != nil {
			return err
		}
		return ErrIdentitySet
	}
	return nil
}

// RefreshStatus atomically replaces the cached operational pair.  Sync is
// read-mostly, so this single UPDATE is its only write.
func (r *Repository) RefreshStatus(ctx context.Context, id uint64, suspended, installed bool) error {
	const q = `
	    UPDATE server
	    SET    suspended = ?, installed = ?, updated_at = NOW()
	    WHERE  id = ? AND deleted_at IS NULL`
	_, err := r.db.ExecContext(ctx, q, suspended, installed, id)
	return err
}

//
// Locked transitions
//

// TxWriter is the set of writes permitted inside a WithLock callback.
// The reconciliation service depends on this interface so its tests can
// substitute an in-memory store with simulated commit points.
type TxWriter interface {
	SetSuspended(ctx context.Context, id uint64, suspended bool) error
	MarkDeleted(ctx context.Context, id uint64) error
}

// Tx exposes the write helpers valid inside a WithLock callback.
type Tx struct {
	tx *sqlx.Tx
}

var _ TxWriter = (*Tx)(nil)

// SetSuspended flips the local intent flag inside the locked transaction.
func (t *Tx) SetSuspended(ctx context.Context, id uint64, suspended bool) error {
	const q = `UPDATE server SET suspended = ?, updated_at = NOW() WHERE id = ?`
	_, err := t.tx.ExecContext(ctx, q, suspended, id)
	return err
}

// MarkDeleted applies the soft-delete marker.  Deleted servers are always
// recorded as suspended so a later restore starts from a safe state.
func (t *Tx) MarkDeleted(ctx context.Context, id uint64) error {
	const q = `
	    UPDATE server
	    SET    deleted_at = NOW(), suspended = TRUE, updated_at = NOW()
	    WHERE  id = ?`
	_, err := t.tx.ExecContext(ctx, q, id)
	return err
}

// WithLock opens a transaction, locks the target row with
// `SELECT … FOR UPDATE`, and runs fn.  The lock spans the caller's
// precondition check, remote call, and local mutation, then commits when
// fn returns nil.  The fetched row includes soft-deleted servers; fn
// decides how to fail them.
func (r *Repository) WithLock(ctx context.Context, id uint64, fn func(tx TxWriter, srv *Server) error) error {
	txx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	const q = `
	    SELECT ` + columns + `
	    FROM   server
	    WHERE  id = ?
	    LIMIT  1
	    FOR UPDATE`
	var srv Server
	if err := txx.GetContext(ctx, &srv, q, id); err != nil {
		txx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNoRow
		}
		return err
	}

	if err := fn(&Tx{tx: txx}, &srv); err != nil {
		if rbErr := txx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	return txx.Commit()
}
