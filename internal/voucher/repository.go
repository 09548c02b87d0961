package voucher

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

// ErrNoRow is returned when no voucher carries the given code.
var ErrNoRow = errors.New("voucher: no such row")

// Repository reads vouchers.  This panel never writes them: creation and
// editing belong to the admin surface, `uses` to the redemption commit.
type Repository struct {
	db *sqlx.DB
}

// NewRepository binds a Repository to db.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// ByCode fetches one voucher by its unique code.
func (r *Repository) ByCode(ctx context.Context, code string) (*Voucher, error) {
	const q = `
	    SELECT id, code, type, discount, active, max_uses, uses,
	           expires_at, created_at
	    FROM   voucher
	    WHERE  code = ?
	    LIMIT  1`
	var v Voucher
	if err := r.db.GetContext(ctx, &v, q, code); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoRow
		}
		return nil, err
	}
	return &v, nil
}
