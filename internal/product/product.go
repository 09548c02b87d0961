// internal/product/product.go
//
// Read model for purchasable plans.  Products are managed by an external
// admin surface; this panel only reads them to price checkouts and to
// locate the free-trial plan for a game.
package product

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// ErrNoRow is returned when no product matches the lookup.
var ErrNoRow = errors.New("product: no such row")

// Product mirrors one row in the persistent `product` table.  Prices are
// stored as DECIMAL(10,2); decimal.Decimal keeps the math exact.
type Product struct {
	ID           uint64          `db:"id"`
	GameSlug     string          `db:"game_slug"`
	Name         string          `db:"name"`
	PriceMonthly decimal.Decimal `db:"price_monthly"`
	IsTrial      bool            `db:"is_trial"`
	TrialDays    int             `db:"trial_days"`
	CreatedAt    time.Time       `db:"created_at"`
}

// Repository wraps the control-plane pool.
type Repository struct {
	db *sqlx.DB
}

// NewRepository binds a Repository to db.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

const columns = `id, game_slug, name, price_monthly, is_trial, trial_days, created_at`

// ByID fetches one product.
func (r *Repository) ByID(ctx context.Context, id uint64) (*Product, error) {
	const q = `SELECT ` + columns + ` FROM product WHERE id = ? LIMIT 1`
	var p Product
	if err := r.db.GetContext(ctx, &p, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoRow
		}
		return nil, err
	}
	return &p, nil
}

// TrialByGame returns the free-trial plan for a game slug.
func (r *Repository) TrialByGame(ctx context.Context, gameSlug string) (*Product, error) {
	const q = `
	    SELECT ` + columns + `
	    FROM   product
	    WHERE  game_slug = ?
	      AND  is_trial  = TRUE
	    LIMIT  1`
	var p Product
	if err := r.db.GetContext(ctx, &p, q, gameSlug); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoRow
		}
		return nil, err
	}
	return &p, nil
}
