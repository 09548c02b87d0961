// internal/product/product_test.go
//
// Unit-tests for the product catalog using sqlmock.
//
// Run: go test ./internal/product -v

package product

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

func newMock(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewRepository(sqlx.NewDb(db, "mysql")), mock
}

func productColumns() []string {
	return []string{"id", "game_slug", "name", "price_monthly", "is_trial", "trial_days", "created_at"}
}

func TestByID(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectQuery("SELECT (.+) FROM product").
		WithArgs(uint64(10)).
		WillReturnRows(sqlmock.NewRows(productColumns()).
			AddRow(10, "minecraft", "Minecraft Basic", "19.99", false, 0, time.Now()))

	p, err := repo.ByID(context.Background(), 10)
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	if !p.PriceMonthly.Equal(decimal.RequireFromString("19.99")) {
		t.Errorf("price = %s", p.PriceMonthly)
	}
}

func TestTrialByGame(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectQuery("SELECT (.+) FROM\\s+product").
		WithArgs("minecraft").
		WillReturnRows(sqlmock.NewRows(productColumns()).
			AddRow(55, "minecraft", "Minecraft Free", "0.00", true, 7, time.Now()))

	p, err := repo.TrialByGame(context.Background(), "minecraft")
	if err != nil {
		t.Fatalf("TrialByGame: %v", err)
	}
	if !p.IsTrial || p.TrialDays != 7 {
		t.Fatalf("unexpected plan: %#v", p)
	}
}

func TestTrialByGameMissing(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectQuery("SELECT (.+) FROM\\s+product").
		WithArgs("rust").
		WillReturnRows(sqlmock.NewRows(productColumns()))

	_, err := repo.TrialByGame(context.Background(), "rust")
	if !errors.Is(err, ErrNoRow) {
		t.Fatalf("want ErrNoRow, got %v", err)
	}
}
