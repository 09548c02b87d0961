// internal/settings/settings_test.go
//
// Unit-tests for the settings store using sqlmock.
//
// Run: go test ./internal/settings -v

package settings

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func newMock(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(sqlx.NewDb(db, "mysql")), mock
}

func TestGet(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT value FROM setting WHERE `name` = ? LIMIT 1")).
		WithArgs("panel.base_url").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).
			AddRow("https://panel.example.com"))

	v, err := store.Get(context.Background(), "panel.base_url")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != "https://panel.example.com" {
		t.Fatalf("value = %s", v)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestGetMissing(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT value FROM setting WHERE `name` = ? LIMIT 1")).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	_, err := store.Get(context.Background(), "nope")
	if !errors.Is(err, ErrNoRow) {
		t.Fatalf("want ErrNoRow, got %v", err)
	}
}

func TestPutUpserts(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectExec("INSERT INTO setting").
		WithArgs("sweep.paused", "true").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.Put(context.Background(), "sweep.paused", "true"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestGetDefault(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT value FROM setting WHERE `name` = ? LIMIT 1")).
		WithArgs("absent").
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	v, err := GetDefault(context.Background(), store, "absent", "fallback")
	if err != nil {
		t.Fatalf("GetDefault: %v", err)
	}
	if v != "fallback" {
		t.Fatalf("value = %s, want fallback", v)
	}
}
