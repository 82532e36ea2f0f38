package balance

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func newMockStore(t *testing.T) (*PGStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewPGStore(db), mock
}

func TestPGStoreBalance(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`select cash_available from users where id=$1`)).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"cash_available"}).AddRow(int64(100000)))

	v, err := store.Balance(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if v != 100000 {
		t.Fatalf("expected 100000, got %d", v)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGStoreBalanceUnknownUser(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`select cash_available from users where id=$1`)).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	if _, err := store.Balance(context.Background(), "ghost"); !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("expected ErrUnknownUser, got %v", err)
	}
}

func TestPGStoreSetBalance(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`update users`).
		WithArgs("u1", int64(150000)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.SetBalance(context.Background(), "u1", 150000); err != nil {
		t.Fatalf("SetBalance: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGStoreSetBalanceUnknownUser(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`update users`).
		WithArgs("ghost", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.SetBalance(context.Background(), "ghost", 1); !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("expected ErrUnknownUser, got %v", err)
	}
}

func TestPGStoreSetBalanceNegative(t *testing.T) {
	store, mock := newMockStore(t)
	if err := store.SetBalance(context.Background(), "u1", -5); !errors.Is(err, ErrNegative) {
		t.Fatalf("expected ErrNegative, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected query: %v", err)
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	b, err := Schema.ReadFile("migrations/0001_users.up.sql")
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	if !regexp.MustCompile(`cash_available`).Match(b) {
		t.Fatal("users migration does not define cash_available")
	}
}
