package balance

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Schema holds the users table migrations under migrations/ and the
// development seed data under seeds/.
//
//go:embed migrations/*.sql seeds/*.sql
var Schema embed.FS

var _ Store = (*PGStore)(nil)

// PGStore keeps balances in users.cash_available.
type PGStore struct {
	db *sql.DB
}

func OpenPG(dsn string) (*PGStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open balance db: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &PGStore{db: db}, nil
}

// NewPGStore wraps an existing handle.
func NewPGStore(db *sql.DB) *PGStore { return &PGStore{db: db} }

func (s *PGStore) Close() error { return s.db.Close() }

func (s *PGStore) DB() *sql.DB { return s.db }

func (s *PGStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *PGStore) Balance(ctx context.Context, userID string) (int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx, `select cash_available from users where id=$1`, userID).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrUnknownUser
	}
	if err != nil {
		return 0, err
	}
	return v, nil
}

func (s *PGStore) SetBalance(ctx context.Context, userID string, value int64) error {
	if value < 0 {
		return ErrNegative
	}
	res, err := s.db.ExecContext(ctx, `
		update users
		set cash_available = $2, updated_at = now()
		where id = $1
	`, userID, value)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUnknownUser
	}
	return nil
}
