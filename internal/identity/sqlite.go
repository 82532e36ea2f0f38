package identity

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema/sqlite.sql
var sqliteSchema string

var _ SessionStore = (*SQLiteStore)(nil)

// SQLiteStore persists the single device session in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and creates if needed) the session database at path.
// ":memory:" is accepted for tests.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init session schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Load(ctx context.Context) (Session, bool, error) {
	var (
		sess               Session
		expires, createdAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, access_token, refresh_token, expires_at, created_at
		FROM sessions
		WHERE slot = 1
	`).Scan(&sess.ID, &sess.UserID, &sess.AccessToken, &sess.RefreshToken, &expires, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, err
	}
	sess.ExpiresAt = time.Unix(expires, 0).UTC()
	sess.CreatedAt = time.Unix(createdAt, 0).UTC()
	return sess, true, nil
}

func (s *SQLiteStore) Save(ctx context.Context, sess Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (slot, id, user_id, access_token, refresh_token, expires_at, created_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (slot) DO UPDATE SET
			id = excluded.id,
			user_id = excluded.user_id,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			created_at = excluded.created_at
	`, sess.ID, sess.UserID, sess.AccessToken, sess.RefreshToken, sess.ExpiresAt.Unix(), sess.CreatedAt.Unix())
	return err
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions`)
	return err
}
