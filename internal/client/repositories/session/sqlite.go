package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vmarchenko/signon/internal/dbx"
)

// SQLiteRepository stores session fields in a single-table SQLite database.
// Atomic updates run inside a transaction via dbx.WithTx.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := r.db.QueryRowContext(ctx, `SELECT value FROM session WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session[%s]: %w", key, err)
	}
	return value, nil
}

func (r *SQLiteRepository) Update(ctx context.Context, fn func(ctx context.Context, b Batch) error) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, &sqliteBatch{tx: tx})
	})
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM session`)
	if err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// sqliteBatch executes writes against the enclosing transaction; atomicity
// comes from the commit/rollback in WithTx.
type sqliteBatch struct {
	tx dbx.DBTX
}

func (b *sqliteBatch) Set(ctx context.Context, key string, value []byte) error {
	_, err := b.tx.ExecContext(ctx, `
		INSERT INTO session (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set session[%s]: %w", key, err)
	}
	return nil
}

func (b *sqliteBatch) Delete(ctx context.Context, key string) error {
	_, err := b.tx.ExecContext(ctx, `DELETE FROM session WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete session[%s]: %w", key, err)
	}
	return nil
}
