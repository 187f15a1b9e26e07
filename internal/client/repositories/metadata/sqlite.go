package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dmitrijs2005/geocapsule/internal/dbx"
)

// SQLiteRepository implements Repository over the metadata table.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *SQLiteRepository) WithTx(tx dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: tx}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func keyArgs(keys []string) []any {
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	return args
}

func (r *SQLiteRepository) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := r.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("metadata get %q: %w", key, err)
	}
	return value, nil
}

func (r *SQLiteRepository) Load(ctx context.Context, keys ...string) (map[string][]byte, error) {
	query := `SELECT key, value FROM metadata`
	if len(keys) > 0 {
		query += ` WHERE key IN (` + placeholders(len(keys)) + `)`
	}
	rows, err := r.db.QueryContext(ctx, query, keyArgs(keys)...)
	if err != nil {
		return nil, fmt.Errorf("metadata load: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]byte, len(keys))
	for rows.Next() {
		var (
			key   string
			value []byte
		)
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("metadata scan: %w", err)
		}
		out[key] = value
	}
	return out, rows.Err()
}

// Store writes values in key order so that concurrent writers lock rows
// in the same sequence.
func (r *SQLiteRepository) Store(ctx context.Context, values map[string][]byte) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO metadata (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, k, values[k])
		if err != nil {
			return fmt.Errorf("metadata store %q: %w", k, err)
		}
	}
	return nil
}

func (r *SQLiteRepository) Forget(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM metadata WHERE key IN (`+placeholders(len(keys))+`)`, keyArgs(keys)...)
	if err != nil {
		return fmt.Errorf("metadata forget: %w", err)
	}
	return nil
}

// Times are kept as RFC 3339 text in UTC.
func (r *SQLiteRepository) SetTime(ctx context.Context, key string, t time.Time) error {
	return r.Store(ctx, map[string][]byte{key: []byte(t.UTC().Format(time.RFC3339Nano))})
}

func (r *SQLiteRepository) GetTime(ctx context.Context, key string) (time.Time, bool, error) {
	v, err := r.Get(ctx, key)
	if err != nil || v == nil {
		return time.Time{}, false, err
	}
	t, err := time.Parse(time.RFC3339Nano, string(v))
	if err != nil {
		return time.Time{}, false, fmt.Errorf("metadata %q is not a time: %w", key, err)
	}
	return t, true, nil
}
