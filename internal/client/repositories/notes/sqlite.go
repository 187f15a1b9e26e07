package notes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/geocapsule/internal/client/models"
	"github.com/dmitrijs2005/geocapsule/internal/common"
	"github.com/dmitrijs2005/geocapsule/internal/dbx"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *SQLiteRepository) WithTx(tx dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: tx}
}

const noteColumns = `id, owner_id, title, content, media_ref, media_type, lat, lng, visibility,
	unlock_at, created_at, updated_at, sync_state, version, attempts, next_attempt_at, last_error, sent`

// Upsert keeps the original seq on update so creation order is stable.
func (r *SQLiteRepository) Upsert(ctx context.Context, n *models.GeoNote) error {
	query := `INSERT INTO notes (` + noteColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id = excluded.owner_id,
			title = excluded.title,
			content = excluded.content,
			media_ref = excluded.media_ref,
			media_type = excluded.media_type,
			lat = excluded.lat,
			lng = excluded.lng,
			visibility = excluded.visibility,
			unlock_at = excluded.unlock_at,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			sync_state = excluded.sync_state,
			version = excluded.version,
			attempts = excluded.attempts,
			next_attempt_at = excluded.next_attempt_at,
			last_error = excluded.last_error,
			sent = excluded.sent`

	_, err := r.db.ExecContext(ctx, query,
		n.ID, n.OwnerID, n.Title, n.Content, n.MediaRef, string(n.MediaType),
		n.Location.Lat, n.Location.Lng, string(n.Visibility),
		dbx.UnixMilli(n.UnlockAt), n.CreatedAt.UnixMilli(), n.UpdatedAt.UnixMilli(),
		string(n.SyncState), n.Version, n.Attempts, dbx.UnixMilli(n.NextAttemptAt), n.LastError, n.Sent)
	if err != nil {
		return fmt.Errorf("failed to upsert note: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.GeoNote, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ?`, id)

	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListDirty(ctx context.Context) ([]*models.GeoNote, error) {
	return r.list(ctx, `SELECT `+noteColumns+` FROM notes
		WHERE sync_state IN (?, ?, ?) ORDER BY seq`,
		string(models.StatePendingCreate), string(models.StatePendingUpdate), string(models.StatePendingDelete))
}

func (r *SQLiteRepository) ListActive(ctx context.Context) ([]*models.GeoNote, error) {
	return r.list(ctx, `SELECT `+noteColumns+` FROM notes WHERE sync_state <> ? ORDER BY seq`,
		string(models.StatePendingDelete))
}

func (r *SQLiteRepository) ListByState(ctx context.Context, state models.SyncState) ([]*models.GeoNote, error) {
	return r.list(ctx, `SELECT `+noteColumns+` FROM notes WHERE sync_state = ? ORDER BY seq`, string(state))
}

func (r *SQLiteRepository) list(ctx context.Context, query string, args ...any) ([]*models.GeoNote, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select notes: %w", err)
	}
	defer rows.Close()

	var result []*models.GeoNote
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notes: %w", err)
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNote(s scanner) (*models.GeoNote, error) {
	var (
		n                       models.GeoNote
		mediaType, vis, state   string
		unlockAt, nextAttemptAt sql.NullInt64
		createdAt, updatedAt    int64
	)

	err := s.Scan(&n.ID, &n.OwnerID, &n.Title, &n.Content, &n.MediaRef, &mediaType,
		&n.Location.Lat, &n.Location.Lng, &vis, &unlockAt, &createdAt, &updatedAt,
		&state, &n.Version, &n.Attempts, &nextAttemptAt, &n.LastError, &n.Sent)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan note: %w", err)
	}

	n.MediaType = models.MediaType(mediaType)
	n.Visibility = models.Visibility(vis)
	n.SyncState = models.SyncState(state)
	n.UnlockAt = dbx.FromUnixMilli(unlockAt)
	n.NextAttemptAt = dbx.FromUnixMilli(nextAttemptAt)
	n.CreatedAt = time.UnixMilli(createdAt).UTC()
	n.UpdatedAt = time.UnixMilli(updatedAt).UTC()

	if !n.SyncState.Valid() || !n.Visibility.Valid() || !n.MediaType.Valid() || n.Location.Validate() != nil {
		return nil, fmt.Errorf("%w: note %s", ErrCorruptRecord, n.ID)
	}
	return &n, nil
}
