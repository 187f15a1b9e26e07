package conflicts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/geocapsule/internal/client/models"
	"github.com/dmitrijs2005/geocapsule/internal/codec"
	"github.com/dmitrijs2005/geocapsule/internal/common"
	"github.com/dmitrijs2005/geocapsule/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) WithTx(tx dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: tx}
}

func (r *SQLiteRepository) Save(ctx context.Context, c *models.Conflict) error {
	local, err := codec.Marshal(c.Local)
	if err != nil {
		return fmt.Errorf("failed to encode local snapshot: %w", err)
	}

	var remote []byte
	if c.Remote != nil {
		remote, err = codec.Marshal(c.Remote)
		if err != nil {
			return fmt.Errorf("failed to encode remote snapshot: %w", err)
		}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO conflicts (note_id, kind, base_version, remote_version, local_snapshot, remote_snapshot, detected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(note_id) DO UPDATE SET
			kind = excluded.kind,
			base_version = excluded.base_version,
			remote_version = excluded.remote_version,
			local_snapshot = excluded.local_snapshot,
			remote_snapshot = excluded.remote_snapshot,
			detected_at = excluded.detected_at
	`, c.NoteID, string(c.Kind), c.BaseVersion, c.RemoteVersion, local, remote, c.DetectedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save conflict[%s]: %w", c.NoteID, err)
	}
	return nil
}

const conflictColumns = `note_id, kind, base_version, remote_version, local_snapshot, remote_snapshot, detected_at`

func (r *SQLiteRepository) Get(ctx context.Context, noteID string) (*models.Conflict, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+conflictColumns+` FROM conflicts WHERE note_id = ?`, noteID)
	c, err := scanConflict(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*models.Conflict, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+conflictColumns+` FROM conflicts ORDER BY detected_at, note_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conflicts: %w", err)
	}
	defer rows.Close()

	var result []*models.Conflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conflicts: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, noteID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM conflicts WHERE note_id = ?`, noteID); err != nil {
		return fmt.Errorf("failed to delete conflict[%s]: %w", noteID, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConflict(s scanner) (*models.Conflict, error) {
	var (
		c             models.Conflict
		kind          string
		local, remote []byte
		detectedAt    int64
	)
	err := s.Scan(&c.NoteID, &kind, &c.BaseVersion, &c.RemoteVersion, &local, &remote, &detectedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan conflict: %w", err)
	}

	c.Kind = models.ConflictKind(kind)
	c.DetectedAt = time.UnixMilli(detectedAt).UTC()

	c.Local = &models.GeoNote{}
	if err := codec.Unmarshal(local, c.Local); err != nil {
		return nil, fmt.Errorf("%w: failed to decode local snapshot[%s]: %v", ErrCorruptSnapshot, c.NoteID, err)
	}
	if len(remote) > 0 {
		c.Remote = &models.GeoNote{}
		if err := codec.Unmarshal(remote, c.Remote); err != nil {
			return nil, fmt.Errorf("%w: failed to decode remote snapshot[%s]: %v", ErrCorruptSnapshot, c.NoteID, err)
		}
	}
	return &c, nil
}
