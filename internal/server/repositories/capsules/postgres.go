package capsules

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/geocapsule/internal/common"
	"github.com/dmitrijs2005/geocapsule/internal/dbx"
	"github.com/dmitrijs2005/geocapsule/internal/geo"
	"github.com/dmitrijs2005/geocapsule/internal/server/models"
)

const columns = `id, owner_id, title, content, media_ref, media_type, lat, lng,
		visibility, unlock_at, created_at, updated_at, deleted_at, version`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCapsule(s scanner) (*models.Capsule, error) {
	var (
		c                  models.Capsule
		unlockAt, deleteAt sql.NullTime
	)
	err := s.Scan(&c.ID, &c.OwnerID, &c.Title, &c.Content, &c.MediaRef, &c.MediaType,
		&c.Location.Lat, &c.Location.Lng, &c.Visibility, &unlockAt,
		&c.CreatedAt, &c.UpdatedAt, &deleteAt, &c.Version)
	if err != nil {
		return nil, err
	}
	c.UnlockAt = dbx.TimePtr(unlockAt)
	c.DeletedAt = dbx.TimePtr(deleteAt)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}

func (r *PostgresRepository) Create(ctx context.Context, c *models.Capsule) (*models.Capsule, error) {
	query := `
		INSERT INTO capsules (id, owner_id, title, content, media_ref, media_type, lat, lng,
			visibility, unlock_at, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 1)
		RETURNING ` + columns

	row := r.db.QueryRowContext(ctx, query,
		c.ID, c.OwnerID, c.Title, c.Content, c.MediaRef, c.MediaType, c.Location.Lat, c.Location.Lng,
		c.Visibility, dbx.NullTime(c.UnlockAt), c.CreatedAt.UTC(), c.UpdatedAt.UTC())

	out, err := scanCapsule(row)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Capsule, error) {
	query := `SELECT ` + columns + ` FROM capsules WHERE id = $1`

	c, err := scanCapsule(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) Update(ctx context.Context, c *models.Capsule, baseVersion int64) (*models.Capsule, error) {
	query := `
		UPDATE capsules
		SET title = $3, content = $4, visibility = $5, unlock_at = $6,
			updated_at = $7, version = version + 1
		WHERE id = $1 AND version = $2 AND deleted_at IS NULL
		RETURNING ` + columns

	row := r.db.QueryRowContext(ctx, query,
		c.ID, baseVersion, c.Title, c.Content, c.Visibility, dbx.NullTime(c.UnlockAt), c.UpdatedAt.UTC())

	out, err := scanCapsule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrVersionConflict
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) SoftDelete(ctx context.Context, id string, baseVersion int64, at time.Time) (*models.Capsule, error) {
	query := `
		UPDATE capsules
		SET deleted_at = $3, updated_at = $3, version = version + 1
		WHERE id = $1 AND version = $2 AND deleted_at IS NULL
		RETURNING ` + columns

	out, err := scanCapsule(r.db.QueryRowContext(ctx, query, id, baseVersion, at.UTC()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrVersionConflict
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

// InBox applies the visibility rule in SQL so sealed and private rows of
// other owners never leave the database. A box crossing the antimeridian
// matches either side of it.
func (r *PostgresRepository) InBox(ctx context.Context, box geo.Box, viewerID string, now time.Time) ([]*models.Capsule, error) {
	lngCond := `lng BETWEEN $3 AND $4`
	if box.WrapsAntimeridian() {
		lngCond = `(lng >= $3 OR lng <= $4)`
	}
	query := `SELECT ` + columns + `
		FROM capsules
		WHERE deleted_at IS NULL
			AND lat BETWEEN $1 AND $2
			AND ` + lngCond + `
			AND (owner_id::text = $5 OR (visibility = 'public' AND (unlock_at IS NULL OR unlock_at <= $6)))`

	rows, err := r.db.QueryContext(ctx, query,
		box.MinLat, box.MaxLat, box.MinLng, box.MaxLng, viewerID, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.Capsule
	for rows.Next() {
		c, err := scanCapsule(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}
