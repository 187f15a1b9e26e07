// Package capsules stores backend capsules in PostgreSQL. Rows are never
// removed: deletes set deleted_at and bump the version so the tombstone
// can be reported as gone.
package capsules

import (
	"context"
	"time"

	"github.com/dmitrijs2005/geocapsule/internal/geo"
	"github.com/dmitrijs2005/geocapsule/internal/server/models"
)

type Repository interface {
	// Create inserts c with version 1. A reused id is
	// common.ErrorAlreadyExists.
	Create(ctx context.Context, c *models.Capsule) (*models.Capsule, error)

	// Get returns the capsule including tombstones. A missing id is
	// common.ErrorNotFound.
	Get(ctx context.Context, id string) (*models.Capsule, error)

	// Update writes the mutable fields of c if the stored version is still
	// baseVersion and returns the new row. A stale or deleted row is
	// common.ErrVersionConflict; callers Get to tell the cases apart.
	Update(ctx context.Context, c *models.Capsule, baseVersion int64) (*models.Capsule, error)

	// SoftDelete marks the capsule deleted at the given time when the
	// stored version is still baseVersion.
	SoftDelete(ctx context.Context, id string, baseVersion int64, at time.Time) (*models.Capsule, error)

	// InBox lists live capsules inside box that viewerID may read at now.
	InBox(ctx context.Context, box geo.Box, viewerID string, now time.Time) ([]*models.Capsule, error)
}
